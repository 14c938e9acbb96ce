package expctrl

import (
	"context"
	"fmt"
	"sort"
)

// Experiment is a registry of devices. It enforces that at most one device
// is primary and drives coordinated compile and signal calculation across
// all of them.
type Experiment struct {
	devices map[string]*Device
}

// NewExperiment constructs an empty experiment.
func NewExperiment() *Experiment {
	return &Experiment{devices: make(map[string]*Device)}
}

func (e *Experiment) Device(name string) (*Device, error) {
	dev, ok := e.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return dev, nil
}

// addDevice registers dev, failing with ErrDuplicate if the name is
// already taken or ErrMultiplePrimary if dev and an existing device would
// both be primary.
func (e *Experiment) addDevice(dev *Device) error {
	if _, exists := e.devices[dev.physicalName]; exists {
		return fmt.Errorf("%w: device %s", ErrDuplicate, dev.physicalName)
	}
	if dev.isPrimary {
		for _, existing := range e.devices {
			if existing.isPrimary {
				return fmt.Errorf("%w: cannot register device %s, %s is already primary", ErrMultiplePrimary, dev.physicalName, existing.physicalName)
			}
		}
	}
	e.devices[dev.physicalName] = dev
	return nil
}

// AddAODevice registers a new analog-output device.
func (e *Experiment) AddAODevice(name, trigLine string, isPrimary bool, sampRate float64) error {
	return e.addDevice(NewDevice(name, trigLine, Analog, isPrimary, sampRate))
}

// AddDODevice registers a new digital-output device.
func (e *Experiment) AddDODevice(name, trigLine string, isPrimary bool, sampRate float64) error {
	return e.addDevice(NewDevice(name, trigLine, Digital, isPrimary, sampRate))
}

// AddAOChannel registers channel "ao<index>" on the named analog device.
func (e *Experiment) AddAOChannel(devName string, index int) (*Channel, error) {
	dev, err := e.typedDevice(devName, Analog)
	if err != nil {
		return nil, err
	}
	return dev.AddChannel(fmt.Sprintf("ao%d", index))
}

// AddDOChannel registers channel "port<port>/line<line>" on the named
// digital device.
func (e *Experiment) AddDOChannel(devName string, port, line int) (*Channel, error) {
	dev, err := e.typedDevice(devName, Digital)
	if err != nil {
		return nil, err
	}
	return dev.AddChannel(fmt.Sprintf("port%d/line%d", port, line))
}

func (e *Experiment) typedDevice(devName string, kind DeviceKind) (*Device, error) {
	dev, err := e.Device(devName)
	if err != nil {
		return nil, err
	}
	if dev.kind != kind {
		return nil, fmt.Errorf("%w: device %s is not %s", ErrWrongDeviceKind, devName, kind)
	}
	return dev, nil
}

func (e *Experiment) typedChannel(devName, chanName string, kind DeviceKind) (*Channel, error) {
	dev, err := e.typedDevice(devName, kind)
	if err != nil {
		return nil, err
	}
	return dev.Channel(chanName)
}

// Constant schedules a constant value on an analog channel.
func (e *Experiment) Constant(devName, chanName string, t, duration, value float64, keepVal bool) error {
	ch, err := e.typedChannel(devName, chanName, Analog)
	if err != nil {
		return err
	}
	return ch.Constant(value, t, duration, keepVal)
}

// Sine schedules a sine waveform on an analog channel.
func (e *Experiment) Sine(devName, chanName string, t, duration float64, keepVal bool, freq float64, opts ...SineOption) error {
	ch, err := e.typedChannel(devName, chanName, Analog)
	if err != nil {
		return err
	}
	instr, err := NewSineInstruction(freq, opts...)
	if err != nil {
		return err
	}
	return ch.AddInstr(instr, t, duration, keepVal)
}

// High schedules a constant-1 pulse on a digital channel.
func (e *Experiment) High(devName, chanName string, t, duration float64) error {
	ch, err := e.typedChannel(devName, chanName, Digital)
	if err != nil {
		return err
	}
	return ch.High(t, duration)
}

// Low schedules a constant-0 pulse on a digital channel.
func (e *Experiment) Low(devName, chanName string, t, duration float64) error {
	ch, err := e.typedChannel(devName, chanName, Digital)
	if err != nil {
		return err
	}
	return ch.Low(t, duration)
}

// GoHigh schedules a single-sample rising edge, held high, on a digital
// channel.
func (e *Experiment) GoHigh(devName, chanName string, t float64) error {
	ch, err := e.typedChannel(devName, chanName, Digital)
	if err != nil {
		return err
	}
	return ch.GoHigh(t)
}

// GoLow schedules a single-sample falling edge, held low, on a digital
// channel.
func (e *Experiment) GoLow(devName, chanName string, t float64) error {
	ch, err := e.typedChannel(devName, chanName, Digital)
	if err != nil {
		return err
	}
	return ch.GoLow(t)
}

// EditStopTime is the maximum edit_stop_time over all devices.
func (e *Experiment) EditStopTime() float64 {
	var max float64
	for _, dev := range e.devices {
		if t := dev.EditStopTime(); t > max {
			max = t
		}
	}
	return max
}

// CompiledStopTime is the maximum compiled_stop_time over all devices.
func (e *Experiment) CompiledStopTime() float64 {
	var max float64
	for _, dev := range e.devices {
		if t := dev.CompiledStopTime(); t > max {
			max = t
		}
	}
	return max
}

// Compile compiles based on EditStopTime.
func (e *Experiment) Compile() (float64, error) {
	stopTime := e.EditStopTime()
	if err := e.CompileWithStopTime(stopTime); err != nil {
		return 0, err
	}
	return stopTime, nil
}

// CompileWithStopTime requires exactly one primary device, then compiles
// each device with its own integer stop_pos = floor(stopTime *
// dev.sampRate); per-device sample rates may differ, but the shared
// real-time stop time is the same for all of them.
func (e *Experiment) CompileWithStopTime(stopTime float64) error {
	var primary *Device
	for _, dev := range e.devices {
		if dev.isPrimary {
			primary = dev
			break
		}
	}
	if primary == nil {
		return ErrNoPrimary
	}

	for _, name := range e.sortedDeviceNames() {
		dev := e.devices[name]
		stopPos := uint64(stopTime * dev.sampRate)
		if err := dev.Compile(stopPos); err != nil {
			return err
		}
	}
	return nil
}

func (e *Experiment) sortedDeviceNames() []string {
	names := make([]string, 0, len(e.devices))
	for name := range e.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Experiment) IsEdited() bool {
	for _, dev := range e.devices {
		if dev.IsEdited() {
			return true
		}
	}
	return false
}

func (e *Experiment) IsCompiled() bool {
	for _, dev := range e.devices {
		if dev.IsCompiled() {
			return true
		}
	}
	return false
}

func (e *Experiment) IsFreshCompiled() bool {
	for _, dev := range e.devices {
		if !dev.IsFreshCompiled() {
			return false
		}
	}
	return true
}

func (e *Experiment) ClearEditCache() {
	for _, dev := range e.devices {
		dev.ClearEditCache()
	}
}

func (e *Experiment) ClearCompileCache() {
	for _, dev := range e.devices {
		dev.ClearCompileCache()
	}
}

// DeviceClearCompileCache clears the compiled cache on a single named
// device.
func (e *Experiment) DeviceClearCompileCache(devName string) error {
	dev, err := e.Device(devName)
	if err != nil {
		return err
	}
	dev.ClearCompileCache()
	return nil
}

// CalcSignal is the diagnostic calc_signal entrypoint: returns a
// [n_channels x nsamps] matrix for the named device, sampling real time
// [tStart, tEnd) at the device's own sample rate.
func (e *Experiment) CalcSignal(devName string, tStart, tEnd float64, nsamps uint64) ([][]float64, error) {
	dev, err := e.Device(devName)
	if err != nil {
		return nil, err
	}
	startPos := uint64(tStart * dev.sampRate)
	endPos := uint64(tEnd * dev.sampRate)
	return dev.CalcSignalNSamps(startPos, endPos, nsamps)
}

// ResetDevice allocates a fresh HardwareTask for the named device via
// newTask and, if it implements HardwareResetter, resets it. This exists
// for recovering a device left armed or mid-task by a prior failed
// StreamingCoordinator.Stream call, without needing to reconstruct the
// whole Experiment.
func (e *Experiment) ResetDevice(ctx context.Context, devName string, newTask HardwareTaskFactory) error {
	dev, err := e.Device(devName)
	if err != nil {
		return err
	}
	task, err := newTask(dev)
	if err != nil {
		return fmt.Errorf("device %s: allocate task: %w", devName, err)
	}
	defer task.Clear()

	resetter, ok := task.(HardwareResetter)
	if !ok {
		return nil
	}
	if err := resetter.ResetHardware(ctx); err != nil {
		return fmt.Errorf("device %s: reset: %w", devName, err)
	}
	return nil
}

// ResetDevices resets every registered device in deterministic order,
// aggregating per-device failures into a StreamFailedError rather than
// stopping at the first one.
func (e *Experiment) ResetDevices(ctx context.Context, newTask HardwareTaskFactory) error {
	errs := make(map[string]error)
	for _, name := range e.sortedDeviceNames() {
		if err := e.ResetDevice(ctx, name, newTask); err != nil {
			errs[name] = err
		}
	}
	if len(errs) > 0 {
		return &StreamFailedError{DeviceErrors: errs}
	}
	return nil
}

// CompiledDevices returns the compiled devices in deterministic
// (name-sorted) order.
func (e *Experiment) CompiledDevices() []*Device {
	var out []*Device
	for _, name := range e.sortedDeviceNames() {
		if dev := e.devices[name]; dev.IsCompiled() {
			out = append(out, dev)
		}
	}
	return out
}
