package expctrl

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DeviceKind distinguishes an analog-output device (voltage DAC channels,
// named ao<N>) from a digital-output device (packed port/line channels,
// named port<N>/line<M>).
type DeviceKind int

const (
	Analog DeviceKind = iota
	Digital
)

func (k DeviceKind) String() string {
	if k == Analog {
		return "analog"
	}
	return "digital"
}

var (
	analogChanPattern  = regexp.MustCompile(`^ao\d+$`)
	digitalChanPattern = regexp.MustCompile(`^port\d+/line\d+$`)
)

// Device is a named group of channels sharing a sample clock, a trigger
// role, and (for Digital devices) a port-packing rule.
type Device struct {
	physicalName string
	sampRate     float64
	trigLine     string
	isPrimary    bool
	kind         DeviceKind

	channels map[string]*Channel
}

// NewDevice constructs an empty device. trigLine is the digital-edge
// start-trigger terminal this device exports (if isPrimary) or listens to
// (otherwise); see streaming_coordinator.go for how it's used.
func NewDevice(physicalName, trigLine string, kind DeviceKind, isPrimary bool, sampRate float64) *Device {
	return &Device{
		physicalName: physicalName,
		trigLine:     trigLine,
		isPrimary:    isPrimary,
		kind:         kind,
		sampRate:     sampRate,
		channels:     make(map[string]*Channel),
	}
}

func (d *Device) PhysicalName() string { return d.physicalName }
func (d *Device) SampRate() float64    { return d.sampRate }
func (d *Device) TrigLine() string     { return d.trigLine }
func (d *Device) IsPrimary() bool      { return d.isPrimary }
func (d *Device) Kind() DeviceKind     { return d.kind }

// AddChannel registers a new channel, validating its name against the
// device kind's grammar (analog ^ao\d+$, digital ^port\d+/line\d+$) and
// rejecting duplicates.
func (d *Device) AddChannel(physicalName string) (*Channel, error) {
	pattern := analogChanPattern
	description := "ao[number]"
	if d.kind == Digital {
		pattern = digitalChanPattern
		description = "port[number]/line[number]"
	}

	if !pattern.MatchString(physicalName) {
		return nil, fmt.Errorf("%w: expected channels of format %q, got %q", ErrBadName, description, physicalName)
	}
	if _, exists := d.channels[physicalName]; exists {
		return nil, fmt.Errorf("%w: channel %s already registered on device %s", ErrDuplicate, physicalName, d.physicalName)
	}

	ch := NewChannel(physicalName, d.sampRate)
	d.channels[physicalName] = ch
	return ch, nil
}

// Channel looks up a previously-registered channel by name.
func (d *Device) Channel(physicalName string) (*Channel, error) {
	ch, ok := d.channels[physicalName]
	if !ok {
		return nil, fmt.Errorf("%w: channel %s on device %s", ErrUnknownChannel, physicalName, d.physicalName)
	}
	return ch, nil
}

func (d *Device) IsCompiled() bool {
	for _, ch := range d.channels {
		if ch.IsCompiled() {
			return true
		}
	}
	return false
}

func (d *Device) IsEdited() bool {
	for _, ch := range d.channels {
		if ch.IsEdited() {
			return true
		}
	}
	return false
}

func (d *Device) IsFreshCompiled() bool {
	for _, ch := range d.channels {
		if !ch.IsFreshCompiled() {
			return false
		}
	}
	return true
}

func (d *Device) ClearEditCache() {
	for _, ch := range d.channels {
		ch.ClearEditCache()
	}
}

func (d *Device) ClearCompileCache() {
	for _, ch := range d.channels {
		ch.ClearCompileCache()
	}
}

// Compile compiles every channel of this device to the same device-local
// stopPos.
func (d *Device) Compile(stopPos uint64) error {
	for _, name := range d.sortedChannelNames() {
		if err := d.channels[name].Compile(stopPos); err != nil {
			return fmt.Errorf("device %s: %w", d.physicalName, err)
		}
	}
	return nil
}

// sortedChannelNames returns channel names in deterministic order, so
// aggregate operations (frames, packing) produce reproducible row
// ordering across runs.
func (d *Device) sortedChannelNames() []string {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompiledChannels returns the compiled channels in sorted physical-name
// order.
func (d *Device) CompiledChannels() []*Channel {
	var out []*Channel
	for _, name := range d.sortedChannelNames() {
		if ch := d.channels[name]; ch.IsCompiled() {
			out = append(out, ch)
		}
	}
	return out
}

// EditStopTime is the maximum over all channels of (last book end / sample
// rate).
func (d *Device) EditStopTime() float64 {
	var max float64
	for _, ch := range d.channels {
		if t := ch.EditStopTime(); t > max {
			max = t
		}
	}
	return max
}

// CompiledStopTime is the maximum over all compiled channels of
// (instrEnd.last / sample rate).
func (d *Device) CompiledStopTime() float64 {
	var max float64
	for _, ch := range d.CompiledChannels() {
		if t := ch.CompiledStopTime(); t > max {
			max = t
		}
	}
	return max
}

// CalcSignalNSamps is the diagnostic, per-channel signal calculation: an
// [n_channels x nsamps] matrix, row i = sampled channel i (channels sorted
// by physical name). Unlike CalcStreamSignal, digital devices are NOT
// port-packed here.
func (d *Device) CalcSignalNSamps(startPos, endPos, nsamps uint64) ([][]float64, error) {
	channels := d.CompiledChannels()
	out := make([][]float64, len(channels))

	for i, ch := range channels {
		row := make([]float64, nsamps)
		sampleTimes(startPos, endPos, nsamps, d.sampRate, row)
		if err := ch.FillSignalNSamps(startPos, endPos, nsamps, row); err != nil {
			return nil, fmt.Errorf("device %s: %w", d.physicalName, err)
		}
		out[i] = row
	}
	return out, nil
}

// uniquePortNumbers returns the sorted, deduplicated set of port numbers
// among this device's compiled channels. Only valid for Digital devices.
func (d *Device) uniquePortNumbers() ([]int, error) {
	if d.kind != Digital {
		return nil, fmt.Errorf("%w: uniquePortNumbers is only defined for digital devices", ErrWrongDeviceKind)
	}

	seen := make(map[int]struct{})
	for _, ch := range d.CompiledChannels() {
		port, _, err := extractPortLine(ch.PhysicalName())
		if err != nil {
			return nil, err
		}
		seen[port] = struct{}{}
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}

// CalcStreamSignal is the streaming-path signal calculation: for an Analog
// device it is identical to CalcSignalNSamps (one NI-DAQ channel per row);
// for a Digital device, per-line channel rows are packed by port, bit k of
// the port value set from line k's channel.
func (d *Device) CalcStreamSignal(startPos, endPos uint64) ([][]float64, error) {
	nsamps := endPos - startPos
	chanSignal, err := d.CalcSignalNSamps(startPos, endPos, nsamps)
	if err != nil {
		return nil, err
	}
	if d.kind == Analog {
		return chanSignal, nil
	}

	ports, err := d.uniquePortNumbers()
	if err != nil {
		return nil, err
	}
	portIndex := make(map[int]int, len(ports))
	for i, p := range ports {
		portIndex[p] = i
	}

	packed := make([][]float64, len(ports))
	for i := range packed {
		packed[i] = make([]float64, nsamps)
	}

	channels := d.CompiledChannels()
	for i, ch := range channels {
		port, line, err := extractPortLine(ch.PhysicalName())
		if err != nil {
			return nil, err
		}
		if line > 31 {
			return nil, fmt.Errorf("%w: line %d on channel %s exceeds 32-bit port width", ErrBadName, line, ch.PhysicalName())
		}
		row := packed[portIndex[port]]
		weight := float64(uint32(1) << uint(line))
		for s, v := range chanSignal[i] {
			row[s] += v * weight
		}
	}

	return packed, nil
}

// extractPortLine parses a "port<N>/line<M>" channel name into its port
// and line numbers. The caller is expected to have already validated the
// name against digitalChanPattern (e.g. via AddChannel), so this does not
// re-validate the grammar, only the numeric conversion.
func extractPortLine(physicalName string) (port, line int, err error) {
	parts := strings.SplitN(physicalName, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q is not port<N>/line<M>", ErrBadName, physicalName)
	}
	port, err = strconv.Atoi(strings.TrimPrefix(parts[0], "port"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrBadName, physicalName, err)
	}
	line, err = strconv.Atoi(strings.TrimPrefix(parts[1], "line"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrBadName, physicalName, err)
	}
	return port, line, nil
}
