package expctrl

import (
	"context"
	"time"
)

// EdgeSlope distinguishes rising from falling edge triggers.
type EdgeSlope int

const (
	RisingEdge EdgeSlope = iota
	FallingEdge
)

// HardwareTask is the narrow capability surface StreamingCoordinator needs
// from a vendor DAQ driver. It deliberately does not expose anything
// vendor-specific: configuring, arming, and tearing down a single output
// task for one device. Concrete adapters (gpio_hardware_task.go,
// audio_hardware_task.go) implement it against a real bus; SimHardwareTask
// implements it in memory for tests.
type HardwareTask interface {
	// CfgSampleClk configures the sample clock source and rate.
	CfgSampleClk(source string, rate float64) error
	// CfgOutputBuffer sizes the onboard/driver output buffer, in samples.
	CfgOutputBuffer(nsamps uint64) error
	// DisallowRegen disables automatic buffer regeneration, so under-run is
	// reported rather than silently replaying stale samples.
	DisallowRegen() error
	// CfgDigEdgeStartTrigger arms the task to start on a digital edge
	// arriving on the named terminal.
	CfgDigEdgeStartTrigger(terminal string, slope EdgeSlope) error
	// ExportSignal routes an internal timing signal (e.g. the start
	// trigger) out to the named terminal, for fan-out to secondary devices.
	ExportSignal(signal, terminal string) error
	// CfgRefClk configures the reference clock source and rate shared
	// across devices for sample-clock phase lock.
	CfgRefClk(source string, rate float64) error

	// CreateAOChan adds an analog-output channel to this task.
	CreateAOChan(physicalName string, minVal, maxVal float64) error
	// CreateDOChan adds a digital-output port channel to this task.
	CreateDOChan(physicalName string) error

	// WriteAnalog writes one row per configured AO channel to the task's
	// buffer.
	WriteAnalog(data [][]float64) error
	// WriteDigitalPort writes one row per configured DO port channel,
	// values already packed per CalcStreamSignal's port-packing.
	WriteDigitalPort(data [][]uint32) error

	// Start arms and begins the task. For a task configured with a start
	// trigger it returns once armed; output then begins when the trigger
	// fires. StreamingCoordinator relies on this: a secondary releases the
	// start gate only after its Start returns.
	Start() error
	// Stop halts the task without releasing its resources.
	Stop() error
	// WaitUntilDone blocks until the task's buffer has been fully output or
	// ctx is canceled.
	WaitUntilDone(ctx context.Context) error
	// Clear releases the task's hardware resources. Idempotent.
	Clear() error
}

// HardwareResetter is implemented by hardware tasks (or their owning
// device driver) that support a hard reset independent of any in-flight
// task, used by Experiment.ResetDevice/ResetDevices to recover a device
// left in an error state by a prior failed stream.
type HardwareResetter interface {
	ResetHardware(ctx context.Context) error
}

// SimHardwareTask is an in-memory HardwareTask used by tests. It
// records every call for assertions and plays back Start/Stop/WaitUntilDone
// as instantaneous, always-successful operations.
type SimHardwareTask struct {
	SampleClkSource string
	SampleClkRate   float64
	BufferSamps     uint64
	RegenDisallowed bool
	TrigTerminal    string
	TrigSlope       EdgeSlope
	ExportedSignal  string
	ExportedToTerm  string

	AOChannels []string
	DOChannels []string

	AnalogWrites  [][][]float64
	DigitalWrites [][][]uint32

	started bool
	cleared bool
}

// NewSimHardwareTask constructs a fresh simulated task.
func NewSimHardwareTask() *SimHardwareTask { return &SimHardwareTask{} }

func (t *SimHardwareTask) CfgSampleClk(source string, rate float64) error {
	t.SampleClkSource, t.SampleClkRate = source, rate
	return nil
}

func (t *SimHardwareTask) CfgOutputBuffer(nsamps uint64) error {
	t.BufferSamps = nsamps
	return nil
}

func (t *SimHardwareTask) DisallowRegen() error {
	t.RegenDisallowed = true
	return nil
}

func (t *SimHardwareTask) CfgDigEdgeStartTrigger(terminal string, slope EdgeSlope) error {
	t.TrigTerminal, t.TrigSlope = terminal, slope
	return nil
}

func (t *SimHardwareTask) ExportSignal(signal, terminal string) error {
	t.ExportedSignal, t.ExportedToTerm = signal, terminal
	return nil
}

func (t *SimHardwareTask) CfgRefClk(source string, rate float64) error {
	return nil
}

func (t *SimHardwareTask) CreateAOChan(physicalName string, minVal, maxVal float64) error {
	t.AOChannels = append(t.AOChannels, physicalName)
	return nil
}

func (t *SimHardwareTask) CreateDOChan(physicalName string) error {
	t.DOChannels = append(t.DOChannels, physicalName)
	return nil
}

func (t *SimHardwareTask) WriteAnalog(data [][]float64) error {
	t.AnalogWrites = append(t.AnalogWrites, data)
	return nil
}

func (t *SimHardwareTask) WriteDigitalPort(data [][]uint32) error {
	t.DigitalWrites = append(t.DigitalWrites, data)
	return nil
}

func (t *SimHardwareTask) Start() error {
	t.started = true
	return nil
}

func (t *SimHardwareTask) Stop() error {
	t.started = false
	return nil
}

func (t *SimHardwareTask) WaitUntilDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(0):
		return nil
	}
}

func (t *SimHardwareTask) Clear() error {
	t.cleared = true
	t.started = false
	return nil
}

func (t *SimHardwareTask) ResetHardware(ctx context.Context) error {
	t.started = false
	t.cleared = true
	return nil
}
