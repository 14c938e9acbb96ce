package expctrl

import "errors"

// Error kinds returned by the edit, compile, and streaming APIs.
//
// Edit/compile errors are structural contract violations: they are always
// returned synchronously to the caller, never panics. Streaming errors
// terminate the offending device worker; see StreamFailedError.
var (
	ErrBadName         = errors.New("expctrl: channel name violates device's naming grammar")
	ErrDuplicate       = errors.New("expctrl: name already registered")
	ErrNoPrimary       = errors.New("expctrl: experiment has no primary device")
	ErrMultiplePrimary = errors.New("expctrl: experiment already has a primary device")
	ErrBadInterval     = errors.New("expctrl: end_pos must be strictly greater than start_pos")
	ErrOverlap         = errors.New("expctrl: instruction interval overlaps an existing one")
	ErrBadInstruction  = errors.New("expctrl: instruction is missing a required argument")
	ErrStopPosTooEarly = errors.New("expctrl: stop position precedes the last scheduled instruction")
	ErrNotCompiled     = errors.New("expctrl: channel has not been compiled")
	ErrOutOfRange      = errors.New("expctrl: requested sample window exceeds the compiled timeline")
	ErrLostSync        = errors.New("expctrl: command receiver fell behind by more than one message")
	ErrWrongDeviceKind = errors.New("expctrl: operation is incompatible with this device's kind")
	ErrUnknownDevice   = errors.New("expctrl: device not registered")
	ErrUnknownChannel  = errors.New("expctrl: channel not registered on device")
)

// HardwareError wraps a failure surfaced by a HardwareTask implementation.
// It is logged once to the configured ErrorLogSink before being returned to
// the caller (see log.go).
type HardwareError struct {
	Kind   string
	Detail string
}

func (e *HardwareError) Error() string {
	return "expctrl: hardware error (" + e.Kind + "): " + e.Detail
}

// StreamFailedError aggregates the per-device failures observed by
// StreamingCoordinator.Stream when one or more device workers return an
// error (Experiment.ResetDevices uses it the same way for per-device reset
// failures). The scope-joining supervisor (streaming_coordinator.go) reports
// this rather than the individual worker errors so a caller can tell a
// partial failure from a clean run without inspecting channel internals.
type StreamFailedError struct {
	DeviceErrors map[string]error
}

func (e *StreamFailedError) Error() string {
	msg := "expctrl: streaming failed on device(s):"
	for name, err := range e.DeviceErrors {
		msg += " " + name + "=[" + err.Error() + "]"
	}
	return msg
}

func (e *StreamFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.DeviceErrors))
	for _, err := range e.DeviceErrors {
		errs = append(errs, err)
	}
	return errs
}
