package expctrl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// gpioHardwareTask is the HardwareTask adapter for Digital devices, backed
// by one Linux GPIO character device line request per DO channel. There is
// no onboard sample clock or hardware trigger on a GPIO chip, so
// CfgSampleClk and CfgDigEdgeStartTrigger are honored in software: a ticker
// paces writes at the configured rate, and the trigger wait is a channel
// read in Start, fed by the edge-event handler on the trigger line.
type gpioHardwareTask struct {
	chipName string

	sampRate float64
	ticker   *time.Ticker

	lines    map[string]*gpiocdev.Line // one request per DO channel, keyed by its physical name
	trigLine *gpiocdev.Line
	trigCh   chan struct{}

	exportTerm string
	exportLine *gpiocdev.Line
}

// NewGPIOHardwareTask constructs a HardwareTask over the named GPIO chip
// (e.g. "gpiochip0") for a digital device.
func NewGPIOHardwareTask(chipName string) HardwareTask {
	return &gpioHardwareTask{chipName: chipName, lines: make(map[string]*gpiocdev.Line)}
}

func (t *gpioHardwareTask) CfgSampleClk(source string, rate float64) error {
	t.sampRate = rate
	return nil
}

func (t *gpioHardwareTask) CfgOutputBuffer(nsamps uint64) error { return nil }

func (t *gpioHardwareTask) DisallowRegen() error { return nil }

func (t *gpioHardwareTask) CfgDigEdgeStartTrigger(terminal string, slope EdgeSlope) error {
	offset, err := parseLineOffset(terminal)
	if err != nil {
		return err
	}
	t.trigCh = make(chan struct{}, 1)
	edge := gpiocdev.RisingEdge
	if slope == FallingEdge {
		edge = gpiocdev.FallingEdge
	}
	line, err := gpiocdev.RequestLine(t.chipName, offset,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			select {
			case t.trigCh <- struct{}{}:
			default:
			}
		}),
		edge,
	)
	if err != nil {
		return &HardwareError{Kind: "gpio_request_trigger", Detail: err.Error()}
	}
	t.trigLine = line
	return nil
}

func (t *gpioHardwareTask) ExportSignal(signal, terminal string) error {
	offset, err := parseLineOffset(terminal)
	if err != nil {
		return err
	}
	line, err := gpiocdev.RequestLine(t.chipName, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return &HardwareError{Kind: "gpio_request_export", Detail: err.Error()}
	}
	t.exportTerm = signal
	t.exportLine = line
	return nil
}

func (t *gpioHardwareTask) CfgRefClk(source string, rate float64) error { return nil }

func (t *gpioHardwareTask) CreateAOChan(physicalName string, minVal, maxVal float64) error {
	return fmt.Errorf("%w: gpioHardwareTask does not support analog channels", ErrWrongDeviceKind)
}

func (t *gpioHardwareTask) CreateDOChan(physicalName string) error {
	offset, err := parseLineOffset(physicalName)
	if err != nil {
		return err
	}
	line, err := gpiocdev.RequestLine(t.chipName, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return &HardwareError{Kind: "gpio_request_output", Detail: err.Error()}
	}
	t.lines[physicalName] = line
	return nil
}

func (t *gpioHardwareTask) WriteAnalog(data [][]float64) error {
	return fmt.Errorf("%w: gpioHardwareTask does not support analog writes", ErrWrongDeviceKind)
}

// WriteDigitalPort strobes every line for each sample in data at the
// configured sample rate. data rows are already port-packed by
// Device.CalcStreamSignal; this task keys lines by channel name rather
// than port, so callers are expected to have created one DO channel per
// bit, matching the line's own physical name.
func (t *gpioHardwareTask) WriteDigitalPort(data [][]uint32) error {
	if t.ticker == nil && t.sampRate > 0 {
		t.ticker = time.NewTicker(time.Duration(float64(time.Second) / t.sampRate))
	}
	if len(data) == 0 {
		return nil
	}
	nsamps := len(data[0])
	for s := 0; s < nsamps; s++ {
		for i, line := range t.sortedLines() {
			bit := int((data[i][s] >> uint(lineOffsetOf(i))) & 1)
			if err := line.SetValue(bit); err != nil {
				return &HardwareError{Kind: "gpio_write", Detail: err.Error()}
			}
		}
		if t.ticker != nil {
			<-t.ticker.C
		}
	}
	return nil
}

func (t *gpioHardwareTask) sortedLines() []*gpiocdev.Line {
	names := make([]string, 0, len(t.lines))
	for name := range t.lines {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]*gpiocdev.Line, 0, len(names))
	for _, name := range names {
		lines = append(lines, t.lines[name])
	}
	return lines
}

func lineOffsetOf(i int) int { return i }

func (t *gpioHardwareTask) Start() error {
	if t.trigCh != nil {
		<-t.trigCh
	}
	if t.exportLine != nil {
		if err := t.exportLine.SetValue(1); err != nil {
			return &HardwareError{Kind: "gpio_export_start", Detail: err.Error()}
		}
	}
	return nil
}

func (t *gpioHardwareTask) Stop() error {
	if t.ticker != nil {
		t.ticker.Stop()
	}
	return nil
}

func (t *gpioHardwareTask) WaitUntilDone(ctx context.Context) error {
	return nil
}

func (t *gpioHardwareTask) Clear() error {
	for _, l := range t.lines {
		l.Close()
	}
	if t.trigLine != nil {
		t.trigLine.Close()
	}
	if t.exportLine != nil {
		t.exportLine.Close()
	}
	return nil
}

func (t *gpioHardwareTask) ResetHardware(ctx context.Context) error {
	return t.Clear()
}

// parseLineOffset accepts a bare line offset like "17" as a terminal name;
// GPIO chips don't have NI-DAQ-style terminal names, so trigger/export
// terminals are configured as raw offsets on the same chip.
func parseLineOffset(terminal string) (int, error) {
	var offset int
	if _, err := fmt.Sscanf(terminal, "%d", &offset); err != nil {
		return 0, fmt.Errorf("%w: gpio terminal %q must be a line offset", ErrBadName, terminal)
	}
	return offset, nil
}
