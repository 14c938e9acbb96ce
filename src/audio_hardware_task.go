package expctrl

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// audioHardwareTask is the HardwareTask adapter for Analog devices, backed
// by a portaudio output stream. It stands in for an NI-DAQmx AO task on
// development machines that have a sound card but no DAQ hardware: each AO
// channel maps to one interleaved output channel, and voltages are clamped
// to [-1, 1] to fit the audio device's native range.
type audioHardwareTask struct {
	stream   *portaudio.Stream
	sampRate float64
	nChans   int
	outBuf   []float32

	trigReady  chan struct{}
	exportedAs string
}

// NewAudioHardwareTask constructs a HardwareTask backed by the system's
// default portaudio output device.
func NewAudioHardwareTask() HardwareTask {
	return &audioHardwareTask{trigReady: make(chan struct{}, 1)}
}

func (t *audioHardwareTask) CfgSampleClk(source string, rate float64) error {
	t.sampRate = rate
	return nil
}

func (t *audioHardwareTask) CfgOutputBuffer(nsamps uint64) error { return nil }

func (t *audioHardwareTask) DisallowRegen() error { return nil }

func (t *audioHardwareTask) CfgDigEdgeStartTrigger(terminal string, slope EdgeSlope) error {
	// portaudio has no hardware trigger input; the trigger is ignored and
	// the stream starts as soon as Start is called.
	return nil
}

func (t *audioHardwareTask) ExportSignal(signal, terminal string) error {
	t.exportedAs = terminal
	return nil
}

func (t *audioHardwareTask) CfgRefClk(source string, rate float64) error { return nil }

func (t *audioHardwareTask) CreateAOChan(physicalName string, minVal, maxVal float64) error {
	t.nChans++
	return nil
}

func (t *audioHardwareTask) CreateDOChan(physicalName string) error {
	return fmt.Errorf("%w: audioHardwareTask does not support digital channels", ErrWrongDeviceKind)
}

func (t *audioHardwareTask) ensureStream() error {
	if t.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return &HardwareError{Kind: "portaudio_init", Detail: err.Error()}
	}
	stream, err := portaudio.OpenDefaultStream(0, t.nChans, t.sampRate, 0, &t.outBuf)
	if err != nil {
		return &HardwareError{Kind: "portaudio_open", Detail: err.Error()}
	}
	t.stream = stream
	return nil
}

func (t *audioHardwareTask) WriteAnalog(data [][]float64) error {
	if err := t.ensureStream(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	nsamps := len(data[0])
	t.outBuf = make([]float32, nsamps*t.nChans)
	for s := 0; s < nsamps; s++ {
		for ch := 0; ch < t.nChans; ch++ {
			t.outBuf[s*t.nChans+ch] = float32(clamp(data[ch][s], -1, 1))
		}
	}
	if err := t.stream.Write(); err != nil {
		return &HardwareError{Kind: "portaudio_write", Detail: err.Error()}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (t *audioHardwareTask) WriteDigitalPort(data [][]uint32) error {
	return fmt.Errorf("%w: audioHardwareTask does not support digital writes", ErrWrongDeviceKind)
}

func (t *audioHardwareTask) Start() error {
	if err := t.ensureStream(); err != nil {
		return err
	}
	if err := t.stream.Start(); err != nil {
		return &HardwareError{Kind: "portaudio_start", Detail: err.Error()}
	}
	select {
	case t.trigReady <- struct{}{}:
	default:
	}
	return nil
}

func (t *audioHardwareTask) Stop() error {
	if t.stream == nil {
		return nil
	}
	if err := t.stream.Stop(); err != nil {
		return &HardwareError{Kind: "portaudio_stop", Detail: err.Error()}
	}
	return nil
}

func (t *audioHardwareTask) WaitUntilDone(ctx context.Context) error {
	return nil
}

func (t *audioHardwareTask) Clear() error {
	if t.stream == nil {
		return nil
	}
	err := t.stream.Close()
	t.stream = nil
	portaudio.Terminate()
	if err != nil {
		return &HardwareError{Kind: "portaudio_close", Detail: err.Error()}
	}
	return nil
}

func (t *audioHardwareTask) ResetHardware(ctx context.Context) error {
	return t.Clear()
}
