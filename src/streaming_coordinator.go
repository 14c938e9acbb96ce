package expctrl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// HardwareTaskFactory allocates the HardwareTask a device should stream
// through. Production callers wire in gpio_hardware_task.go /
// audio_hardware_task.go constructors keyed on Device.Kind(); tests wire in
// SimHardwareTask.
type HardwareTaskFactory func(dev *Device) (HardwareTask, error)

// StreamingCoordinator drives one hardware streaming pass across every
// compiled device of an Experiment. Every device gets its own worker
// goroutine; the coordinator's job is the primary-last start ordering (the
// behavior the semaphore in semaphore.go exists for), repeating that
// ordered start/fill/drain cycle R times per Stream call, and aggregating
// per-device failures into a single StreamFailedError.
type StreamingCoordinator struct {
	exp       *Experiment
	newTask   HardwareTaskFactory
	sink      ErrorLogSink
	startGate *Semaphore
}

// NewStreamingCoordinator constructs a coordinator over exp's currently
// compiled devices, using newTask to allocate each device's HardwareTask.
// sink, if non-nil, receives every HardwareError encountered during
// streaming before it's aggregated into a StreamFailedError.
func NewStreamingCoordinator(exp *Experiment, newTask HardwareTaskFactory, sink ErrorLogSink) *StreamingCoordinator {
	return &StreamingCoordinator{exp: exp, newTask: newTask, sink: sink}
}

// ResetAll resets every registered device through the coordinator's own task
// factory. It exists for recovering hardware left armed or mid-task by a
// prior failed Stream call (e.g. on shutdown), without requiring the
// caller to keep its own copy of newTask around.
func (sc *StreamingCoordinator) ResetAll(ctx context.Context) error {
	return sc.exp.ResetDevices(ctx, sc.newTask)
}

// bufferSamples derives the hardware output buffer size from the
// buffer-time budget bufMs: as many samples as bufMs worth of playback at
// the device's sample rate, capped at the device's own compiled sequence
// length so a short acquisition never over-allocates.
func bufferSamples(seqLen uint64, sampRate, bufMs float64) uint64 {
	b := uint64(bufMs * sampRate / 1000)
	if b == 0 {
		b = 1
	}
	if b > seqLen {
		return seqLen
	}
	return b
}

// Stream runs reps repetitions of one full streaming pass: every compiled
// device's channels are written out over their shared timeline, with the
// primary device's start trigger firing only once every non-primary
// device is already armed and waiting on its own trigger. bufMs bounds
// both the hardware output buffer size (as many samples as bufMs
// milliseconds hold at each device's sample rate) and how long a device
// worker waits for its task to drain between repetitions (2*bufMs). It
// blocks until every device has finished all reps (or ctx is canceled),
// then returns a StreamFailedError aggregating any per-device failures, or
// nil if all devices succeeded.
func (sc *StreamingCoordinator) Stream(ctx context.Context, bufMs float64, reps int) error {
	devices := sc.exp.CompiledDevices()
	if len(devices) == 0 {
		return nil
	}
	if reps < 1 {
		reps = 1
	}

	var primary *Device
	secondaries := make([]*Device, 0, len(devices))
	for _, dev := range devices {
		if dev.IsPrimary() {
			primary = dev
		} else {
			secondaries = append(secondaries, dev)
		}
	}
	if primary == nil {
		return ErrNoPrimary
	}

	sc.startGate = NewSemaphore(1)

	var wg sync.WaitGroup
	errs := make(map[string]error)
	var errsMu sync.Mutex

	record := func(dev *Device, err error) {
		if err == nil {
			return
		}
		var hwErr *HardwareError
		if sc.sink != nil && errors.As(err, &hwErr) {
			sc.sink.LogHardwareError(dev.PhysicalName(), hwErr)
		}
		errsMu.Lock()
		errs[dev.PhysicalName()] = err
		errsMu.Unlock()
	}

	wg.Add(len(secondaries))
	for _, dev := range secondaries {
		go func(dev *Device) {
			defer wg.Done()
			record(dev, sc.runSecondary(ctx, dev, bufMs, reps))
		}(dev)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		record(primary, sc.runPrimary(ctx, primary, len(devices), bufMs, reps))
	}()

	wg.Wait()

	if len(errs) > 0 {
		return &StreamFailedError{DeviceErrors: errs}
	}
	return nil
}

// runSecondary streams dev's channels after arming its task to wait on its
// own start trigger. Each repetition's arming step starts the task then
// releases the start gate, so the primary knows this device is ready for
// that cycle. A worker that returns before arming every repetition still
// releases the gate once for each repetition it missed, so a failed
// secondary never leaves the primary waiting on it.
func (sc *StreamingCoordinator) runSecondary(ctx context.Context, dev *Device, bufMs float64, reps int) error {
	released := 0
	defer func() {
		for ; released < reps; released++ {
			sc.startGate.Release()
		}
	}()

	task, err := sc.newTask(dev)
	if err != nil {
		return fmt.Errorf("device %s: allocate task: %w", dev.PhysicalName(), err)
	}
	defer task.Clear()

	stopPos := uint64(dev.CompiledStopTime() * dev.SampRate())
	bufSamps := bufferSamples(stopPos, dev.SampRate(), bufMs)

	if err := configureTriggeredTask(task, dev, RisingEdge, bufSamps); err != nil {
		return err
	}

	waitTimeout := time.Duration(2 * bufMs * float64(time.Millisecond))
	return sc.runStreamLoop(ctx, dev, task, func() error {
		err := task.Start()
		sc.startGate.Release()
		released++
		return err
	}, bufSamps, reps, waitTimeout)
}

// runPrimary waits for every device (itself included) to report ready for
// this repetition, by acquiring the start gate numDevices times and then
// releasing it once to restore the gate's count back to 1 before starting
// its own task, whose exported start trigger is what releases every
// secondary's wait. The restore release is what re-arms the gate for the
// next repetition.
func (sc *StreamingCoordinator) runPrimary(ctx context.Context, dev *Device, numDevices int, bufMs float64, reps int) error {
	task, err := sc.newTask(dev)
	if err != nil {
		return fmt.Errorf("device %s: allocate task: %w", dev.PhysicalName(), err)
	}
	defer task.Clear()

	stopPos := uint64(dev.CompiledStopTime() * dev.SampRate())
	bufSamps := bufferSamples(stopPos, dev.SampRate(), bufMs)

	if err := configurePrimaryTask(task, dev, bufSamps); err != nil {
		return err
	}

	waitTimeout := time.Duration(2 * bufMs * float64(time.Millisecond))
	return sc.runStreamLoop(ctx, dev, task, func() error {
		for i := 0; i < numDevices; i++ {
			sc.startGate.Acquire()
		}
		sc.startGate.Release()
		return task.Start()
	}, bufSamps, reps, waitTimeout)
}

// configureTriggeredTask sets up a non-primary device's task to wait for a
// digital edge on its trigger line before starting.
func configureTriggeredTask(task HardwareTask, dev *Device, slope EdgeSlope, bufSamps uint64) error {
	if err := configureChannels(task, dev, bufSamps); err != nil {
		return err
	}
	if err := task.CfgDigEdgeStartTrigger(dev.TrigLine(), slope); err != nil {
		return fmt.Errorf("device %s: configure start trigger: %w", dev.PhysicalName(), err)
	}
	return nil
}

// configurePrimaryTask sets up the primary device's task to export its
// start trigger onto its own trigger line, fanning it out to secondaries.
func configurePrimaryTask(task HardwareTask, dev *Device, bufSamps uint64) error {
	if err := configureChannels(task, dev, bufSamps); err != nil {
		return err
	}
	if err := task.ExportSignal("StartTrigger", dev.TrigLine()); err != nil {
		return fmt.Errorf("device %s: export start trigger: %w", dev.PhysicalName(), err)
	}
	return nil
}

func configureChannels(task HardwareTask, dev *Device, bufSamps uint64) error {
	if err := task.CfgSampleClk("OnboardClock", dev.SampRate()); err != nil {
		return fmt.Errorf("device %s: configure sample clock: %w", dev.PhysicalName(), err)
	}
	if err := task.CfgOutputBuffer(bufSamps); err != nil {
		return fmt.Errorf("device %s: configure output buffer: %w", dev.PhysicalName(), err)
	}
	if err := task.DisallowRegen(); err != nil {
		return fmt.Errorf("device %s: disallow regeneration: %w", dev.PhysicalName(), err)
	}

	for _, ch := range dev.CompiledChannels() {
		var err error
		if dev.Kind() == Analog {
			err = task.CreateAOChan(ch.PhysicalName(), -10, 10)
		} else {
			err = task.CreateDOChan(ch.PhysicalName())
		}
		if err != nil {
			return fmt.Errorf("device %s: configure channel %s: %w", dev.PhysicalName(), ch.PhysicalName(), err)
		}
	}
	return nil
}

// runStreamLoop primes the first buffer, then runs reps repetitions of:
// arm (which differs between primary and secondary devices, see
// runPrimary/runSecondary above), fill subsequent buffers on a
// StreamCounter cycle until the device's whole compiled timeline has been
// output, then drain. Between repetitions (every rep but the last, when
// reps > 1) the next repetition's first chunk is computed before the
// drain wait and written once the task is stopped, so it's already queued
// by the time that repetition's arm step restarts the task.
func (sc *StreamingCoordinator) runStreamLoop(ctx context.Context, dev *Device, task HardwareTask, armRep func() error, bufSamps uint64, reps int, waitTimeout time.Duration) error {
	stopPos := uint64(dev.CompiledStopTime() * dev.SampRate())
	if stopPos == 0 {
		return nil
	}

	counter := NewStreamCounter(stopPos, bufSamps)
	timer := NewTickTimer(dev.PhysicalName())
	budget := time.Duration(float64(bufSamps) / dev.SampRate() * float64(time.Second))

	first, err := sc.computeChunk(dev, counter)
	if err != nil {
		return err
	}
	if err := sc.writeChunk(task, first); err != nil {
		return fmt.Errorf("device %s: write: %w", dev.PhysicalName(), err)
	}

	for rep := 0; rep < reps; rep++ {
		timer.Tick()
		if err := armRep(); err != nil {
			return fmt.Errorf("device %s: start rep %d: %w", dev.PhysicalName(), rep, err)
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if counter.pos == 0 {
				break
			}
			if err := sc.fillAndWrite(dev, task, counter); err != nil {
				return err
			}
			timer.Tick()
			timer.WarnIfOverrun(budget)
		}

		moreReps := reps > 1 && rep < reps-1
		var next streamChunk
		if moreReps {
			next, err = sc.computeChunk(dev, counter)
			if err != nil {
				return err
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
		waitErr := task.WaitUntilDone(waitCtx)
		cancel()
		if waitErr != nil {
			return fmt.Errorf("device %s: wait until done: %w", dev.PhysicalName(), waitErr)
		}

		if moreReps {
			if err := task.Stop(); err != nil {
				return fmt.Errorf("device %s: stop: %w", dev.PhysicalName(), err)
			}
			if err := sc.writeChunk(task, next); err != nil {
				return fmt.Errorf("device %s: write: %w", dev.PhysicalName(), err)
			}
		} else if err := task.Stop(); err != nil {
			return fmt.Errorf("device %s: stop: %w", dev.PhysicalName(), err)
		}
	}

	return nil
}

// streamChunk holds one buffer's worth of computed signal, in whichever of
// the two shapes CalcStreamSignal produces for dev.Kind().
type streamChunk struct {
	analog  [][]float64
	digital [][]uint32
}

// computeChunk advances counter to its next window and computes that
// window's signal, without writing it to task. Splitting compute from
// write lets runStreamLoop precompute a repetition's first chunk while
// the previous repetition's task is still draining.
func (sc *StreamingCoordinator) computeChunk(dev *Device, counter *StreamCounter) (streamChunk, error) {
	start, end := counter.TickNext()
	signal, err := dev.CalcStreamSignal(start, end)
	if err != nil {
		return streamChunk{}, fmt.Errorf("device %s: calculate signal: %w", dev.PhysicalName(), err)
	}

	if dev.Kind() == Analog {
		return streamChunk{analog: signal}, nil
	}

	packed := make([][]uint32, len(signal))
	for i, row := range signal {
		packed[i] = make([]uint32, len(row))
		for j, v := range row {
			packed[i][j] = uint32(v)
		}
	}
	return streamChunk{digital: packed}, nil
}

// writeChunk writes a previously computed chunk to task, dispatching to
// the analog or digital write method per which field chunk populated.
func (sc *StreamingCoordinator) writeChunk(task HardwareTask, chunk streamChunk) error {
	if chunk.digital != nil {
		return task.WriteDigitalPort(chunk.digital)
	}
	return task.WriteAnalog(chunk.analog)
}

// fillAndWrite computes the next chunk's signal from the counter and
// writes it to task in one step.
func (sc *StreamingCoordinator) fillAndWrite(dev *Device, task HardwareTask, counter *StreamCounter) error {
	chunk, err := sc.computeChunk(dev, counter)
	if err != nil {
		return err
	}
	return sc.writeChunk(task, chunk)
}
