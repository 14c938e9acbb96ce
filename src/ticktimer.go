package expctrl

import "time"

// TickTimer measures how long successive ticks of a streaming loop take,
// so a caller can notice a buffer-fill step drifting too close to the
// playback deadline before it actually underruns. It is pure
// instrumentation: nothing in StreamingCoordinator's control flow depends
// on its output.
type TickTimer struct {
	label    string
	started  time.Time
	lastTick time.Time
	ticks    []time.Duration
}

// NewTickTimer starts a timer under the given label, used only for log
// output.
func NewTickTimer(label string) *TickTimer {
	now := nowFunc()
	return &TickTimer{label: label, started: now, lastTick: now}
}

// Tick records the duration since the previous Tick (or since NewTickTimer,
// for the first call) and returns it.
func (t *TickTimer) Tick() time.Duration {
	now := nowFunc()
	d := now.Sub(t.lastTick)
	t.lastTick = now
	t.ticks = append(t.ticks, d)
	return d
}

// Ticks returns every recorded inter-tick duration, oldest first.
func (t *TickTimer) Ticks() []time.Duration {
	return t.ticks
}

// Elapsed returns the total duration since NewTickTimer.
func (t *TickTimer) Elapsed() time.Duration {
	return nowFunc().Sub(t.started)
}

// WarnIfOverrun logs a warning through Logger if the most recent tick
// exceeded budget, tagging the entry with the timer's label.
func (t *TickTimer) WarnIfOverrun(budget time.Duration) {
	if len(t.ticks) == 0 {
		return
	}
	last := t.ticks[len(t.ticks)-1]
	if last > budget {
		Logger.Warn("stream tick exceeded budget", "timer", t.label, "tick", last, "budget", budget)
	}
}

// nowFunc is a seam for deterministic tests; production code always calls
// time.Now.
var nowFunc = time.Now
