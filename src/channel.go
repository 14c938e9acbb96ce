package expctrl

import (
	"fmt"
	"sort"
)

// Channel is one physical output line. During the edit phase it holds a
// set of non-overlapping instrBooks ordered by start position; Compile
// collapses that set into a dense, gap-free pair of parallel arrays
// (instrEnd, instrVal) describing [0, stopPos) with no two adjacent equal
// segments.
type Channel struct {
	physicalName string
	sampRate     float64

	books []instrBook // always kept sorted by startPos, pairwise disjoint

	instrEnd []uint64
	instrVal []Instruction

	freshCompiled bool
}

// NewChannel constructs an empty, not-yet-compiled channel.
func NewChannel(physicalName string, sampRate float64) *Channel {
	return &Channel{
		physicalName:  physicalName,
		sampRate:      sampRate,
		freshCompiled: true,
	}
}

func (c *Channel) PhysicalName() string { return c.physicalName }
func (c *Channel) SampRate() float64    { return c.sampRate }

func (c *Channel) IsCompiled() bool      { return len(c.instrEnd) > 0 }
func (c *Channel) IsEdited() bool        { return len(c.books) > 0 }
func (c *Channel) IsFreshCompiled() bool { return c.freshCompiled }

// ClearEditCache drops the edit-phase books, leaving any compiled arrays
// untouched.
func (c *Channel) ClearEditCache() {
	c.freshCompiled = len(c.instrEnd) == 0
	c.books = nil
}

// ClearCompileCache drops the compiled dense arrays, leaving the edit-phase
// books untouched.
func (c *Channel) ClearCompileCache() {
	c.freshCompiled = len(c.books) == 0
	c.instrEnd = nil
	c.instrVal = nil
}

// EditStopTime is the last book's end_pos, converted to seconds. Zero if
// no books have been added.
func (c *Channel) EditStopTime() float64 {
	if len(c.books) == 0 {
		return 0
	}
	return float64(c.books[len(c.books)-1].endPos) / c.sampRate
}

// CompiledStopTime is the last compiled segment's end, in seconds. Zero if
// the channel has not been compiled.
func (c *Channel) CompiledStopTime() float64 {
	if len(c.instrEnd) == 0 {
		return 0
	}
	return float64(c.instrEnd[len(c.instrEnd)-1]) / c.sampRate
}

// AddInstr schedules instr over [t, t+dur) seconds, converted to integer
// sample positions via floor(t*sampRate). Fails with ErrOverlap if the new
// interval intersects any existing book on this channel.
func (c *Channel) AddInstr(instr Instruction, tSec, durSec float64, keepVal bool) error {
	start := uint64(tSec * c.sampRate)
	end := start + uint64(durSec*c.sampRate)

	book, err := newInstrBook(start, end, keepVal, instr)
	if err != nil {
		return err
	}

	idx := sort.Search(len(c.books), func(i int) bool { return c.books[i].startPos >= book.startPos })

	if idx < len(c.books) && c.books[idx].startPos < book.endPos {
		return fmt.Errorf("%w: channel %s: %s overlaps %s", ErrOverlap, c.physicalName, book, c.books[idx])
	}
	if idx > 0 && c.books[idx-1].endPos > book.startPos {
		return fmt.Errorf("%w: channel %s: %s overlaps %s", ErrOverlap, c.physicalName, book, c.books[idx-1])
	}

	c.books = append(c.books, instrBook{})
	copy(c.books[idx+1:], c.books[idx:])
	c.books[idx] = book
	c.freshCompiled = false

	return nil
}

// Constant is a convenience wrapper scheduling a constant value.
func (c *Channel) Constant(value, tSec, durSec float64, keepVal bool) error {
	return c.AddInstr(NewConstInstruction(value), tSec, durSec, keepVal)
}

// High schedules a constant 1 over [t, t+dur) without holding the value
// afterward.
func (c *Channel) High(tSec, durSec float64) error { return c.Constant(1, tSec, durSec, false) }

// Low schedules a constant 0 over [t, t+dur) without holding the value
// afterward.
func (c *Channel) Low(tSec, durSec float64) error { return c.Constant(0, tSec, durSec, false) }

// GoHigh schedules a single-sample rising edge at t and holds the value
// (1) forward as padding.
func (c *Channel) GoHigh(tSec float64) error { return c.Constant(1, tSec, 1/c.sampRate, true) }

// GoLow schedules a single-sample falling edge at t and holds the value
// (0) forward as padding.
func (c *Channel) GoLow(tSec float64) error { return c.Constant(0, tSec, 1/c.sampRate, true) }

// Compile walks the sorted books, padding gaps with the held value and
// coalescing adjacent equal segments, producing dense arrays covering
// [0, stopPos). It is a no-op if there are no books, and idempotent if the
// channel is already freshly compiled to the same stopPos.
func (c *Channel) Compile(stopPos uint64) error {
	if len(c.books) == 0 {
		return nil
	}
	if c.freshCompiled && len(c.instrEnd) > 0 && c.instrEnd[len(c.instrEnd)-1] == stopPos {
		return nil
	}
	if c.books[len(c.books)-1].endPos > stopPos {
		return fmt.Errorf("%w: channel %s: stop_pos %d precedes last instruction end %d",
			ErrStopPosTooEarly, c.physicalName, stopPos, c.books[len(c.books)-1].endPos)
	}

	c.instrEnd = c.instrEnd[:0]
	c.instrVal = c.instrVal[:0]
	c.freshCompiled = true

	var lastEnd uint64
	var lastVal float64

	appendSegment := func(instr Instruction, end uint64) {
		if len(c.instrVal) > 0 && c.instrVal[len(c.instrVal)-1].Equal(instr) {
			c.instrEnd[len(c.instrEnd)-1] = end
			return
		}
		c.instrVal = append(c.instrVal, instr)
		c.instrEnd = append(c.instrEnd, end)
	}

	for _, book := range c.books {
		if lastEnd < book.startPos {
			appendSegment(NewConstInstruction(lastVal), book.startPos)
		}
		appendSegment(book.instr, book.endPos)

		if book.keepVal {
			lastVal = heldValue(book.instr, book.endPos, c.sampRate)
		} else {
			lastVal = 0
		}
		lastEnd = book.endPos
	}

	if lastEnd < stopPos {
		appendSegment(NewConstInstruction(lastVal), stopPos)
	}

	return nil
}

// heldValue computes the value an instruction would produce at
// endPos/sampRate, for carrying forward as padding when keepVal is set.
func heldValue(instr Instruction, endPos uint64, sampRate float64) float64 {
	tEnd := []float64{float64(endPos) / sampRate}
	instr.EvalInplace(tEnd)
	return tEnd[0]
}

// binfindFirstIntersect returns the least index i such that
// instrEnd[i] >= pos, assuming instrEnd is sorted ascending.
func (c *Channel) binfindFirstIntersect(pos uint64) int {
	return sort.Search(len(c.instrEnd), func(i int) bool { return c.instrEnd[i] >= pos })
}

// FillSignalNSamps samples the compiled timeline over [startPos, endPos)
// into nsamps evenly spaced buckets, writing into buffer (which the caller
// has already filled with the actual sample times, e.g. via
// sampleTimes(startPos, endPos, nsamps, sampRate)). Requires the channel to
// be compiled and [startPos, endPos) to lie within the compiled timeline.
func (c *Channel) FillSignalNSamps(startPos, endPos, nsamps uint64, buffer []float64) error {
	if !c.IsCompiled() {
		return fmt.Errorf("%w: channel %s", ErrNotCompiled, c.physicalName)
	}
	if endPos <= startPos {
		return fmt.Errorf("%w: channel %s: invalid interval %d-%d", ErrBadInterval, c.physicalName, startPos, endPos)
	}
	if endPos > c.instrEnd[len(c.instrEnd)-1] {
		return fmt.Errorf("%w: channel %s: interval %d-%d exceeds compiled end %d",
			ErrOutOfRange, c.physicalName, startPos, endPos, c.instrEnd[len(c.instrEnd)-1])
	}

	startIdx := c.binfindFirstIntersect(startPos)
	// endPos is exclusive; the segment containing the sample just before
	// endPos is found by searching for endPos itself, since instrEnd holds
	// each segment's *exclusive* end.
	endIdx := c.binfindFirstIntersect(endPos)

	toBufIdx := func(pos uint64) uint64 {
		return uint64(float64(pos-startPos) / float64(endPos-startPos) * float64(nsamps))
	}

	cur := startPos
	for i := startIdx; i <= endIdx && i < len(c.instrEnd); i++ {
		segEnd := c.instrEnd[i]
		if segEnd > endPos {
			segEnd = endPos
		}
		segLen := segEnd - cur
		if segLen == 0 {
			continue
		}
		lo, hi := toBufIdx(cur), toBufIdx(cur+segLen)
		c.instrVal[i].EvalInplace(buffer[lo:hi])
		cur += segLen
	}

	return nil
}

// sampleTimes fills buffer with the sample times (in seconds) of the
// nsamps evenly spaced positions spanning [startPos, endPos) at sampRate.
func sampleTimes(startPos, endPos, nsamps uint64, sampRate float64, buffer []float64) {
	startT := float64(startPos) / sampRate
	endT := float64(endPos) / sampRate
	if nsamps == 1 {
		buffer[0] = startT
		return
	}
	step := (endT - startT) / float64(nsamps)
	for i := range buffer {
		buffer[i] = startT + step*float64(i)
	}
}
