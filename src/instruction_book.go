package expctrl

import "fmt"

// instrBook scopes an Instruction to a half-open sample interval [start, end)
// during the edit phase. keepVal controls what happens after end: if true,
// the value the instruction would have produced at end/sampRate is held
// forward as padding; otherwise the held value drops to zero. A channel's
// books are totally ordered by startPos, which is all add_instr needs to
// keep them pairwise disjoint.
type instrBook struct {
	startPos uint64
	endPos   uint64
	keepVal  bool
	instr    Instruction
}

// newInstrBook fails with ErrBadInterval if end is not strictly after start.
func newInstrBook(start, end uint64, keepVal bool, instr Instruction) (instrBook, error) {
	if end <= start {
		return instrBook{}, fmt.Errorf("%w: end_pos %d, start_pos %d", ErrBadInterval, end, start)
	}
	return instrBook{startPos: start, endPos: end, keepVal: keepVal, instr: instr}, nil
}

func (b instrBook) String() string {
	return fmt.Sprintf("instrBook(%s, %d-%d, keep=%v)", b.instr, b.startPos, b.endPos, b.keepVal)
}
