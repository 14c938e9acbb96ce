package expctrl

// StreamCounter produces the successive [start, end) sample windows a
// streaming worker should fill next, cycling through [0, seqLen) with a
// fixed window size and wrapping back to 0 once the sequence is exhausted.
type StreamCounter struct {
	seqLen uint64
	size   uint64
	pos    uint64
}

// NewStreamCounter constructs a counter over a repeating sequence of length
// seqLen, yielding windows of size samples at a time.
func NewStreamCounter(seqLen, size uint64) *StreamCounter {
	return &StreamCounter{seqLen: seqLen, size: size}
}

// TickNext returns the next [start, end) window and advances the counter.
// end wraps to seqLen's boundary rather than overrunning it: the final
// window of a cycle may be shorter than size.
func (s *StreamCounter) TickNext() (start, end uint64) {
	start = s.pos
	end = start + s.size
	if end >= s.seqLen {
		end = s.seqLen
		s.pos = 0
	} else {
		s.pos = end
	}
	return start, end
}

// Reset rewinds the counter to the start of the sequence.
func (s *StreamCounter) Reset() {
	s.pos = 0
}

// SeqLen is the length of the repeating sequence this counter cycles over.
func (s *StreamCounter) SeqLen() uint64 { return s.seqLen }
