package expctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestStreamCounterWrapsAtSeqLen(t *testing.T) {
	var c = NewStreamCounter(10, 4)

	var start, end = c.TickNext()
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, uint64(4), end)

	start, end = c.TickNext()
	assert.Equal(t, uint64(4), start)
	assert.Equal(t, uint64(8), end)

	start, end = c.TickNext() // last window shorter than size
	assert.Equal(t, uint64(8), start)
	assert.Equal(t, uint64(10), end)

	start, end = c.TickNext() // wrapped back to the start
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, uint64(4), end)
}

func TestStreamCounterExactMultipleWrapsCleanly(t *testing.T) {
	var c = NewStreamCounter(8, 4)

	var _, end1 = c.TickNext()
	assert.Equal(t, uint64(4), end1)

	var _, end2 = c.TickNext()
	assert.Equal(t, uint64(8), end2)
	assert.Equal(t, uint64(0), c.pos)
}

// Successive windows always tile [0, seqLen) exactly: each window starts
// where the previous one ended, and no window ever extends past seqLen.
func TestStreamCounterTilesSequence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var seqLen = rapid.Uint64Range(1, 1000).Draw(t, "seqLen")
		var size = rapid.Uint64Range(1, 1000).Draw(t, "size")
		var c = NewStreamCounter(seqLen, size)

		var prevEnd uint64
		for i := 0; i < 5; i++ {
			var start, end = c.TickNext()
			assert.Equal(t, prevEnd, start)
			assert.LessOrEqual(t, end, seqLen)
			if end == seqLen {
				prevEnd = 0
			} else {
				prevEnd = end
			}
		}
	})
}
