package expctrl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestChannelAddInstrOverlapRejected(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	require.NoError(t, ch.Constant(1, 0, 1, false)) // [0, 1000)

	var err = ch.Constant(1, 0.5, 1, false) // [500, 1500) overlaps
	assert.True(t, errors.Is(err, ErrOverlap))
}

func TestChannelAddInstrAdjacentAccepted(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	require.NoError(t, ch.Constant(1, 0, 1, false)) // [0, 1000)
	require.NoError(t, ch.Constant(2, 1, 1, false)) // [1000, 2000)
	assert.Equal(t, 2, len(ch.books))
}

func TestChannelCompilePadsGapsWithZero(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	require.NoError(t, ch.Constant(5, 1, 1, false)) // [1000, 2000)
	require.NoError(t, ch.Compile(3000))

	var buf = make([]float64, 3)
	require.NoError(t, ch.FillSignalNSamps(0, 3000, 3, buf))
	assert.Equal(t, []float64{0, 5, 0}, buf)
}

func TestChannelCompileHoldsValueWhenKeepValSet(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	require.NoError(t, ch.Constant(7, 0, 0.5, true)) // [0, 500), held afterward
	require.NoError(t, ch.Compile(1000))

	var buf = make([]float64, 2)
	require.NoError(t, ch.FillSignalNSamps(0, 1000, 2, buf))
	assert.Equal(t, []float64{7, 7}, buf)
}

func TestChannelCompileRejectsStopPosTooEarly(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	require.NoError(t, ch.Constant(1, 1, 1, false)) // [1000, 2000)

	var err = ch.Compile(1500)
	assert.True(t, errors.Is(err, ErrStopPosTooEarly))
}

func TestChannelFillSignalRequiresCompiled(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	var buf = make([]float64, 1)
	var err = ch.FillSignalNSamps(0, 1, 1, buf)
	assert.True(t, errors.Is(err, ErrNotCompiled))
}

func TestChannelFillSignalOutOfRange(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	require.NoError(t, ch.Constant(1, 0, 1, false))
	require.NoError(t, ch.Compile(1000))

	var buf = make([]float64, 1)
	var err = ch.FillSignalNSamps(500, 2000, 1, buf)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

// Compiling a channel always produces a strictly increasing instrEnd array
// with no two adjacent equal segments, regardless of how many disjoint
// books were scheduled.
func TestChannelCompileInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var n = rapid.IntRange(0, 8).Draw(t, "n")
		var ch = NewChannel("ao0", 1000)

		var pos uint64
		for i := 0; i < n; i++ {
			var gap = rapid.Uint64Range(0, 5).Draw(t, "gap")
			var dur = rapid.Uint64Range(1, 10).Draw(t, "dur")
			var value = rapid.Float64Range(-10, 10).Draw(t, "value")

			pos += gap
			require.NoError(t, ch.AddInstr(NewConstInstruction(value), float64(pos)/1000, float64(dur)/1000, false))
			pos += dur
		}

		var stopPos = pos + rapid.Uint64Range(0, 20).Draw(t, "pad")
		require.NoError(t, ch.Compile(stopPos))

		for i := 1; i < len(ch.instrEnd); i++ {
			assert.Greater(t, ch.instrEnd[i], ch.instrEnd[i-1])
			assert.False(t, ch.instrVal[i].Equal(ch.instrVal[i-1]),
				"adjacent compiled segments should never be structurally equal")
		}
		if len(ch.instrEnd) > 0 {
			assert.Equal(t, stopPos, ch.instrEnd[len(ch.instrEnd)-1])
		}
	})
}

// Recompiling to the same stop position without any edits is a no-op
// (IsFreshCompiled stays true and the arrays don't change).
func TestChannelCompileIdempotent(t *testing.T) {
	var ch = NewChannel("ao0", 1000)
	require.NoError(t, ch.Constant(1, 0, 1, false))
	require.NoError(t, ch.Compile(2000))

	var firstEnd = append([]uint64{}, ch.instrEnd...)
	require.NoError(t, ch.Compile(2000))
	assert.Equal(t, firstEnd, ch.instrEnd)
	assert.True(t, ch.IsFreshCompiled())
}
