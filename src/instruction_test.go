package expctrl

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstInstructionEval(t *testing.T) {
	var instr = NewConstInstruction(3.5)
	var buf = []float64{0, 1, 2}
	instr.EvalInplace(buf)
	assert.Equal(t, []float64{3.5, 3.5, 3.5}, buf)
}

func TestSineInstructionDefaults(t *testing.T) {
	var instr, err = NewSineInstruction(1.0)
	require.NoError(t, err)

	var buf = []float64{0.25} // quarter period: sin(2*pi*1*0.25) == 1
	instr.EvalInplace(buf)
	assert.InDelta(t, 1.0, buf[0], 1e-9)
}

func TestSineInstructionOptions(t *testing.T) {
	var instr, err = NewSineInstruction(1.0, WithAmplitude(2), WithOffset(5), WithPhase(math.Pi/2))
	require.NoError(t, err)

	var buf = []float64{0} // phase shift of pi/2 makes t=0 the peak
	instr.EvalInplace(buf)
	assert.InDelta(t, 7.0, buf[0], 1e-9) // amplitude*1 + offset
}

func TestSineInstructionMissingFreq(t *testing.T) {
	var _, err = newInstruction(InstrSine, instrArgs{})
	assert.ErrorIs(t, err, ErrBadInstruction)
}

func TestInstructionEqual(t *testing.T) {
	var a = NewConstInstruction(1)
	var b = NewConstInstruction(1)
	var c = NewConstInstruction(2)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	var sineA, _ = NewSineInstruction(10)
	var sineB, _ = NewSineInstruction(10)
	var sineC, _ = NewSineInstruction(20)
	assert.True(t, sineA.Equal(sineB))
	assert.False(t, sineA.Equal(sineC))
	assert.False(t, a.Equal(sineA))
}

func TestInstructionBookBadInterval(t *testing.T) {
	var _, err = newInstrBook(10, 10, false, NewConstInstruction(0))
	assert.True(t, errors.Is(err, ErrBadInterval))

	var _, err2 = newInstrBook(10, 5, false, NewConstInstruction(0))
	assert.True(t, errors.Is(err2, ErrBadInterval))
}
