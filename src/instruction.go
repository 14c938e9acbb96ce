package expctrl

import (
	"fmt"
	"math"
)

// InstrType identifies which waveform family an Instruction evaluates.
// Additional families plug in as new InstrType values plus a case in
// eval_inplace; the argument-map validation in newInstruction grows one
// case to match.
type InstrType int

const (
	InstrConst InstrType = iota
	InstrSine
)

func (t InstrType) String() string {
	switch t {
	case InstrConst:
		return "CONST"
	case InstrSine:
		return "SINE"
	default:
		return fmt.Sprintf("InstrType(%d)", int(t))
	}
}

// instrArgs is a dynamically-typed argument dictionary, kept for parity
// with the original Rust backend's InstrArgs. Required keys are validated
// once at construction time in newInstruction; everything downstream
// (eval_inplace, equality) only ever reads from this map, so adding a new
// waveform family never requires touching Channel or Device.
type instrArgs map[string]float64

// Instruction is a pure, reentrant function of time: EvalInplace overwrites
// a slice of sample times with the instruction's value at those times.
// Equality is structural (variant + arguments), which is what makes the
// adjacent-segment coalescing in Channel.Compile correct.
type Instruction struct {
	kind InstrType
	args instrArgs
}

// newInstruction validates that args carries every key InstrType requires
// and fails with ErrBadInstruction if one is missing.
func newInstruction(kind InstrType, args instrArgs) (Instruction, error) {
	required := map[InstrType][]string{
		InstrConst: {"value"},
		InstrSine:  {"freq"},
	}[kind]

	for _, key := range required {
		if _, ok := args[key]; !ok {
			return Instruction{}, fmt.Errorf("%w: %s instruction missing key %q", ErrBadInstruction, kind, key)
		}
	}

	return Instruction{kind: kind, args: args}, nil
}

// NewConstInstruction builds a constant-value instruction.
func NewConstInstruction(value float64) Instruction {
	instr, err := newInstruction(InstrConst, instrArgs{"value": value})
	if err != nil {
		// newInstruction always supplies "value" above; this cannot fail.
		panic(err)
	}
	return instr
}

// SineOption customizes a NewSineInstruction call. Unset options keep the
// documented defaults: amplitude=1.0, phase=0.0, offset=0.0.
type SineOption func(instrArgs)

func WithAmplitude(amplitude float64) SineOption {
	return func(a instrArgs) { a["amplitude"] = amplitude }
}

func WithPhase(phase float64) SineOption {
	return func(a instrArgs) { a["phase"] = phase }
}

func WithOffset(offset float64) SineOption {
	return func(a instrArgs) { a["offset"] = offset }
}

// NewSineInstruction builds a sine instruction; amplitude, phase, and
// offset default to 1.0, 0.0, and 0.0 respectively unless overridden by a
// SineOption.
func NewSineInstruction(freq float64, opts ...SineOption) (Instruction, error) {
	args := instrArgs{"freq": freq}
	for _, opt := range opts {
		opt(args)
	}
	return newInstruction(InstrSine, args)
}

// Equal reports structural equality: same variant, same arguments.
func (i Instruction) Equal(other Instruction) bool {
	if i.kind != other.kind {
		return false
	}
	if len(i.args) != len(other.args) {
		return false
	}
	for k, v := range i.args {
		if ov, ok := other.args[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// EvalInplace overwrites each element of t with the instruction's value at
// that sample time. t is both the input (sample times in seconds) and the
// output (the evaluated signal) — the caller is expected to have pre-filled
// it with the actual sample times before this call.
func (i Instruction) EvalInplace(t []float64) {
	switch i.kind {
	case InstrConst:
		value := i.args["value"]
		for idx := range t {
			t[idx] = value
		}
	case InstrSine:
		freq := i.args["freq"]
		amplitude := argOrDefault(i.args, "amplitude", 1.0)
		phase := argOrDefault(i.args, "phase", 0.0)
		offset := argOrDefault(i.args, "offset", 0.0)
		for idx, tv := range t {
			t[idx] = math.Sin(2*math.Pi*freq*tv+phase)*amplitude + offset
		}
	}
}

func argOrDefault(args instrArgs, key string, def float64) float64 {
	if v, ok := args[key]; ok {
		return v
	}
	return def
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s%v", i.kind, i.args)
}
