// Command tonepreview compiles a single analog channel's waveform and
// plays it through the default sound device via portaudio, for previewing
// a waveform without any NI-DAQ hardware attached.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	expctrl "github.com/Semeghini-Lab/NI-experiment-control-sub000/src"
)

func main() {
	var freq = pflag.Float64P("freq", "f", 440, "Sine frequency in Hz")
	var amplitude = pflag.Float64P("amplitude", "a", 1, "Sine amplitude")
	var durationSec = pflag.Float64P("duration", "d", 2, "Duration to play, in seconds")
	var sampRate = pflag.Float64P("samp-rate", "r", 44100, "Sample rate in Hz")
	var bufMs = pflag.Float64P("buf-ms", "b", 200, "Output buffer size as a time budget, in milliseconds")
	var reps = pflag.IntP("reps", "n", 1, "Number of times to repeat the waveform")
	var help = pflag.Bool("help", false, "Display help text")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - preview a sine waveform through the default sound device.\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	exp := expctrl.NewExperiment()
	if err := exp.AddAODevice("preview", "PFI0", true, *sampRate); err != nil {
		expctrl.Logger.Fatal("could not register device", "err", err)
	}
	if _, err := exp.AddAOChannel("preview", 0); err != nil {
		expctrl.Logger.Fatal("could not register channel", "err", err)
	}
	if err := exp.Sine("preview", "ao0", 0, *durationSec, false, *freq, expctrl.WithAmplitude(*amplitude)); err != nil {
		expctrl.Logger.Fatal("could not schedule waveform", "err", err)
	}
	if _, err := exp.Compile(); err != nil {
		expctrl.Logger.Fatal("could not compile", "err", err)
	}

	coord := expctrl.NewStreamingCoordinator(exp, func(d *expctrl.Device) (expctrl.HardwareTask, error) {
		return expctrl.NewAudioHardwareTask(), nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*reps)*(time.Duration(*durationSec*float64(time.Second))+time.Second))
	defer cancel()

	expctrl.Logger.Info("playing preview", "freq", *freq, "amplitude", *amplitude, "duration", *durationSec, "reps", *reps)
	if err := coord.Stream(ctx, *bufMs, *reps); err != nil {
		expctrl.Logger.Fatal("stream failed", "err", err)
	}
}
