// Command gpioline is a standalone diagnostic tool for driving a single
// digital output line through the gpiocdev adapter, independent of a full
// experiment compile, useful for bring-up and wiring checks.
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
	var chip = pflag.StringP("chip", "c", "gpiochip0", "GPIO chip device name")
	var dev = pflag.StringP("device", "d", "diag0", "Device name to register in the diagnostic experiment")
	var port = pflag.IntP("port", "p", 0, "Port number")
	var line = pflag.IntP("line", "l", 0, "Line number within the port")
	var durationMs = pflag.IntP("duration", "t", 500, "How long to drive the line high, in milliseconds")
	var bufMs = pflag.Float64P("buf-ms", "b", 100, "Output buffer size as a time budget, in milliseconds")
	var help = pflag.Bool("help", false, "Display help text")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - drive a single GPIO line high for a fixed duration.\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	exp := expctrl.NewExperiment()
	if err := exp.AddDODevice(*dev, "PFI0", true, 1000); err != nil {
		expctrl.Logger.Fatal("could not register device", "err", err)
	}
	if _, err := exp.AddDOChannel(*dev, *port, *line); err != nil {
		expctrl.Logger.Fatal("could not register channel", "err", err)
	}

	durationSec := float64(*durationMs) / 1000
	if err := exp.High(*dev, fmt.Sprintf("port%d/line%d", *port, *line), 0, durationSec); err != nil {
		expctrl.Logger.Fatal("could not schedule pulse", "err", err)
	}
	if _, err := exp.Compile(); err != nil {
		expctrl.Logger.Fatal("could not compile", "err", err)
	}

	coord := expctrl.NewStreamingCoordinator(exp, func(d *expctrl.Device) (expctrl.HardwareTask, error) {
		return expctrl.NewGPIOHardwareTask(*chip), nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*durationMs+500)*time.Millisecond)
	defer cancel()

	if err := coord.Stream(ctx, *bufMs, 1); err != nil {
		expctrl.Logger.Fatal("stream failed", "err", err)
	}
	expctrl.Logger.Info("pulse complete", "chip", *chip, "port", *port, "line", *line)
}
