// Command expctrlhost loads an experiment topology, builds the experiment
// from it, optionally announces itself over DNS-SD, and then waits for a
// shutdown signal, resetting every device on the way out. It accepts no
// scheduling commands and does not compile or stream the experiment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brutella/dnssd"
	"github.com/spf13/pflag"

	expctrl "github.com/Semeghini-Lab/NI-experiment-control-sub000/src"
)

const dnssdServiceType = "_expctrl._tcp"

func main() {
	var topologyPath = pflag.StringP("topology", "t", "", "Path to the experiment topology YAML file (required)")
	var errorLogPath = pflag.StringP("error-log", "e", "nidaqmx_error.logs", "Path to the hardware error log")
	var announceName = pflag.StringP("dns-sd-name", "n", "", "Service name to announce over DNS-SD; default is the hostname")
	var announcePort = pflag.IntP("dns-sd-port", "p", 0, "Port to announce over DNS-SD; 0 disables announcement")
	var help = pflag.Bool("help", false, "Display help text")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - load a topology and wait for a shutdown signal.\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help || *topologyPath == "" {
		pflag.Usage()
		if *topologyPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	sink, err := expctrl.NewFileErrorLogSink(*errorLogPath)
	if err != nil {
		expctrl.Logger.Fatal("could not open hardware error log", "err", err)
	}
	defer sink.Close()

	top, err := expctrl.LoadTopology(*topologyPath)
	if err != nil {
		expctrl.Logger.Fatal("could not load topology", "err", err)
	}

	exp, err := top.Build()
	if err != nil {
		expctrl.Logger.Fatal("could not build experiment from topology", "err", err)
	}

	expctrl.Logger.Info("experiment topology loaded", "devices", len(top.Devices), "path", *topologyPath)

	if *announcePort > 0 {
		announceHost(*announceName, *announcePort)
	}

	newTask := func(dev *expctrl.Device) (expctrl.HardwareTask, error) {
		if dev.Kind() == expctrl.Analog {
			return expctrl.NewAudioHardwareTask(), nil
		}
		return expctrl.NewGPIOHardwareTask("gpiochip0"), nil
	}
	coord := expctrl.NewStreamingCoordinator(exp, newTask, sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runHost(ctx, coord)
}

// runHost stands in for the control-protocol loop: a real deployment would
// accept scheduling commands over a network listener (à la the KISS TCP
// server this tool's ancestor exposed) and drive coord.Stream accordingly.
// Here it simply waits for the host to be asked to shut down, since wiring
// a wire protocol is out of scope for this tool.
func runHost(ctx context.Context, coord *expctrl.StreamingCoordinator) {
	expctrl.Logger.Info("expctrlhost ready, waiting for shutdown signal")
	<-ctx.Done()
	expctrl.Logger.Info("expctrlhost shutting down")

	if err := coord.ResetAll(context.Background()); err != nil {
		expctrl.Logger.Error("error resetting devices on shutdown", "err", err)
	}
}

func announceHost(name string, port int) {
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "expctrlhost"
		}
		name = hostname
	}

	cfg := dnssd.Config{
		Name: name,
		Type: dnssdServiceType,
		Port: port,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		expctrl.Logger.Error("DNS-SD: failed to create service", "err", err)
		return
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		expctrl.Logger.Error("DNS-SD: failed to create responder", "err", err)
		return
	}

	if _, err := responder.Add(svc); err != nil {
		expctrl.Logger.Error("DNS-SD: failed to add service", "err", err)
		return
	}

	expctrl.Logger.Info("DNS-SD: announcing control host", "name", name, "port", port)

	go func() {
		if err := responder.Respond(context.Background()); err != nil {
			expctrl.Logger.Error("DNS-SD: responder error", "err", err)
		}
	}()
}
