package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line
type AppOptions struct {
	ConfigFile string
	Simulate   bool
	LiveMode   bool
	HttpMode   bool
	HttpPort   int
	Steps      int
	Seed       uint64
	Interval   time.Duration
	OutputFile string
}

// Runner is the part of App that run drives
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunSimulation(ctx context.Context) error
	RunService(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("uwbloc", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&opts.Simulate, "simulate", false, "Run the filter against a simulated agent and exit after --steps cycles")
	fs.BoolVar(&opts.LiveMode, "live", false, "Track the configured tag from its MQTT uplink and publish estimates")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve state, renders and the websocket stream over HTTP")
	fs.IntVar(&opts.HttpPort, "port", 4040, "HTTP server port")
	fs.IntVar(&opts.Steps, "steps", 50, "Number of cycles for --simulate")
	fs.Uint64Var(&opts.Seed, "seed", 0, "Random seed (0 = config value, or time based)")
	fs.DurationVar(&opts.Interval, "interval", 0, "Minimum time between cycles (0 = as fast as readings arrive)")
	fs.StringVar(&opts.OutputFile, "render", "", "Write the final snapshot to this file (.png or .svg) after --simulate")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "uwbloc version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.LiveMode || opts.HttpMode:
		return app.RunService(ctx)
	case opts.Simulate:
		return app.RunSimulation(ctx)
	}

	fmt.Fprintln(out, "Use --simulate to run the filter against a simulated agent")
	fmt.Fprintln(out, "Use --simulate --render out.png to save the final cycle")
	fmt.Fprintln(out, "Use --live to track the configured tag over MQTT")
	fmt.Fprintln(out, "Use --http to serve /live.png, /state.json and the /ws stream")
	fmt.Fprintln(out, "Use --live --http to run both together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - world, anchors, MQTT and filter settings")
	return nil
}
