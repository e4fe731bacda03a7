package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kwv/uwbloc/locator"
)

// newTestApp returns an App writing to a buffer with the built-in room config
// saved under a temp directory
func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "room.yaml")
	cfg := locator.DefaultConfig()
	cfg.Filter.Particles = 500
	if err := locator.SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	var out bytes.Buffer
	app := NewApp()
	app.Out = &out
	app.ApplyOptions(AppOptions{ConfigFile: path, Steps: 5, Seed: 11})
	return app, &out
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.StateTracker == nil {
		t.Error("StateTracker should be initialized")
	}
	if app.Out == nil {
		t.Error("Out should default to stdout")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile: "test-config.yaml",
		Steps:      12,
		Seed:       99,
		Interval:   time.Second,
		OutputFile: "test-output.png",
		HttpPort:   8080,
		LiveMode:   true,
		HttpMode:   false,
	}

	app.ApplyOptions(opts)

	if app.ConfigFile != "test-config.yaml" {
		t.Errorf("ConfigFile = %s, want test-config.yaml", app.ConfigFile)
	}
	if app.Steps != 12 {
		t.Errorf("Steps = %d, want 12", app.Steps)
	}
	if app.Seed != 99 {
		t.Errorf("Seed = %d, want 99", app.Seed)
	}
	if app.Interval != time.Second {
		t.Errorf("Interval = %v, want 1s", app.Interval)
	}
	if app.OutputFile != "test-output.png" {
		t.Errorf("OutputFile = %s, want test-output.png", app.OutputFile)
	}
	if app.HttpPort != 8080 {
		t.Errorf("HttpPort = %d, want 8080", app.HttpPort)
	}
	if !app.LiveMode || app.HttpMode {
		t.Errorf("modes = live %v http %v, want live only", app.LiveMode, app.HttpMode)
	}
}

func TestRunSimulation(t *testing.T) {
	app, out := newTestApp(t)

	if err := app.RunSimulation(context.Background()); err != nil {
		t.Fatalf("RunSimulation failed: %v", err)
	}

	cycles, _ := app.StateTracker.Counts()
	if cycles != 5 {
		t.Errorf("cycles = %d, want 5", cycles)
	}
	if app.Config.Filter.Seed != 11 {
		t.Errorf("seed flag not applied, got %d", app.Config.Filter.Seed)
	}
	if !strings.Contains(out.String(), "Cycle 5:") {
		t.Errorf("expected a summary of cycle 5, got: %s", out.String())
	}
}

func TestRunSimulation_RenderPNG(t *testing.T) {
	app, _ := newTestApp(t)
	app.OutputFile = filepath.Join(t.TempDir(), "final.png")

	if err := app.RunSimulation(context.Background()); err != nil {
		t.Fatalf("RunSimulation failed: %v", err)
	}

	f, err := os.Open(app.OutputFile)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("output is not a PNG: %v", err)
	}
}

func TestRunSimulation_RenderSVG(t *testing.T) {
	app, _ := newTestApp(t)
	app.OutputFile = filepath.Join(t.TempDir(), "final.svg")

	if err := app.RunSimulation(context.Background()); err != nil {
		t.Fatalf("RunSimulation failed: %v", err)
	}

	data, err := os.ReadFile(app.OutputFile)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Error("output is not an SVG document")
	}
}

func TestRunSimulation_Cancelled(t *testing.T) {
	app, _ := newTestApp(t)
	app.Steps = 1000000

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.RunSimulation(ctx); err == nil {
		t.Error("expected an error from a cancelled simulation")
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "nope.yaml")
	if err := app.loadConfig(); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoadConfig_DefaultFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	app := NewApp()
	app.ConfigFile = "config.yaml"
	if err := app.loadConfig(); err != nil {
		t.Fatalf("expected built-in config, got %v", err)
	}
	if len(app.Config.Anchors) != 4 {
		t.Errorf("expected the 4 built-in anchors, got %d", len(app.Config.Anchors))
	}
}

func TestRunService_SimulatedUntilCancelled(t *testing.T) {
	app, out := newTestApp(t)
	app.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunService(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !app.StateTracker.HasCycle() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunService returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunService did not stop after cancel")
	}

	if !app.StateTracker.HasCycle() {
		t.Error("expected at least one cycle")
	}
	if !strings.Contains(out.String(), "Service stopped") {
		t.Errorf("expected shutdown message, got: %s", out.String())
	}
}

func TestRunService_LiveWithoutBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app, _ := newTestApp(t)
	app.LiveMode = true

	if err := app.RunService(context.Background()); err == nil {
		t.Error("expected error when live mode has no broker")
	}
}

func TestHandleUplink(t *testing.T) {
	app, _ := newTestApp(t)
	if err := app.loadConfig(); err != nil {
		t.Fatal(err)
	}
	if err := app.buildFilter(true); err != nil {
		t.Fatal(err)
	}

	app.handleUplink("9A1C", []byte(`{"est_pos": {"x": 1.5, "y": 2.0},
		"all_anc_id": ["C584", "DA36", "9234", "8287"],
		"C584": {"x": 0.37, "y": 0.20, "dist_to": 2.0},
		"DA36": {"x": 0.21, "y": 3.35, "dist_to": 2.1},
		"9234": {"x": 2.95, "y": 2.78, "dist_to": 1.7},
		"8287": {"x": 2.69, "y": 0.36, "dist_to": 1.7}}`))
	app.handleUplink("9A1C", []byte(`not json`))

	r, ok := app.Controller.Step()
	if !ok {
		t.Fatal("expected the staged uplink to produce a cycle")
	}
	if len(r.Anchors) != 4 {
		t.Errorf("anchors = %d, want 4", len(r.Anchors))
	}
	if r.Agent.X != 150 || r.Agent.Y != 200 {
		t.Errorf("agent = (%.1f, %.1f), want (150, 200)", r.Agent.X, r.Agent.Y)
	}
	received, rejected, _ := app.Feed.Stats()
	if received != 2 || rejected != 1 {
		t.Errorf("stats = %d received %d rejected, want 2 and 1", received, rejected)
	}
}
