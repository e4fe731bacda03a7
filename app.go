package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kwv/uwbloc/locator"
	"golang.org/x/sync/errgroup"
)

// defaultServiceInterval paces a simulated agent when it is served over HTTP
const defaultServiceInterval = 200 * time.Millisecond

// App encapsulates the application state and dependencies
type App struct {
	Config       *locator.Config
	World        *locator.GridWorld
	Controller   *locator.Controller
	StateTracker *locator.StateTracker
	Hub          *locator.Hub
	Feed         *locator.LiveFeed
	MQTTClient   *locator.MQTTClient
	Publisher    *locator.Publisher
	Out          io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile string
	Steps      int
	Seed       uint64
	Interval   time.Duration
	OutputFile string
	HttpPort   int
	LiveMode   bool
	HttpMode   bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: locator.NewStateTracker(),
		Out:          os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Steps = opts.Steps
	a.Seed = opts.Seed
	a.Interval = opts.Interval
	a.OutputFile = opts.OutputFile
	a.HttpPort = opts.HttpPort
	a.LiveMode = opts.LiveMode
	a.HttpMode = opts.HttpMode
}

// RunSimulation runs the filter against a simulated agent for a.Steps cycles
func (a *App) RunSimulation(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.buildFilter(false); err != nil {
		return err
	}

	steps := a.Steps
	if steps <= 0 {
		steps = 50
	}
	fmt.Fprintf(a.Out, "Simulating %d cycles with %d particles\n", steps, a.Config.Filter.Particles)
	if err := a.Controller.RunSteps(ctx, steps); err != nil {
		return fmt.Errorf("simulation interrupted: %w", err)
	}

	snap, ok := a.StateTracker.GetSnapshot()
	if !ok {
		return fmt.Errorf("simulation produced no cycles")
	}
	fmt.Fprintln(a.Out, summarize(snap))

	if a.OutputFile != "" {
		if err := a.renderSnapshot(a.OutputFile, snap); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Wrote %s\n", a.OutputFile)
	}
	return nil
}

// RunService runs the filter until ctx is cancelled. With LiveMode the
// readings come from the tag uplink; otherwise a simulated agent is paced so
// it can be watched over HTTP.
func (a *App) RunService(ctx context.Context) error {
	fmt.Fprintln(a.Out, "Starting uwbloc service...")

	if err := a.loadConfig(); err != nil {
		return err
	}
	if !a.LiveMode && a.Interval <= 0 {
		a.Interval = defaultServiceInterval
	}
	if err := a.buildFilter(a.LiveMode); err != nil {
		return err
	}

	if a.LiveMode {
		client, err := locator.InitMQTT(a.Config, a.handleUplink)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = client
		defer client.Disconnect()

		a.Publisher = locator.NewPublisher(client.GetClient(), a.Config.MQTT.PublishPrefix, a.Config.Tag.ID)
		a.Controller.AddObserver(a.Publisher)
		fmt.Fprintln(a.Out, "MQTT estimate publisher initialized")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Controller.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("filter loop: %w", err)
		}
		return nil
	})

	if a.HttpMode {
		srv := &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler: newHTTPServer(a.StateTracker, a.World, a.Hub),
		}
		g.Go(func() error {
			log.Printf("[HTTP] Starting server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.printServiceInfo()

	err := g.Wait()
	fmt.Fprintln(a.Out, "\nService stopped")
	return err
}

// handleUplink stages one tag uplink for the filter goroutine
func (a *App) handleUplink(tagID string, payload []byte) {
	if err := a.Feed.HandlePayload(payload); err != nil {
		log.Printf("[MQTT] Ignoring uplink from tag %s: %v", tagID, err)
	}
}

// loadConfig reads ConfigFile, falling back to the built-in room when the
// default file is absent
func (a *App) loadConfig() error {
	config, err := locator.LoadConfig(a.ConfigFile)
	if err != nil {
		if _, statErr := os.Stat(a.ConfigFile); !os.IsNotExist(statErr) || a.ConfigFile != "config.yaml" {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log.Printf("No %s found, using the built-in 3.4m x 3.4m room", a.ConfigFile)
		config = locator.DefaultConfig()
	} else {
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.Seed != 0 {
		config.Filter.Seed = a.Seed
	}
	a.Config = config
	return nil
}

// buildFilter wires the world, the observation source and the controller
// together with the state tracker and websocket hub as observers
func (a *App) buildFilter(live bool) error {
	cfg := a.Config
	rng := locator.NewSource(cfg.Filter.Seed)

	world, err := locator.NewGridWorld(cfg.World, cfg.AnchorList(), rng)
	if err != nil {
		return fmt.Errorf("building world: %w", err)
	}

	var source locator.ObservationSource
	var agent *locator.Agent
	if live {
		a.Feed = locator.NewLiveFeed(cfg.Filter.SpeedWindow)
		agent = locator.NewAgent(0, 0, 0, 0)
		source = a.Feed
	} else {
		noise := locator.NewNoise(rng, cfg.Filter.ResampleJitter, cfg.Filter.InitJitter)
		if p := cfg.Filter.InitialPose; p != nil {
			agent = locator.NewAgent(p.X, p.Y, p.Heading, cfg.Simulation.Speed)
		} else {
			x, y := world.RandomFreePlace()
			agent = locator.NewAgent(x, y, noise.Heading(), cfg.Simulation.Speed)
		}
		source = locator.NewSimulatedSource(world, noise, cfg.Simulation.Dropout)
		log.Printf("[SIM] Agent starts at (%.1f, %.1f) heading %.0f°", agent.X, agent.Y, agent.Heading)
	}

	ctrl, err := locator.NewController(cfg.Filter, world, locator.Paced(source, a.Interval), agent, rng)
	if err != nil {
		return fmt.Errorf("creating filter: %w", err)
	}

	a.World = world
	a.Controller = ctrl
	a.Hub = locator.NewHub(locator.NewWorldInfo(world))
	ctrl.AddObserver(a.StateTracker)
	ctrl.AddObserver(a.Hub)
	ctrl.AddObserver(locator.CycleObserverFunc(logCycle))
	return nil
}

// renderSnapshot writes snap as SVG or PNG depending on the file extension
func (a *App) renderSnapshot(path string, snap locator.Snapshot) error {
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		if err := locator.NewVectorRenderer(a.World).RenderToSVG(f, snap); err != nil {
			return fmt.Errorf("rendering %s: %w", path, err)
		}
		return nil
	}
	return locator.NewSnapshotRenderer(a.World).SavePNG(path, snap)
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	if a.LiveMode {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Subscribed topic: %s (%s)\n", a.Config.TagTopic(), a.Config.Tag.ID)
		fmt.Fprintf(a.Out, "  Publishing to: %s\n", a.Publisher.Topic())
	} else {
		fmt.Fprintf(a.Out, "\nSimulated agent, one cycle every %v\n", a.Interval)
	}

	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.Out, "  GET /health            - Health check")
		fmt.Fprintln(a.Out, "  GET /state.json        - Latest cycle")
		fmt.Fprintln(a.Out, "  GET /live.png          - Raster render of the latest cycle")
		fmt.Fprintln(a.Out, "  GET /live.svg          - Vector render of the latest cycle")
		fmt.Fprintln(a.Out, "  GET /live-vector.png   - Vector render rasterized to PNG")
		fmt.Fprintln(a.Out, "  GET /particles.geojson - Latest cycle as GeoJSON")
		fmt.Fprintln(a.Out, "  GET /ws                - Websocket cycle stream")
	}

	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}

// logCycle logs every tenth cycle and every reseed
func logCycle(r locator.CycleResult) {
	if r.Cycle%10 != 0 && !r.Reseeded {
		return
	}
	if !r.Estimate.Valid {
		log.Printf("[FILTER] Cycle %d: no estimate", r.Cycle)
		return
	}
	log.Printf("[FILTER] Cycle %d: est (%.1f, %.1f) confident=%v near=%d degenerate=%d",
		r.Cycle, r.Estimate.X, r.Estimate.Y, r.Estimate.Confident, r.Estimate.Near, r.Weights.Degenerate)
}

func summarize(s locator.Snapshot) string {
	if !s.Estimate.Valid {
		return fmt.Sprintf("Cycle %d: no estimate, agent at (%.1f, %.1f)", s.Cycle, s.Agent.X, s.Agent.Y)
	}
	dx, dy := s.Estimate.X-s.Agent.X, s.Estimate.Y-s.Agent.Y
	state := "searching"
	if s.Estimate.Confident {
		state = "confident"
	}
	return fmt.Sprintf("Cycle %d: estimate (%.1f, %.1f), agent (%.1f, %.1f), error %.1f cm, %s",
		s.Cycle, s.Estimate.X, s.Estimate.Y, s.Agent.X, s.Agent.Y, math.Hypot(dx, dy), state)
}
