package locator

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"golang.org/x/exp/rand"
)

// headingUnknownMinParticles is the population size below which a filter
// without heading information tends not to converge
const headingUnknownMinParticles = 3000

// CycleResult describes one completed filter cycle
type CycleResult struct {
	Cycle     int           `json:"cycle"`
	Timestamp time.Time     `json:"timestamp"`
	Anchors   []Anchor      `json:"anchors"`
	Reference Reading       `json:"-"`
	Particles []Particle    `json:"particles"` // scored population before resampling
	Estimate  Estimate      `json:"estimate"`
	Agent     Agent         `json:"agent"` // pose the reading was taken at
	Weights   WeightStats   `json:"weights"`
	Resample  ResampleStats `json:"resample"`
	Reseeded  bool          `json:"reseeded"` // every weight was zero
}

// CycleObserver receives every completed cycle on the filter goroutine
type CycleObserver interface {
	ObserveCycle(CycleResult)
}

// CycleObserverFunc adapts a function to CycleObserver
type CycleObserverFunc func(CycleResult)

// ObserveCycle calls f(r)
func (f CycleObserverFunc) ObserveCycle(r CycleResult) {
	f(r)
}

// Controller owns the population and runs predict-update-resample cycles
type Controller struct {
	cfg        FilterConfig
	world      World
	source     ObservationSource
	likelihood *Likelihood
	resampler  *Resampler
	noise      *Noise

	population *Population
	agent      *Agent
	observers  []CycleObserver
	cycle      int
}

// NewController builds a filter over world fed by source. The initial
// population is uniform over free space, or seeded around cfg.InitialPose.
func NewController(cfg FilterConfig, world World, source ObservationSource, agent *Agent, rng *rand.Rand) (*Controller, error) {
	if cfg.Particles < 1 {
		return nil, fmt.Errorf("particle count must be at least 1, got %d", cfg.Particles)
	}
	if agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if !cfg.DegeneratePolicy.Valid() {
		cfg.DegeneratePolicy = KeepPriorWeight
	}
	lik, err := NewLikelihood(cfg.Sigma)
	if err != nil {
		return nil, fmt.Errorf("creating likelihood: %w", err)
	}

	noise := NewNoise(rng, cfg.ResampleJitter, cfg.InitJitter)
	c := &Controller{
		cfg:        cfg,
		world:      world,
		source:     source,
		likelihood: lik,
		resampler:  NewResampler(world, noise, rng, cfg.HeadingKnown),
		noise:      noise,
		agent:      agent,
	}

	if p := cfg.InitialPose; p != nil {
		c.population = SeedAround(cfg.Particles, p.X, p.Y, p.Heading, noise)
	} else {
		c.population = NewRandomPopulation(cfg.Particles, world, noise)
	}

	if !cfg.HeadingKnown && cfg.Particles < headingUnknownMinParticles {
		log.Printf("[FILTER] Warning: heading unknown with %d particles; %d or more recommended",
			cfg.Particles, headingUnknownMinParticles)
	}
	return c, nil
}

// AddObserver registers o for every subsequent cycle
func (c *Controller) AddObserver(o CycleObserver) {
	c.observers = append(c.observers, o)
}

// Population returns the current population
func (c *Controller) Population() *Population {
	return c.population
}

// Agent returns a copy of the agent state
func (c *Controller) Agent() Agent {
	return *c.agent
}

// Cycles returns the number of completed cycles
func (c *Controller) Cycles() int {
	return c.cycle
}

// Step runs one cycle. It returns false without touching the population
// when the source has no observation.
func (c *Controller) Step() (CycleResult, bool) {
	obs, ok := c.source.Next(c.agent)
	if !ok {
		return CycleResult{}, false
	}
	observedAt := *c.agent

	weights := c.population.UpdateWeights(obs, c.world, c.likelihood, c.cfg.DegeneratePolicy)
	estimate := c.population.WeightedMean(c.cfg.ConfidenceDistance, c.cfg.ConfidenceRatio, c.world)
	scored := c.population.Snapshot()

	reseeded := !c.population.Normalize()
	if reseeded {
		log.Printf("[FILTER] Cycle %d: every particle has zero weight, resampling uniformly", c.cycle+1)
	}

	next, stats := c.resampler.Resample(c.population, c.agent)
	speed, delta := c.source.Predict(c.agent)
	next.Advance(speed, delta, c.cfg.MotionNoise, c.noise)
	c.population = next
	c.cycle++

	result := CycleResult{
		Cycle:     c.cycle,
		Timestamp: time.Now(),
		Anchors:   obs.Anchors,
		Reference: obs.Reference,
		Particles: scored,
		Estimate:  estimate,
		Agent:     observedAt,
		Weights:   weights,
		Resample:  stats,
		Reseeded:  reseeded,
	}
	for _, o := range c.observers {
		o.ObserveCycle(result)
	}
	return result, true
}

// Run cycles until ctx is cancelled. Ticks without an observation yield the
// processor instead of waiting.
func (c *Controller) Run(ctx context.Context) error {
	return c.RunSteps(ctx, 0)
}

// RunSteps cycles until n cycles have completed (n <= 0 means unbounded) or
// ctx is cancelled
func (c *Controller) RunSteps(ctx context.Context, n int) error {
	done := 0
	for n <= 0 || done < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, ok := c.Step(); ok {
			done++
		} else {
			runtime.Gosched()
		}
	}
	return nil
}
