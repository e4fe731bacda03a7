package locator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_ConvergesOnSimulatedAgent(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(2024)
	cfg := DefaultConfig().Filter

	agent := NewAgent(170, 170, 30, 5)
	source := NewSimulatedSource(w, NewNoise(rng, cfg.ResampleJitter, cfg.InitJitter), 0)
	c, err := NewController(cfg, w, source, agent, rng)
	require.NoError(t, err)

	var last CycleResult
	for i := 0; i < 30; i++ {
		r, ok := c.Step()
		require.True(t, ok)
		last = r
	}

	require.True(t, last.Estimate.Valid)
	assert.Equal(t, 30, last.Cycle)
	assert.Equal(t, 30, c.Cycles())
	assert.Less(t, dist(last.Estimate.X, last.Estimate.Y, last.Agent.X, last.Agent.Y), 25.0,
		"estimate (%.1f, %.1f) vs agent (%.1f, %.1f)", last.Estimate.X, last.Estimate.Y, last.Agent.X, last.Agent.Y)
	assert.Equal(t, cfg.Particles, c.Population().Len())
	assert.Len(t, last.Particles, cfg.Particles)
	assert.Len(t, last.Anchors, 4)
}

func TestController_NoObservationIsNoop(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(1)
	cfg := smallFilterConfig()

	c, err := NewController(cfg, w, &stubSource{}, NewAgent(10, 10, 0, 0), rng)
	require.NoError(t, err)
	before := c.Population().Snapshot()

	_, ok := c.Step()
	assert.False(t, ok)
	assert.Equal(t, before, c.Population().Particles)
	assert.Zero(t, c.Cycles())
}

func TestController_ObserversSeeEveryCycle(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(3)
	cfg := smallFilterConfig()

	source := NewSimulatedSource(w, NewNoise(rng, 5, 10), 0)
	c, err := NewController(cfg, w, source, NewAgent(100, 100, 0, 5), rng)
	require.NoError(t, err)

	var cycles []int
	c.AddObserver(CycleObserverFunc(func(r CycleResult) {
		cycles = append(cycles, r.Cycle)
	}))
	tracker := NewStateTracker()
	c.AddObserver(tracker)

	require.NoError(t, c.RunSteps(context.Background(), 3))
	assert.Equal(t, []int{1, 2, 3}, cycles)
	n, _ := tracker.Counts()
	assert.Equal(t, 3, n)
}

func TestController_RunStopsOnCancel(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(4)

	c, err := NewController(smallFilterConfig(), w, &stubSource{}, NewAgent(10, 10, 0, 0), rng)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestController_AllAnchorsDropped(t *testing.T) {
	w := newTestWorld(t)

	t.Run("keep prior weight", func(t *testing.T) {
		rng := NewSource(5)
		cfg := smallFilterConfig()
		source := NewSimulatedSource(w, NewNoise(rng, 5, 10), 1)
		c, err := NewController(cfg, w, source, NewAgent(100, 100, 0, 5), rng)
		require.NoError(t, err)

		r, ok := c.Step()
		require.True(t, ok)
		assert.False(t, r.Reseeded)
		assert.Equal(t, cfg.Particles, r.Weights.Degenerate)
		assert.Zero(t, r.Resample.Substituted)
	})

	t.Run("zero weight", func(t *testing.T) {
		rng := NewSource(5)
		cfg := smallFilterConfig()
		cfg.DegeneratePolicy = ZeroWeight
		source := NewSimulatedSource(w, NewNoise(rng, 5, 10), 1)
		c, err := NewController(cfg, w, source, NewAgent(100, 100, 0, 5), rng)
		require.NoError(t, err)

		r, ok := c.Step()
		require.True(t, ok)
		assert.True(t, r.Reseeded)
		assert.False(t, r.Estimate.Valid)
		assert.Equal(t, cfg.Particles, r.Resample.Substituted)
		assert.Equal(t, cfg.Particles, c.Population().Len())
	})
}

func TestController_InitialPose(t *testing.T) {
	w := newTestWorld(t)
	cfg := smallFilterConfig()
	cfg.InitialPose = &Pose{X: 50, Y: 60, Heading: 0}

	c, err := NewController(cfg, w, &stubSource{}, NewAgent(50, 60, 0, 0), NewSource(6))
	require.NoError(t, err)
	for _, p := range c.Population().Particles {
		assert.InDelta(t, 50, p.X, cfg.InitJitter)
		assert.InDelta(t, 60, p.Y, cfg.InitJitter)
	}
}

func TestNewController_Errors(t *testing.T) {
	w := newTestWorld(t)

	cfg := smallFilterConfig()
	cfg.Particles = 0
	_, err := NewController(cfg, w, &stubSource{}, NewAgent(0, 0, 0, 0), NewSource(1))
	assert.Error(t, err)

	cfg = smallFilterConfig()
	cfg.Sigma = 0
	_, err = NewController(cfg, w, &stubSource{}, NewAgent(0, 0, 0, 0), NewSource(1))
	assert.Error(t, err)

	_, err = NewController(smallFilterConfig(), w, &stubSource{}, nil, NewSource(1))
	assert.Error(t, err)
}

func TestPaced(t *testing.T) {
	w := newTestWorld(t)
	src := NewSimulatedSource(w, NewNoise(NewSource(1), 5, 10), 0)
	agent := NewAgent(100, 100, 0, 5)

	now := time.Unix(1000, 0)
	paced := Paced(src, time.Second).(*pacedSource)
	paced.now = func() time.Time { return now }

	_, ok := paced.Next(agent)
	assert.True(t, ok, "first tick passes")
	_, ok = paced.Next(agent)
	assert.False(t, ok, "second tick inside the interval is skipped")

	now = now.Add(time.Second)
	_, ok = paced.Next(agent)
	assert.True(t, ok)

	assert.Same(t, src, Paced(src, 0))
}

// ----- helpers -----

// stubSource never has an observation
type stubSource struct{}

func (s *stubSource) Next(*Agent) (Observation, bool)   { return Observation{}, false }
func (s *stubSource) Predict(*Agent) (float64, float64) { return 0, 0 }

func smallFilterConfig() FilterConfig {
	cfg := DefaultConfig().Filter
	cfg.Particles = 200
	return cfg
}
