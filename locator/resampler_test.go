package locator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedDistribution_SkipsZeroWeights(t *testing.T) {
	d := NewWeightedDistribution([]Particle{
		{X: 1, Weight: 0},
		{X: 2, Weight: 1},
		{X: 3, Weight: 0},
		{X: 4, Weight: 3},
	})
	require.Equal(t, 2, d.Len())
	assert.Equal(t, 4.0, d.Total())

	tests := []struct {
		u     float64
		wantX float64
	}{
		{0, 2},
		{0.1, 2},
		{0.25, 2}, // boundary: leftmost cumulative sum >= target
		{0.26, 4},
		{0.999999, 4},
	}
	for _, tt := range tests {
		p, ok := d.Pick(tt.u)
		require.True(t, ok)
		assert.Equal(t, tt.wantX, p.X, "Pick(%v)", tt.u)
	}
}

func TestWeightedDistribution_Empty(t *testing.T) {
	d := NewWeightedDistribution([]Particle{{Weight: 0}, {Weight: 0}})
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0.0, d.Total())

	_, ok := d.Pick(0.5)
	assert.False(t, ok)
}

func TestResampler_PreservesSize(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(11)
	noise := NewNoise(rng, 5, 10)
	r := NewResampler(w, noise, rng, false)

	pop := NewRandomPopulation(777, w, noise)
	next, stats := r.Resample(pop, nil)

	assert.Equal(t, 777, next.Len())
	assert.Equal(t, 777, stats.Survivors)
	assert.Zero(t, stats.Substituted)
	for _, p := range next.Particles {
		assert.Equal(t, 1.0, p.Weight)
	}
}

func TestResampler_PreservesSize_Small(t *testing.T) {
	w := newTestWorld(t)

	for _, n := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			rng := NewSource(uint64(30 + n))
			noise := NewNoise(rng, 5, 10)
			r := NewResampler(w, noise, rng, false)

			next, _ := r.Resample(NewRandomPopulation(n, w, noise), nil)
			assert.Equal(t, n, next.Len())

			// a single surviving weight still fills every slot
			pop := NewRandomPopulation(n, w, noise)
			for i := range pop.Particles {
				pop.Particles[i].Weight = 0
			}
			pop.Particles[n-1].Weight = 1
			next, stats := r.Resample(pop, nil)
			assert.Equal(t, n, next.Len())
			assert.Equal(t, 1, stats.Survivors)
			assert.Zero(t, stats.Substituted)

			// and a degenerate one is fully substituted
			for i := range pop.Particles {
				pop.Particles[i].Weight = 0
			}
			next, stats = r.Resample(pop, nil)
			assert.Equal(t, n, next.Len())
			assert.Equal(t, n, stats.Substituted)
		})
	}
}

func TestResampler_DominantParticle(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(12)
	noise := NewNoise(rng, 5, 10)
	r := NewResampler(w, noise, rng, false)

	pop := &Population{Particles: make([]Particle, 1000)}
	for i := range pop.Particles {
		pop.Particles[i] = Particle{X: float64(i % 300), Y: 20, Heading: 10}
	}
	pop.Particles[321] = Particle{X: 200, Y: 150, Heading: 45, Weight: 1}

	next, stats := r.Resample(pop, nil)
	require.Equal(t, 1000, next.Len())
	assert.Equal(t, 1, stats.Survivors)
	for _, p := range next.Particles {
		assert.InDelta(t, 200, p.X, 5)
		assert.InDelta(t, 150, p.Y, 5)
		assert.InDelta(t, 45, p.Heading, 5)
	}
}

func TestResampler_DegeneratePopulation(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(13)
	noise := NewNoise(rng, 5, 10)
	r := NewResampler(w, noise, rng, false)

	pop := &Population{Particles: make([]Particle, 250)}
	next, stats := r.Resample(pop, nil)

	assert.Equal(t, 250, next.Len())
	assert.Equal(t, 250, stats.Substituted)
	for _, p := range next.Particles {
		assert.True(t, w.IsFree(p.X, p.Y))
		assert.Equal(t, 1.0, p.Weight)
	}
}

func TestResampler_HeadingKnown(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(14)
	noise := NewNoise(rng, 5, 10)
	r := NewResampler(w, noise, rng, true)
	agent := NewAgent(100, 100, 180, 5)

	pop := NewRandomPopulation(300, w, noise)
	next, _ := r.Resample(pop, agent)
	for _, p := range next.Particles {
		assert.InDelta(t, 180, p.Heading, 5)
	}
}

func TestResampler_OneCycleConvergence(t *testing.T) {
	w := newTestWorld(t)
	rng := NewSource(21)
	noise := NewNoise(rng, 5, 10)
	lik, err := NewLikelihood(5)
	require.NoError(t, err)

	truth := Particle{X: 170, Y: 170}
	anchors := w.Beacons()
	obs := Observation{Reference: ReadSensors(truth, w, anchors, nil), Anchors: anchors}

	pop := NewRandomPopulation(2000, w, noise)
	pop.UpdateWeights(obs, w, lik, KeepPriorWeight)
	require.True(t, pop.Normalize())

	next, _ := NewResampler(w, noise, rng, false).Resample(pop, nil)
	est := next.WeightedMean(25, 0.95, w)
	require.True(t, est.Valid)
	assert.Less(t, dist(est.X, est.Y, truth.X, truth.Y), 15.0,
		"resampled mean (%.1f, %.1f)", est.X, est.Y)
}
