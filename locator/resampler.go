package locator

import (
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// WeightedDistribution is a read-only cumulative-weight view over the
// particles with positive weight
type WeightedDistribution struct {
	state      []Particle
	cumulative []float64
}

// NewWeightedDistribution snapshots particles with w > 0 in stored order
func NewWeightedDistribution(particles []Particle) *WeightedDistribution {
	state := make([]Particle, 0, len(particles))
	weights := make([]float64, 0, len(particles))
	for _, p := range particles {
		if p.Weight > 0 {
			state = append(state, p)
			weights = append(weights, p.Weight)
		}
	}
	cumulative := make([]float64, len(weights))
	floats.CumSum(cumulative, weights)
	return &WeightedDistribution{state: state, cumulative: cumulative}
}

// Len returns the number of particles with positive weight
func (d *WeightedDistribution) Len() int {
	return len(d.state)
}

// Total returns the sum of all positive weights
func (d *WeightedDistribution) Total() float64 {
	if len(d.cumulative) == 0 {
		return 0
	}
	return d.cumulative[len(d.cumulative)-1]
}

// Pick returns the first particle whose cumulative weight reaches u*Total,
// u in [0, 1). It reports false when no particle has positive weight.
func (d *WeightedDistribution) Pick(u float64) (Particle, bool) {
	if len(d.state) == 0 {
		return Particle{}, false
	}
	i := sort.SearchFloat64s(d.cumulative, u*d.Total())
	if i >= len(d.state) {
		// rounding can push the target past the last cumulative sum
		i = len(d.state) - 1
	}
	return d.state[i], true
}

// ResampleStats summarizes one resampling round
type ResampleStats struct {
	Survivors   int `json:"survivors"`   // parents with positive weight
	Substituted int `json:"substituted"` // draws replaced by a random free particle
}

// Resampler draws a new population proportional to weight
type Resampler struct {
	world        World
	noise        *Noise
	rng          *rand.Rand
	headingKnown bool
}

// NewResampler creates a resampler. With headingKnown set children take the
// agent's heading instead of their parent's.
func NewResampler(world World, noise *Noise, rng *rand.Rand, headingKnown bool) *Resampler {
	return &Resampler{world: world, noise: noise, rng: rng, headingKnown: headingKnown}
}

// Resample returns a fresh population of the same size. Every draw from a
// population with no positive weight becomes a uniformly random free particle.
func (r *Resampler) Resample(pop *Population, agent *Agent) (*Population, ResampleStats) {
	dist := NewWeightedDistribution(pop.Particles)
	stats := ResampleStats{Survivors: dist.Len()}
	next := &Population{Particles: make([]Particle, len(pop.Particles))}

	for i := range next.Particles {
		parent, ok := dist.Pick(r.rng.Float64())
		if !ok {
			x, y := r.world.RandomFreePlace()
			next.Particles[i] = Particle{X: x, Y: y, Heading: r.noise.Heading(), Weight: 1}
			stats.Substituted++
			continue
		}

		heading := parent.Heading
		if r.headingKnown && agent != nil {
			heading = agent.Heading
		}
		v := r.noise.Little(parent.X, parent.Y, heading)
		next.Particles[i] = Particle{X: v[0], Y: v[1], Heading: normalizeHeading(v[2]), Weight: 1}
	}
	return next, stats
}
