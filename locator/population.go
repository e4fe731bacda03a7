package locator

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// Observation is one reference reading together with the anchors it was
// ranged against
type Observation struct {
	Reference Reading
	Anchors   []Anchor
}

// Estimate is the weighted-mean position of a population
type Estimate struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Valid     bool    `json:"valid"`
	Confident bool    `json:"confident"`
	Near      int     `json:"near"` // particles within the confidence distance
}

// WeightStats summarizes one weight update
type WeightStats struct {
	Scored     int `json:"scored"`
	Occupied   int `json:"occupied"`
	Degenerate int `json:"degenerate"`
	Mismatched int `json:"mismatched"`
}

// Population is the filter's set of weighted hypotheses
type Population struct {
	Particles []Particle
}

// NewRandomPopulation places n particles uniformly in free space with
// uniform headings
func NewRandomPopulation(n int, world World, noise *Noise) *Population {
	p := &Population{Particles: make([]Particle, n)}
	for i := range p.Particles {
		x, y := world.RandomFreePlace()
		p.Particles[i] = Particle{X: x, Y: y, Heading: noise.Heading(), Weight: 1}
	}
	return p
}

// SeedAround places n particles around a known pose, perturbed with the
// initialization jitter
func SeedAround(n int, x, y, heading float64, noise *Noise) *Population {
	p := &Population{Particles: make([]Particle, n)}
	for i := range p.Particles {
		v := noise.Some(x, y, heading)
		p.Particles[i] = Particle{X: v[0], Y: v[1], Heading: normalizeHeading(v[2]), Weight: 1}
	}
	return p
}

// Len returns the population size
func (p *Population) Len() int {
	return len(p.Particles)
}

// TotalWeight returns the sum of all weights
func (p *Population) TotalWeight() float64 {
	return floats.Sum(p.weights())
}

func (p *Population) weights() []float64 {
	w := make([]float64, len(p.Particles))
	for i, pt := range p.Particles {
		w[i] = pt.Weight
	}
	return w
}

// UpdateWeights scores every particle against the observation. Particles in
// occupied space get weight 0. A particle with no comparable anchors keeps
// its prior weight or drops to 0 depending on policy.
func (p *Population) UpdateWeights(obs Observation, world World, lik *Likelihood, policy DegeneratePolicy) WeightStats {
	var stats WeightStats
	for i := range p.Particles {
		pt := &p.Particles[i]
		if !world.IsFree(pt.X, pt.Y) {
			pt.Weight = 0
			stats.Occupied++
			continue
		}

		w, err := lik.Score(obs.Reference, ReadSensors(*pt, world, obs.Anchors, nil))
		switch {
		case err == nil:
			pt.Weight = w
			stats.Scored++
		case errors.Is(err, ErrDegenerateLikelihood):
			if policy == ZeroWeight {
				pt.Weight = 0
			}
			stats.Degenerate++
		default:
			pt.Weight = 0
			stats.Mismatched++
		}
	}
	return stats
}

// Normalize scales weights to sum to 1. With a zero total the weights are
// left untouched and false is returned.
func (p *Population) Normalize() bool {
	total := p.TotalWeight()
	if total <= 0 {
		return false
	}
	for i := range p.Particles {
		p.Particles[i].Weight /= total
	}
	return true
}

// Advance rotates every particle by headingDelta and then moves it speed
// along its heading
func (p *Population) Advance(speed, headingDelta float64, noisy bool, noise *Noise) {
	for i := range p.Particles {
		pt := &p.Particles[i]
		pt.Heading = normalizeHeading(pt.Heading + headingDelta)
		displace(pt, speed, noisy, noise)
	}
}

// WeightedMean computes the weight-weighted centroid. It is confident when
// more than ratio of all particles lie strictly closer than threshold to it.
func (p *Population) WeightedMean(threshold, ratio float64, world World) Estimate {
	var mx, my, total float64
	for _, pt := range p.Particles {
		mx += pt.X * pt.Weight
		my += pt.Y * pt.Weight
		total += pt.Weight
	}
	if total <= 0 {
		return Estimate{X: -1, Y: -1}
	}

	est := Estimate{X: mx / total, Y: my / total, Valid: true}
	for _, pt := range p.Particles {
		if world.EuclideanDist(pt.X, pt.Y, est.X, est.Y) < threshold {
			est.Near++
		}
	}
	est.Confident = float64(est.Near) > float64(len(p.Particles))*ratio
	return est
}

// Snapshot returns a copy of the particles
func (p *Population) Snapshot() []Particle {
	return append([]Particle(nil), p.Particles...)
}
