package locator

import (
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource returns the random source shared by the filter. A zero seed
// selects a time-based one.
func NewSource(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewSource(seed))
}

// Noise perturbs scalars with bounded uniform noise drawn from a single source
type Noise struct {
	rng    *rand.Rand
	little float64
	some   float64
}

// NewNoise creates a noise model. little is the resampling jitter level,
// some is the initialization jitter level.
func NewNoise(rng *rand.Rand, little, some float64) *Noise {
	return &Noise{rng: rng, little: little, some: some}
}

// Add returns a copy of values with independent Uniform[-level, level] noise added
func (n *Noise) Add(level float64, values ...float64) []float64 {
	out := make([]float64, len(values))
	if level <= 0 {
		copy(out, values)
		return out
	}
	u := distuv.Uniform{Min: -level, Max: level, Src: n.rng}
	for i, v := range values {
		out[i] = v + u.Rand()
	}
	return out
}

// Little applies the resampling jitter level
func (n *Noise) Little(values ...float64) []float64 {
	return n.Add(n.little, values...)
}

// Some applies the initialization jitter level
func (n *Noise) Some(values ...float64) []float64 {
	return n.Add(n.some, values...)
}

// Uniform draws one value from [min, max)
func (n *Noise) Uniform(min, max float64) float64 {
	return min + n.rng.Float64()*(max-min)
}

// Float64 draws from [0, 1)
func (n *Noise) Float64() float64 {
	return n.rng.Float64()
}

// Heading draws a uniformly random heading in degrees
func (n *Noise) Heading() float64 {
	return n.Uniform(0, 360)
}

// normalizeHeading wraps h into [0, 360)
func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
