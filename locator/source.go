package locator

import (
	"math"
	"time"
)

// ObservationSource supplies the filter loop with reference readings and
// the motion the particles should follow
type ObservationSource interface {
	// Next returns the observation for this tick. ok is false when no new
	// reading is available; the tick is then skipped.
	Next(agent *Agent) (obs Observation, ok bool)
	// Predict moves the agent one step and returns the speed and heading
	// change to apply to every particle.
	Predict(agent *Agent) (speed, headingDelta float64)
}

// SimulatedSource drives a ground-truth agent through the world
type SimulatedSource struct {
	world   World
	noise   *Noise
	dropout float64
}

// NewSimulatedSource creates a simulation source. Each cycle every anchor is
// independently dropped with probability dropout.
func NewSimulatedSource(world World, noise *Noise, dropout float64) *SimulatedSource {
	return &SimulatedSource{world: world, noise: noise, dropout: dropout}
}

// Next returns the agent's noisy distances to the world's beacons
func (s *SimulatedSource) Next(agent *Agent) (Observation, bool) {
	anchors := s.world.Beacons()
	ref := ReadSensors(agent.Particle, s.world, anchors, s.noise)
	if s.dropout > 0 {
		for i := range ref {
			if s.noise.Float64() < s.dropout {
				ref[i] = math.Inf(1)
			}
		}
	}
	return Observation{Reference: ref, Anchors: anchors}, true
}

// Predict moves the agent and reports its motion
func (s *SimulatedSource) Predict(agent *Agent) (float64, float64) {
	delta := agent.Move(s.world, s.noise)
	return agent.Speed, delta
}

// pacedSource skips ticks until interval has elapsed since the last
// observation it let through
type pacedSource struct {
	ObservationSource
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// Paced limits src to at most one observation per interval without blocking
func Paced(src ObservationSource, interval time.Duration) ObservationSource {
	if interval <= 0 {
		return src
	}
	return &pacedSource{ObservationSource: src, interval: interval, now: time.Now}
}

func (p *pacedSource) Next(agent *Agent) (Observation, bool) {
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return Observation{}, false
	}
	obs, ok := p.ObservationSource.Next(agent)
	if ok {
		p.last = now
	}
	return obs, ok
}
