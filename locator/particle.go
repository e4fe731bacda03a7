package locator

import "math"

// Role tags what a particle stands for
type Role int

const (
	// SimulatedParticle is one hypothesis of the filter population
	SimulatedParticle Role = iota
	// GroundTruthAgent is the tracked agent producing reference readings
	GroundTruthAgent
)

func (r Role) String() string {
	switch r {
	case SimulatedParticle:
		return "particle"
	case GroundTruthAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// headingSpread is the extra heading noise (degrees) applied to noisy moves
const headingSpread = 15.0

// maxBounceAttempts bounds how often a blocked agent re-rolls its heading per step
const maxBounceAttempts = 32

// Particle is a weighted pose hypothesis. Positions are in cm, heading in
// degrees, 0 pointing along +Y.
type Particle struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"h"`
	Weight  float64 `json:"w"`
	Role    Role    `json:"-"`
}

// Agent is the ground-truth particle the filter tracks
type Agent struct {
	Particle
	Speed     float64 `json:"speed"`
	StepCount int     `json:"steps"`
}

// NewAgent creates an agent at the given pose
func NewAgent(x, y, heading, speed float64) *Agent {
	return &Agent{
		Particle: Particle{X: x, Y: y, Heading: normalizeHeading(heading), Weight: 1, Role: GroundTruthAgent},
		Speed:    speed,
	}
}

// ReadSensors returns the distances from p to each anchor. Readings taken by
// the ground-truth agent carry "little" sensor noise; particle readings are
// exact. Dropped anchors stay dropped.
func ReadSensors(p Particle, world World, anchors []Anchor, noise *Noise) Reading {
	r := world.DistancesToAll(p.X, p.Y, anchors)
	if p.Role != GroundTruthAgent || noise == nil {
		return r
	}
	noisy := noise.Little(r...)
	for i := range r {
		if !isSentinel(r[i]) {
			r[i] = noisy[i]
		}
	}
	return r
}

// displace moves p by speed along its heading. With noisy set the speed and
// the travel direction are perturbed; the stored heading is not.
func displace(p *Particle, speed float64, noisy bool, noise *Noise) {
	h := p.Heading
	if noisy && noise != nil {
		v := noise.Little(speed, h)
		speed, h = v[0], v[1]+noise.Uniform(-headingSpread, headingSpread)
	}
	rad := h * math.Pi / 180
	p.X += math.Sin(rad) * speed
	p.Y += math.Cos(rad) * speed
}

// Move advances the agent one noisy step. A step that would leave free space
// is retried with a fresh random heading. It returns the heading change the
// particles should follow.
func (a *Agent) Move(world World, noise *Noise) float64 {
	before := a.Heading
	a.StepCount++

	for i := 0; i < maxBounceAttempts; i++ {
		next := a.Particle
		displace(&next, a.Speed, true, noise)
		if world.IsFree(next.X, next.Y) {
			a.Particle = next
			break
		}
		a.Heading = noise.Heading()
	}

	delta := a.Heading - before
	if delta > 180 {
		delta -= 360
	} else if delta <= -180 {
		delta += 360
	}
	return delta
}
