package locator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_String(t *testing.T) {
	assert.Equal(t, "particle", SimulatedParticle.String())
	assert.Equal(t, "agent", GroundTruthAgent.String())
	assert.Equal(t, "unknown", Role(9).String())
}

func TestNewAgent(t *testing.T) {
	a := NewAgent(10, 20, -90, 5)
	assert.Equal(t, GroundTruthAgent, a.Role)
	assert.Equal(t, 270.0, a.Heading)
	assert.Equal(t, 1.0, a.Weight)
	assert.Equal(t, 5.0, a.Speed)
}

func TestReadSensors(t *testing.T) {
	w := newTestWorld(t)
	anchors := w.Beacons()
	noise := NewNoise(NewSource(8), 5, 10)

	particle := Particle{X: 170, Y: 170}
	exact := ReadSensors(particle, w, anchors, noise)
	require.Len(t, exact, len(anchors))
	for i, a := range anchors {
		assert.InDelta(t, dist(170, 170, a.X, a.Y), exact[i], 1e-9, "particle readings are exact")
	}

	agent := NewAgent(170, 170, 0, 0)
	noisy := ReadSensors(agent.Particle, w, anchors, noise)
	differs := false
	for i := range noisy {
		assert.InDelta(t, exact[i], noisy[i], 5, "agent noise is bounded by the little level")
		if noisy[i] != exact[i] {
			differs = true
		}
	}
	assert.True(t, differs, "agent readings carry noise")
}

func TestReadSensors_KeepsSentinels(t *testing.T) {
	anchors := []Anchor{{ID: "A", X: 0, Y: 0}, {ID: "B", X: 10, Y: 0}}
	w := &sentinelWorld{GridWorld: newTestWorld(t)}
	agent := NewAgent(5, 5, 0, 0)

	r := ReadSensors(agent.Particle, w, anchors, NewNoise(NewSource(1), 5, 10))
	assert.True(t, math.IsInf(r[0], 1))
	assert.False(t, math.IsInf(r[1], 1))
}

func TestDisplace(t *testing.T) {
	p := Particle{X: 0, Y: 0, Heading: 90}
	displace(&p, 10, false, nil)
	assert.InDelta(t, 10, p.X, 1e-9, "heading 90 moves along +X")
	assert.InDelta(t, 0, p.Y, 1e-9)

	p = Particle{X: 0, Y: 0, Heading: 0}
	displace(&p, 10, false, nil)
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 10, p.Y, 1e-9, "heading 0 moves along +Y")

	p = Particle{X: 0, Y: 0, Heading: 0}
	displace(&p, 10, true, NewNoise(NewSource(3), 5, 10))
	assert.Equal(t, 0.0, p.Heading, "noisy moves leave the stored heading alone")
	assert.LessOrEqual(t, math.Hypot(p.X, p.Y), 15.0)
}

func TestAgent_MoveStaysFree(t *testing.T) {
	cfg := WorldConfig{Width: 100, Height: 100, Obstacles: []RectConfig{{X: 40, Y: 0, W: 20, H: 100}}}
	w, err := NewGridWorld(cfg, []Anchor{{ID: "A"}}, NewSource(1))
	require.NoError(t, err)
	noise := NewNoise(NewSource(5), 5, 10)

	// Heading straight at the wall
	a := NewAgent(35, 50, 90, 8)
	for i := 0; i < 200; i++ {
		delta := a.Move(w, noise)
		assert.True(t, w.IsFree(a.X, a.Y), "step %d left free space at (%.1f, %.1f)", i, a.X, a.Y)
		assert.Greater(t, delta, -180.0)
		assert.LessOrEqual(t, delta, 180.0)
	}
	assert.Equal(t, 200, a.StepCount)
	assert.Less(t, a.X, 40.0, "the wall splits the room")
}

func TestSimulatedSource_Dropout(t *testing.T) {
	w := newTestWorld(t)
	agent := NewAgent(170, 170, 0, 5)

	all := NewSimulatedSource(w, NewNoise(NewSource(1), 5, 10), 1)
	obs, ok := all.Next(agent)
	require.True(t, ok)
	for _, v := range obs.Reference {
		assert.True(t, math.IsInf(v, 1))
	}

	none := NewSimulatedSource(w, NewNoise(NewSource(1), 5, 10), 0)
	obs, ok = none.Next(agent)
	require.True(t, ok)
	assert.Len(t, obs.Anchors, 4)
	for _, v := range obs.Reference {
		assert.False(t, math.IsInf(v, 1))
	}

	speed, _ := none.Predict(agent)
	assert.Equal(t, 5.0, speed)
	assert.Equal(t, 1, agent.StepCount)
}

// ----- helpers -----

// sentinelWorld reports the first anchor as out of range
type sentinelWorld struct {
	*GridWorld
}

func (w *sentinelWorld) DistancesToAll(x, y float64, anchors []Anchor) Reading {
	r := w.GridWorld.DistancesToAll(x, y, anchors)
	r[0] = math.Inf(1)
	return r
}
