package locator

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds written to the "kind" property
const (
	KindWorld    = "world"
	KindObstacle = "obstacle"
	KindAnchor   = "anchor"
	KindParticle = "particle"
	KindAgent    = "agent"
	KindEstimate = "estimate"
)

// SnapshotToFeatureCollection exports a snapshot in world centimeters. The
// coordinates are planar, not WGS84.
func SnapshotToFeatureCollection(world *GridWorld, s Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if world != nil {
		f := geojson.NewFeature(world.Bound().ToPolygon())
		f.Properties["kind"] = KindWorld
		fc.Append(f)

		for _, o := range world.Obstacles() {
			f := geojson.NewFeature(o.ToPolygon())
			f.Properties["kind"] = KindObstacle
			fc.Append(f)
		}
	}

	for _, a := range s.Anchors {
		f := geojson.NewFeature(orb.Point{a.X, a.Y})
		f.ID = a.ID
		f.Properties["kind"] = KindAnchor
		fc.Append(f)
	}

	for _, p := range s.Particles {
		f := geojson.NewFeature(orb.Point{p.X, p.Y})
		f.Properties["kind"] = KindParticle
		f.Properties["weight"] = p.Weight
		f.Properties["heading"] = p.Heading
		fc.Append(f)
	}

	agent := geojson.NewFeature(orb.Point{s.Agent.X, s.Agent.Y})
	agent.Properties["kind"] = KindAgent
	agent.Properties["heading"] = s.Agent.Heading
	agent.Properties["speed"] = s.Agent.Speed
	fc.Append(agent)

	if s.Estimate.Valid {
		est := geojson.NewFeature(orb.Point{s.Estimate.X, s.Estimate.Y})
		est.Properties["kind"] = KindEstimate
		est.Properties["confident"] = s.Estimate.Confident
		est.Properties["cycle"] = s.Cycle
		fc.Append(est)
	}

	return fc
}
