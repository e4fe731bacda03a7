package locator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrMissingObservation is returned for uplink messages that carry no usable
// position or ranging data
var ErrMissingObservation = errors.New("missing observation")

// metersToCM converts the uplink's meter values to the filter's centimeters
const metersToCM = 100.0

type xyPayload struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type anchorPayload struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	DistTo *float64 `json:"dist_to"`
}

// LiveMessage is a decoded tag uplink. All values are in centimeters.
type LiveMessage struct {
	Position    orb.Point
	HasPosition bool
	Anchors     []Anchor
	Reference   Reading
}

// HasReading reports whether the message carries at least one anchor
func (m LiveMessage) HasReading() bool {
	return len(m.Anchors) > 0
}

// ParseLiveMessage decodes a tag uplink. Anchors are ordered by id. An
// anchor listed without a distance is kept with a +Inf sentinel; one without
// coordinates cannot be ranged against and is skipped.
func ParseLiveMessage(payload []byte) (LiveMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return LiveMessage{}, fmt.Errorf("%w: %v", ErrMissingObservation, err)
	}

	var msg LiveMessage
	if data, ok := raw["est_pos"]; ok {
		var pos xyPayload
		if err := json.Unmarshal(data, &pos); err == nil && pos.X != nil && pos.Y != nil {
			msg.Position = orb.Point{*pos.X * metersToCM, *pos.Y * metersToCM}
			msg.HasPosition = true
		}
	}

	var ids []string
	if data, ok := raw["all_anc_id"]; ok {
		if err := json.Unmarshal(data, &ids); err != nil {
			return LiveMessage{}, fmt.Errorf("%w: all_anc_id: %v", ErrMissingObservation, err)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		data, ok := raw[id]
		if !ok {
			continue
		}
		var ap anchorPayload
		if err := json.Unmarshal(data, &ap); err != nil || ap.X == nil || ap.Y == nil {
			continue
		}
		msg.Anchors = append(msg.Anchors, Anchor{ID: id, X: *ap.X * metersToCM, Y: *ap.Y * metersToCM})
		dist := math.Inf(1)
		if ap.DistTo != nil {
			dist = *ap.DistTo * metersToCM
		}
		msg.Reference = append(msg.Reference, dist)
	}

	if !msg.HasPosition && !msg.HasReading() {
		return LiveMessage{}, ErrMissingObservation
	}
	return msg, nil
}

// LiveUpdate is what the feed hands to the filter loop
type LiveUpdate struct {
	Observation    Observation
	HasObservation bool
	Position       orb.Point
	HasPosition    bool
	Speed          float64
}

// LiveFeed turns uplink messages into observations. HandlePayload runs on
// the MQTT goroutine; Next and Predict run on the filter loop.
type LiveFeed struct {
	mu       sync.Mutex
	window   *SpeedWindow
	lastPos  orb.Point
	lastTime time.Time
	seen     bool
	now      func() time.Time

	staged   Latest[LiveUpdate]
	received uint64
	rejected uint64
}

// NewLiveFeed creates a feed averaging speed over window samples
func NewLiveFeed(window int) *LiveFeed {
	return &LiveFeed{window: NewSpeedWindow(window), now: time.Now}
}

// HandlePayload parses and stages one uplink message
func (f *LiveFeed) HandlePayload(payload []byte) error {
	msg, err := ParseLiveMessage(payload)

	f.mu.Lock()
	f.received++
	if err != nil {
		f.rejected++
		f.mu.Unlock()
		return err
	}

	update := LiveUpdate{HasPosition: msg.HasPosition, Position: msg.Position}
	if msg.HasPosition {
		now := f.now()
		if f.seen {
			if dt := now.Sub(f.lastTime).Seconds(); dt > 0 {
				f.window.Add(planar.Distance(f.lastPos, msg.Position) / dt)
			}
		}
		f.lastPos, f.lastTime, f.seen = msg.Position, now, true
	}
	update.Speed = f.window.Mean()
	f.mu.Unlock()

	if msg.HasReading() {
		update.Observation = Observation{Reference: msg.Reference, Anchors: msg.Anchors}
		update.HasObservation = true
	}
	f.staged.Store(update)
	return nil
}

// Next consumes the latest staged update, moving the agent to the reported
// position. It reports false when nothing new carries a reading.
func (f *LiveFeed) Next(agent *Agent) (Observation, bool) {
	update, ok := f.staged.Take()
	if !ok {
		return Observation{}, false
	}
	if update.HasPosition {
		agent.X, agent.Y = update.Position[0], update.Position[1]
	}
	agent.Speed = update.Speed
	return update.Observation, update.HasObservation
}

// Predict returns the windowed speed. Live tags report no heading.
func (f *LiveFeed) Predict(agent *Agent) (float64, float64) {
	agent.StepCount++
	return agent.Speed, 0
}

// Stats returns received, rejected and overwritten message counts
func (f *LiveFeed) Stats() (received, rejected, dropped uint64) {
	f.mu.Lock()
	received, rejected = f.received, f.rejected
	f.mu.Unlock()
	return received, rejected, f.staged.Dropped()
}
