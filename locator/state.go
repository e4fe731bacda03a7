package locator

import (
	"sync"
	"time"
)

// Snapshot is a read-only copy of the latest cycle for HTTP consumers
type Snapshot struct {
	CycleResult
	ReceivedAt time.Time `json:"receivedAt"`
}

// StateTracker keeps the latest filter cycle for readers outside the filter
// goroutine
type StateTracker struct {
	mu       sync.RWMutex
	latest   *CycleResult
	received time.Time
	cycles   int
	reseeds  int
}

// NewStateTracker creates an empty state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// ObserveCycle records r as the latest cycle
func (st *StateTracker) ObserveCycle(r CycleResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.latest = &r
	st.received = time.Now()
	st.cycles++
	if r.Reseeded {
		st.reseeds++
	}
}

// GetSnapshot returns a deep copy of the latest cycle
func (st *StateTracker) GetSnapshot() (Snapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.latest == nil {
		return Snapshot{}, false
	}

	r := *st.latest
	r.Particles = append([]Particle(nil), r.Particles...)
	r.Anchors = append([]Anchor(nil), r.Anchors...)
	r.Reference = append(Reading(nil), r.Reference...)
	return Snapshot{CycleResult: r, ReceivedAt: st.received}, true
}

// HasCycle returns true once at least one cycle has been observed
func (st *StateTracker) HasCycle() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.latest != nil
}

// Counts returns the number of observed cycles and how many of them reseeded
func (st *StateTracker) Counts() (cycles, reseeds int) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cycles, st.reseeds
}
