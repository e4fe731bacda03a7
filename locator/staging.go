package locator

import "sync"

// Latest is a single-slot handoff between a producer goroutine and the
// filter loop. A newer value overwrites an unconsumed one and each value is
// taken at most once.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	fresh   bool
	dropped uint64
}

// Store replaces the staged value
func (l *Latest[T]) Store(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fresh {
		l.dropped++
	}
	l.value = v
	l.fresh = true
}

// Take returns the staged value if it has not been taken yet
func (l *Latest[T]) Take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		var zero T
		return zero, false
	}
	l.fresh = false
	return l.value, true
}

// Dropped returns how many values were overwritten before being taken
func (l *Latest[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
