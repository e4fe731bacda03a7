package locator

import "gonum.org/v1/gonum/floats"

// SpeedWindow keeps the last n speed samples
type SpeedWindow struct {
	size    int
	samples []float64
}

// NewSpeedWindow creates a window of at most size samples
func NewSpeedWindow(size int) *SpeedWindow {
	if size < 1 {
		size = 1
	}
	return &SpeedWindow{size: size, samples: make([]float64, 0, size)}
}

// Add appends a sample, evicting the oldest when full
func (w *SpeedWindow) Add(v float64) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, v)
}

// Mean returns the average of the held samples, 0 when empty
func (w *SpeedWindow) Mean() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	return floats.Sum(w.samples) / float64(len(w.samples))
}

// Len returns the number of held samples
func (w *SpeedWindow) Len() int {
	return len(w.samples)
}
