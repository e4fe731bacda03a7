package locator

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

var (
	// ErrReadingMismatch is returned when two readings cover different anchor sets
	ErrReadingMismatch = errors.New("reading length mismatch")
	// ErrDegenerateLikelihood is returned when every anchor was dropped from one of the readings
	ErrDegenerateLikelihood = errors.New("no comparable anchor distances")
)

// Reading holds one distance per anchor, in anchor order. +Inf marks a
// dropped anchor.
type Reading []float64

// Dropped reports whether index i is a sentinel
func (r Reading) Dropped(i int) bool {
	return isSentinel(r[i])
}

// Likelihood scores a candidate reading against a reference reading with a
// zero-mean isotropic Gaussian over the residuals.
type Likelihood struct {
	sigma float64

	mu    sync.Mutex
	dists map[int]*distmv.Normal
}

// NewLikelihood creates a likelihood model with sensor noise sigma (cm)
func NewLikelihood(sigma float64) (*Likelihood, error) {
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("sigma must be positive and finite, got %g", sigma)
	}
	return &Likelihood{sigma: sigma, dists: make(map[int]*distmv.Normal)}, nil
}

// Score returns the Gaussian density of reference-candidate after removing
// every dimension that either side marks as dropped.
func (l *Likelihood) Score(reference, candidate Reading) (float64, error) {
	if len(reference) != len(candidate) {
		return 0, fmt.Errorf("%w: reference has %d anchors, candidate has %d",
			ErrReadingMismatch, len(reference), len(candidate))
	}

	residual := make([]float64, 0, len(reference))
	for i := range reference {
		if isSentinel(reference[i]) || isSentinel(candidate[i]) {
			continue
		}
		residual = append(residual, reference[i]-candidate[i])
	}
	if len(residual) == 0 {
		return 0, ErrDegenerateLikelihood
	}

	return l.density(len(residual)).Prob(residual), nil
}

// density returns the cached N(0, sigma^2 I) of the given dimension
func (l *Likelihood) density(dim int) *distmv.Normal {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d, ok := l.dists[dim]; ok {
		return d
	}

	variance := l.sigma * l.sigma
	cov := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		cov.SetSym(i, i, variance)
	}
	d, ok := distmv.NewNormal(make([]float64, dim), cov, nil)
	if !ok {
		// unreachable: a positive diagonal is always positive definite
		panic(fmt.Sprintf("locator: covariance of dimension %d is not positive definite", dim))
	}
	l.dists[dim] = d
	return d
}

// isSentinel treats infinities and NaN as a missing anchor
func isSentinel(v float64) bool {
	return math.IsInf(v, 0) || math.IsNaN(v)
}
