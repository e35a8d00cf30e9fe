package rating

import (
	"fmt"
	"math"

	"hero-arena/internal/domain"
)

const (
	// SeedRating is assigned to a user with no prior games.
	SeedRating = 1200.0

	// DefaultK bounds a single update: |delta| <= K.
	DefaultK = 32.0

	// defaultReference is the virtual opponent rating the performance value
	// is scored against.
	defaultReference = 1200.0
)

// Model turns a per-game performance value into a rating delta. Pure and
// deterministic; implementations must be monotonic in the performance value
// for a fixed prior rating.
type Model interface {
	Seed() float64
	ComputeDelta(prior, performance float64) (float64, error)
}

// EloModel scores the performance value against a fixed reference rating
// using the standard logistic expectation curve.
type EloModel struct {
	K         float64
	Reference float64
}

func NewEloModel() *EloModel {
	return &EloModel{K: DefaultK, Reference: defaultReference}
}

func (m *EloModel) Seed() float64 {
	return SeedRating
}

// ComputeDelta returns K * (performance - expected). The performance value
// must be a finite number in [0, 1]; anything else is rejected before any
// state could be touched.
func (m *EloModel) ComputeDelta(prior, performance float64) (float64, error) {
	if math.IsNaN(performance) || math.IsInf(performance, 0) || performance < 0 || performance > 1 {
		return 0, fmt.Errorf("%w: performance %v out of [0, 1]", domain.ErrInvalidPerformance, performance)
	}
	if math.IsNaN(prior) || math.IsInf(prior, 0) {
		return 0, fmt.Errorf("%w: prior rating %v", domain.ErrInvalidPerformance, prior)
	}

	expected := expectedScore(prior, m.Reference)
	return m.K * (performance - expected), nil
}

func expectedScore(rating, opponent float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opponent-rating)/400.0))
}
