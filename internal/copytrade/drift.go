package copytrade

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// DriftPolicy moves the simulated price of a paper position that has no
// market data. The values it produces are illustrative only.
type DriftPolicy interface {
	Next(price float64) float64
}

// NoDrift leaves prices unchanged.
type NoDrift struct{}

// Next returns price.
func (NoDrift) Next(price float64) float64 {
	return price
}

// RandomWalk scales the price by a uniform step of width Step whose center
// is shifted up by Bias*Step/2. Results are clamped to the tradable range.
type RandomWalk struct {
	Step float64
	Bias float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomWalk creates a RandomWalk. A nil rng uses a randomly seeded source.
func NewRandomWalk(step, bias float64, rng *rand.Rand) *RandomWalk {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomWalk{Step: step, Bias: bias, rng: rng}
}

// Next returns the drifted price.
func (w *RandomWalk) Next(price float64) float64 {
	w.mu.Lock()
	u := w.rng.Float64()
	w.mu.Unlock()

	change := (u - 0.5 + w.Bias/2) * w.Step
	next := price * (1 + change)
	switch {
	case next < minPrice:
		return minPrice
	case next > maxPrice:
		return maxPrice
	}
	return next
}

const (
	minPrice = 0.01
	maxPrice = 0.99

	defaultDriftStep = 0.02
	defaultDriftBias = 0.1
)

// ParseDrift returns the policy named by s: "random-walk" or "none".
func ParseDrift(s string) (DriftPolicy, error) {
	switch s {
	case "random-walk":
		return NewRandomWalk(defaultDriftStep, defaultDriftBias, nil), nil
	case "none", "":
		return NoDrift{}, nil
	default:
		return nil, fmt.Errorf("unknown drift policy %q", s)
	}
}
