package balancer

import (
	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/config"
)

// WeightedRandom picks a backend with probability proportional to its
// static weight.
type WeightedRandom struct{}

// NewWeightedRandom creates a weighted-random picker.
func NewWeightedRandom() *WeightedRandom {
	return &WeightedRandom{}
}

// Pick draws r in [0, total weight) and returns the first backend whose
// cumulative weight exceeds r.
func (p *WeightedRandom) Pick(snapshot []*backend.Backend, _ string) (*backend.Backend, error) {
	if len(snapshot) == 0 {
		return nil, ErrNoHealthyBackend
	}

	totalWeight := 0
	for _, b := range snapshot {
		totalWeight += b.Weight()
	}

	r := secureRandomInt(totalWeight)
	for _, b := range snapshot {
		r -= b.Weight()
		if r < 0 {
			return b, nil
		}
	}

	return snapshot[len(snapshot)-1], nil
}

// Name returns the algorithm name.
func (p *WeightedRandom) Name() string {
	return config.AlgorithmWeightedRandom
}
