package balancer

import (
	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/config"
)

// Random picks a backend uniformly at random.
type Random struct{}

// NewRandom creates a random picker.
func NewRandom() *Random {
	return &Random{}
}

// Pick returns a uniformly random backend from the snapshot.
func (p *Random) Pick(snapshot []*backend.Backend, _ string) (*backend.Backend, error) {
	if len(snapshot) == 0 {
		return nil, ErrNoHealthyBackend
	}

	return snapshot[secureRandomInt(len(snapshot))], nil
}

// Name returns the algorithm name.
func (p *Random) Name() string {
	return config.AlgorithmRandom
}
