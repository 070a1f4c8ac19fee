package balancer

import (
	"sync/atomic"

	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/config"
)

// RoundRobin cycles through the snapshot with a shared monotone counter.
// Exact fairness under concurrency is not guaranteed, but every backend
// in a stable snapshot is selected within one full cycle.
type RoundRobin struct {
	counter atomic.Uint64
}

// NewRoundRobin creates a round-robin picker.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Pick returns the next backend in rotation.
func (p *RoundRobin) Pick(snapshot []*backend.Backend, _ string) (*backend.Backend, error) {
	if len(snapshot) == 0 {
		return nil, ErrNoHealthyBackend
	}

	idx := p.counter.Add(1) - 1
	return snapshot[idx%uint64(len(snapshot))], nil
}

// Name returns the algorithm name.
func (p *RoundRobin) Name() string {
	return config.AlgorithmRoundRobin
}
