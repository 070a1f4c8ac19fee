package balancer

import (
	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/config"
)

// LeastConnections picks the backend minimizing active/weight. It is
// memoryless; stale active counts between selection and forwarding are
// tolerated.
type LeastConnections struct{}

// NewLeastConnections creates a least-connections picker.
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

// Pick returns the backend with the lowest active-to-weight ratio.
// Ties are broken by the lowest index in snapshot order.
func (p *LeastConnections) Pick(snapshot []*backend.Backend, _ string) (*backend.Backend, error) {
	if len(snapshot) == 0 {
		return nil, ErrNoHealthyBackend
	}

	selected := snapshot[0]
	selectedActive := selected.Active()

	for _, b := range snapshot[1:] {
		active := b.Active()
		// Compare active/weight without floating point:
		// a1/w1 > a2/w2  <=>  a1*w2 > a2*w1.
		if active*int64(selected.Weight()) < selectedActive*int64(b.Weight()) {
			selected = b
			selectedActive = active
		}
	}

	return selected, nil
}

// Name returns the algorithm name.
func (p *LeastConnections) Name() string {
	return config.AlgorithmLeastConnections
}
