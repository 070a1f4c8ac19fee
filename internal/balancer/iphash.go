package balancer

import (
	"github.com/cespare/xxhash/v2"

	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/config"
)

// IPHash maps a client identity to a backend by hashing the key modulo
// the snapshot size. Stickiness holds only while the healthy set is
// stable; a set change reshuffles assignments.
type IPHash struct{}

// NewIPHash creates an IP-hash picker.
func NewIPHash() *IPHash {
	return &IPHash{}
}

// Pick hashes the client key onto the snapshot.
func (p *IPHash) Pick(snapshot []*backend.Backend, key string) (*backend.Backend, error) {
	if len(snapshot) == 0 {
		return nil, ErrNoHealthyBackend
	}

	h := xxhash.Sum64String(key)
	return snapshot[h%uint64(len(snapshot))], nil
}

// Name returns the algorithm name.
func (p *IPHash) Name() string {
	return config.AlgorithmIPHash
}
