package balancer

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/config"
)

// ErrNoHealthyBackend is returned when the healthy snapshot is empty.
var ErrNoHealthyBackend = errors.New("no healthy backend available")

// Picker selects a backend from a healthy snapshot. The snapshot is the
// registry's current healthy, under-cap subset in configuration order;
// key is the client identity used by hash-based pickers.
type Picker interface {
	Pick(snapshot []*backend.Backend, key string) (*backend.Backend, error)
	Name() string
}

// New creates a Picker for the given algorithm name.
func New(algorithm string) (Picker, error) {
	switch algorithm {
	case config.AlgorithmRoundRobin:
		return NewRoundRobin(), nil
	case config.AlgorithmLeastConnections:
		return NewLeastConnections(), nil
	case config.AlgorithmWeightedRandom:
		return NewWeightedRandom(), nil
	case config.AlgorithmRandom:
		return NewRandom(), nil
	case config.AlgorithmIPHash:
		return NewIPHash(), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", algorithm)
	}
}

// secureRandomInt returns a cryptographically secure random int in [0, n).
func secureRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	// Safe conversion: result of modulo is always < n, which fits in int
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n)) //nolint:gosec // bounds checked
}
