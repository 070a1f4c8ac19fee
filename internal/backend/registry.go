package backend

import (
	"fmt"

	"github.com/vyrodovalexey/avalb/internal/config"
	"github.com/vyrodovalexey/avalb/internal/observability"
)

// Registry owns the fixed, ordered set of backends. The set never grows
// or shrinks after startup; only per-backend live state changes.
type Registry struct {
	backends []*Backend
	byName   map[string]*Backend
	logger   observability.Logger
}

// NewRegistry creates a registry from configuration.
func NewRegistry(cfgs []config.BackendConfig, logger observability.Logger) (*Registry, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("at least one backend is required")
	}

	r := &Registry{
		backends: make([]*Backend, 0, len(cfgs)),
		byName:   make(map[string]*Backend, len(cfgs)),
		logger:   logger,
	}

	for _, cfg := range cfgs {
		if _, exists := r.byName[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate backend name %q", cfg.Name)
		}

		b, err := New(cfg)
		if err != nil {
			return nil, err
		}

		r.backends = append(r.backends, b)
		r.byName[b.Name()] = b

		logger.Info("registered backend",
			observability.String("name", b.Name()),
			observability.String("address", b.Address()),
			observability.Int("weight", b.Weight()),
		)
	}

	return r, nil
}

// All returns every backend in configuration order.
func (r *Registry) All() []*Backend {
	return r.backends
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (*Backend, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	return len(r.backends)
}

// Snapshot returns the currently healthy, under-cap backends in
// configuration order. The health flag and active count are read with
// atomic loads; a flip that races with the snapshot only affects future
// selections.
func (r *Registry) Snapshot() []*Backend {
	healthy := make([]*Backend, 0, len(r.backends))
	for _, b := range r.backends {
		if b.Healthy() && b.HasCapacity() {
			healthy = append(healthy, b)
		}
	}
	return healthy
}

// HealthyCount returns the number of currently healthy backends.
func (r *Registry) HealthyCount() int {
	count := 0
	for _, b := range r.backends {
		if b.Healthy() {
			count++
		}
	}
	return count
}
