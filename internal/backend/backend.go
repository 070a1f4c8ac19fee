package backend

import (
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/vyrodovalexey/avalb/internal/config"
)

// Backend represents a single upstream origin. Identity, weight, and the
// concurrency cap are immutable; live state is held in atomics so the
// selection hot path never takes a lock.
type Backend struct {
	name     string
	address  string
	target   *url.URL
	weight   int
	maxConns int64

	healthy atomic.Bool
	active  atomic.Int64

	consecutiveSuccesses atomic.Int32
	consecutiveFailures  atomic.Int32

	totalRequests  atomic.Uint64
	failedRequests atomic.Uint64
}

// New creates a Backend from configuration. Backends start healthy;
// the health checker demotes them after consecutive probe failures.
func New(cfg config.BackendConfig) (*Backend, error) {
	weight := cfg.Weight
	if weight < 1 {
		weight = 1
	}

	target, err := url.Parse("http://" + cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("backend %s: invalid address %q: %w", cfg.Name, cfg.Address, err)
	}

	b := &Backend{
		name:     cfg.Name,
		address:  cfg.Address,
		target:   target,
		weight:   weight,
		maxConns: cfg.MaxConnections,
	}
	b.healthy.Store(true)
	return b, nil
}

// Name returns the stable backend name.
func (b *Backend) Name() string {
	return b.name
}

// Address returns the host:port of the backend.
func (b *Backend) Address() string {
	return b.address
}

// Target returns the parsed base URL of the backend.
func (b *Backend) Target() *url.URL {
	return b.target
}

// Weight returns the static selection weight.
func (b *Backend) Weight() int {
	return b.weight
}

// MaxConns returns the per-backend concurrency cap. Zero means unlimited.
func (b *Backend) MaxConns() int64 {
	return b.maxConns
}

// Healthy reports whether the backend is currently eligible for selection.
func (b *Backend) Healthy() bool {
	return b.healthy.Load()
}

// SetHealthy updates the health flag.
func (b *Backend) SetHealthy(healthy bool) {
	b.healthy.Store(healthy)
}

// Active returns the number of in-flight requests assigned to this backend.
func (b *Backend) Active() int64 {
	return b.active.Load()
}

// HasCapacity reports whether the backend is under its concurrency cap.
func (b *Backend) HasCapacity() bool {
	return b.maxConns == 0 || b.active.Load() < b.maxConns
}

// AcquireSlot increments the active request count while the backend is
// under its cap. It returns false when the backend is saturated.
func (b *Backend) AcquireSlot() bool {
	for {
		current := b.active.Load()
		if b.maxConns > 0 && current >= b.maxConns {
			return false
		}
		if b.active.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// ReleaseSlot decrements the active request count.
func (b *Backend) ReleaseSlot() {
	b.active.Add(-1)
}

// RecordResult records the terminal outcome of one forwarded attempt.
func (b *Backend) RecordResult(success bool) {
	b.totalRequests.Add(1)
	if !success {
		b.failedRequests.Add(1)
	}
}

// ProbeSuccess records a successful health probe and returns the current
// success streak. The failure streak is reset, preserving the invariant
// that at most one streak is non-zero.
func (b *Backend) ProbeSuccess() int32 {
	b.consecutiveFailures.Store(0)
	return b.consecutiveSuccesses.Add(1)
}

// ProbeFailure records a failed health probe and returns the current
// failure streak. The success streak is reset.
func (b *Backend) ProbeFailure() int32 {
	b.consecutiveSuccesses.Store(0)
	return b.consecutiveFailures.Add(1)
}

// ConsecutiveSuccesses returns the current probe success streak.
func (b *Backend) ConsecutiveSuccesses() int32 {
	return b.consecutiveSuccesses.Load()
}

// ConsecutiveFailures returns the current probe failure streak.
func (b *Backend) ConsecutiveFailures() int32 {
	return b.consecutiveFailures.Load()
}

// Stats is a point-in-time snapshot of a backend's request counters.
type Stats struct {
	Active         int64
	TotalRequests  uint64
	FailedRequests uint64
}

// Stats returns the backend's request counters.
func (b *Backend) Stats() Stats {
	return Stats{
		Active:         b.active.Load(),
		TotalRequests:  b.totalRequests.Load(),
		FailedRequests: b.failedRequests.Load(),
	}
}
