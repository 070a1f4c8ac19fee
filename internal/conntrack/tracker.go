package conntrack

import (
	"sync/atomic"

	"github.com/vyrodovalexey/avalb/internal/metrics"
)

// Tracker is the process-wide gauge of active inbound connections with a
// configured cap. Zero cap means unlimited.
type Tracker struct {
	limit     int64
	active    atomic.Int64
	peak      atomic.Int64
	collector *metrics.Collector
}

// New creates a tracker. The collector may be nil.
func New(limit int64, collector *metrics.Collector) *Tracker {
	return &Tracker{
		limit:     limit,
		collector: collector,
	}
}

// Acquire reserves a connection slot. It returns false when the tracker
// is at its cap.
func (t *Tracker) Acquire() bool {
	for {
		current := t.active.Load()
		if t.limit > 0 && current >= t.limit {
			return false
		}
		if t.active.CompareAndSwap(current, current+1) {
			t.updatePeak(current + 1)
			if t.collector != nil {
				t.collector.SetActiveConnections(current + 1)
			}
			return true
		}
	}
}

// Release frees a connection slot.
func (t *Tracker) Release() {
	n := t.active.Add(-1)
	if t.collector != nil {
		t.collector.SetActiveConnections(n)
	}
}

// updatePeak raises the high-water mark to at least n.
func (t *Tracker) updatePeak(n int64) {
	for {
		peak := t.peak.Load()
		if n <= peak || t.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// Active returns the current number of tracked connections.
func (t *Tracker) Active() int64 {
	return t.active.Load()
}

// Peak returns the highest concurrent connection count observed.
func (t *Tracker) Peak() int64 {
	return t.peak.Load()
}

// Limit returns the configured cap. Zero means unlimited.
func (t *Tracker) Limit() int64 {
	return t.limit
}
