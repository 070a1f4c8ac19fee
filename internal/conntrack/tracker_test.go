package conntrack

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/avalb/internal/metrics"
)

func TestTracker_Cap(t *testing.T) {
	tr := New(2, nil)

	assert.True(t, tr.Acquire())
	assert.True(t, tr.Acquire())
	assert.False(t, tr.Acquire(), "cap reached")
	assert.Equal(t, int64(2), tr.Active())

	tr.Release()
	assert.True(t, tr.Acquire())
	assert.Equal(t, int64(2), tr.Peak())
}

func TestTracker_Unlimited(t *testing.T) {
	tr := New(0, nil)
	for i := 0; i < 1000; i++ {
		assert.True(t, tr.Acquire())
	}
	assert.Equal(t, int64(1000), tr.Active())
	assert.Equal(t, int64(1000), tr.Peak())
}

func TestTracker_ConcurrentNeverExceedsCap(t *testing.T) {
	const limit = 100
	tr := New(limit, metrics.NewCollector(nil))

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Acquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, acquired, "exactly the cap is served")
	assert.Equal(t, int64(limit), tr.Active())
	assert.Equal(t, int64(limit), tr.Peak())
	assert.LessOrEqual(t, tr.Active(), tr.Limit())
}

func TestTracker_ReleaseNeverBelowZeroUnderBalancedUse(t *testing.T) {
	tr := New(10, nil)

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Acquire() {
				tr.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), tr.Active())
	assert.LessOrEqual(t, tr.Peak(), int64(10))
}
