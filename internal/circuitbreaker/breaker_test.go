package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestBreaker_ClosedAllowsAndResetsOnSuccess(t *testing.T) {
	b := New("b1", testConfig())

	assert.True(t, b.Allow())
	b.Record(false)
	b.Record(false)
	// A success resets the failure count.
	b.Record(true)
	b.Record(false)
	b.Record(false)
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_TripsAfterFailureThreshold(t *testing.T) {
	tripped := 0
	b := New("b1", testConfig(), WithStateChangeFunc(func(name string, from, to State) {
		if from == StateClosed && to == StateOpen {
			tripped++
		}
	}))

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.Record(false)
	}

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
	assert.Equal(t, 1, tripped)
}

func TestBreaker_OpenRejectsUntilTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New("b1", testConfig(), WithClock(clock))

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	require.Equal(t, StateOpen, b.State())

	assert.False(t, b.Allow())
	clock.Advance(9 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(time.Second)
	// First caller after the timeout is admitted as the probe.
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New("b1", testConfig(), WithClock(clock))

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	clock.Advance(10 * time.Second)

	require.True(t, b.Allow())
	// Probe in flight; everyone else is rejected.
	assert.False(t, b.Allow())
	assert.False(t, b.Allow())

	b.Record(true)
	// One success recorded; next probe is admitted.
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	b.Record(true)
	// Two successes close the circuit.
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New("b1", testConfig(), WithClock(clock))

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	clock.Advance(10 * time.Second)
	require.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	// The open window restarts from the reopen.
	clock.Advance(10 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_LateFailureRefreshesOpenWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New("b1", testConfig(), WithClock(clock))

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(9 * time.Second)
	// A straggler outcome from before the trip lands now.
	b.Record(false)

	clock.Advance(time.Second)
	assert.False(t, b.Allow(), "open window restarted by the late failure")

	clock.Advance(9 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreaker_HalfOpenSingleProbe_Concurrent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New("b1", testConfig(), WithClock(clock))

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	clock.Advance(10 * time.Second)

	const callers = 64
	var admitted sync.Map
	var count int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if b.Allow() {
				admitted.Store(id, true)
				mu.Lock()
				count++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(1), count, "exactly one caller admitted while half-open")
}

func TestBreaker_StateChangeCallbackSequence(t *testing.T) {
	clock := clockwork.NewFakeClock()

	type change struct{ from, to State }
	var changes []change
	b := New("b1", testConfig(),
		WithClock(clock),
		WithStateChangeFunc(func(name string, from, to State) {
			changes = append(changes, change{from, to})
		}),
	)

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	clock.Advance(10 * time.Second)
	require.True(t, b.Allow())
	b.Record(true)
	require.True(t, b.Allow())
	b.Record(true)

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestBreaker_ReleaseFreesHalfOpenProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := New("b1", testConfig(), WithClock(clock))

	for i := 0; i < 3; i++ {
		b.Record(false)
	}
	clock.Advance(10 * time.Second)
	require.True(t, b.Allow())
	require.False(t, b.Allow())

	// The probe's client went away; its outcome is never recorded.
	b.Release()

	// The probe slot is free again and no outcome was counted.
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Allow())
	b.Record(true)
	require.True(t, b.Allow())
	b.Record(true)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ReleaseIsNoOpWhenClosed(t *testing.T) {
	b := New("b1", testConfig())
	b.Release()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]string{"b1", "b2"}, testConfig())

	assert.Equal(t, 2, r.Count())
	require.NotNil(t, r.Get("b1"))
	assert.Equal(t, "b2", r.Get("b2").Name())
	assert.Nil(t, r.Get("missing"))

	// Breakers are independent.
	for i := 0; i < 3; i++ {
		r.Get("b1").Record(false)
	}
	assert.Equal(t, StateOpen, r.Get("b1").State())
	assert.Equal(t, StateClosed, r.Get("b2").State())
}
