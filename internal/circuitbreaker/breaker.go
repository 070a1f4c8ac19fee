package circuitbreaker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vyrodovalexey/avalb/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is probing backend recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the
	// closed state before the circuit opens.
	FailureThreshold int

	// SuccessThreshold is the number of successful probes in the
	// half-open state before the circuit closes again.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before admitting a probe.
	Timeout time.Duration
}

// StateChangeFunc is called synchronously on every state transition.
type StateChangeFunc func(name string, from, to State)

// Breaker is a per-backend failure gate. All compound state lives behind
// one mutex; contention is per backend, not global.
type Breaker struct {
	name          string
	config        Config
	clock         clockwork.Clock
	logger        observability.Logger
	onStateChange StateChangeFunc

	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	halfOpenInFlight int
	openedAt         time.Time
}

// Option is a functional option for configuring a breaker.
type Option func(*Breaker)

// WithClock sets the clock used for open-state timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(b *Breaker) {
		b.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithStateChangeFunc sets the state transition callback. The callback
// runs while the breaker lock is held and must not call back into the
// breaker.
func WithStateChangeFunc(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New creates a circuit breaker in the closed state.
func New(name string, config Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		config: config,
		clock:  clockwork.NewRealClock(),
		logger: observability.NopLogger(),
		state:  StateClosed,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Allow reports whether a request may proceed. In the open state the
// first caller after the timeout is admitted as the half-open probe;
// callers racing in that window are rejected until the probe's outcome
// is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.clock.Since(b.openedAt) < b.config.Timeout {
			return false
		}
		b.transitionTo(StateHalfOpen)
		b.halfOpenInFlight = 1
		return true

	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			return false
		}
		b.halfOpenInFlight = 1
		return true

	default:
		return false
	}
}

// Record registers the terminal outcome of an admitted request.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failureCount = 0
			return
		}
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if success {
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				b.transitionTo(StateClosed)
			}
			return
		}
		b.transitionTo(StateOpen)

	case StateOpen:
		// A late outcome from a request admitted before the trip.
		// Failures refresh the open window.
		if !success {
			b.openedAt = b.clock.Now()
		}
	}
}

// transitionTo moves the breaker to a new state. Caller must hold the lock.
func (b *Breaker) transitionTo(to State) {
	from := b.state
	b.state = to

	b.failureCount = 0
	b.successCount = 0
	b.halfOpenInFlight = 0
	if to == StateOpen {
		b.openedAt = b.clock.Now()
	}

	b.logger.Info("circuit breaker state changed",
		observability.String("backend", b.name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// Release discards the outcome of an admitted request without counting
// it toward success or failure, e.g. when the client cancels mid-flight.
// It frees the half-open probe slot so recovery probing can continue.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the backend name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}
