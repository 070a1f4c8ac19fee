package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vyrodovalexey/avalb/internal/config"
)

// Policy decides whether and when a failed attempt is retried. It is
// immutable after construction and safe for concurrent use.
type Policy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitterRatio    float64
	conditions     []Condition

	mu   sync.Mutex
	rand *rand.Rand
}

// NewPolicy creates a retry policy from configuration. The default
// retryability classification covers transport errors and 5xx responses
// except 501.
func NewPolicy(cfg config.RetryConfig, conditions ...Condition) *Policy {
	if len(conditions) == 0 {
		conditions = []Condition{
			OnNetworkErrors(),
			OnServerErrors(),
		}
	}

	return &Policy{
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff.Duration(),
		maxBackoff:     cfg.MaxBackoff.Duration(),
		multiplier:     cfg.Multiplier,
		jitterRatio:    cfg.JitterRatio,
		conditions:     conditions,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter only
	}
}

// MaxAttempts returns the attempt budget, including the first attempt.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// NextDelay returns the backoff before the attempt following n, where n
// counts completed attempts starting at 1. The second return value is
// false once the attempt budget is exhausted.
//
// The delay is exponential with full jitter:
//
//	base  = min(maxBackoff, initialBackoff * multiplier^(n-1))
//	delay = base * (1 - jitterRatio + jitterRatio*U[0,1))
func (p *Policy) NextDelay(n int) (time.Duration, bool) {
	if n >= p.maxAttempts {
		return 0, false
	}
	if n < 1 {
		n = 1
	}

	base := float64(p.initialBackoff) * math.Pow(p.multiplier, float64(n-1))
	if base > float64(p.maxBackoff) {
		base = float64(p.maxBackoff)
	}

	if p.jitterRatio > 0 {
		p.mu.Lock()
		u := p.rand.Float64()
		p.mu.Unlock()
		base *= 1 - p.jitterRatio + p.jitterRatio*u
	}

	return time.Duration(base), true
}

// IsRetryable reports whether an attempt outcome may be retried. err is
// the transport error, if any; statusCode is the backend response status
// when a response was received (zero otherwise).
func (p *Policy) IsRetryable(err error, statusCode int) bool {
	for _, c := range p.conditions {
		if c.ShouldRetry(err, statusCode) {
			return true
		}
	}
	return false
}
