package config

import (
	"fmt"
	"net"
)

// validAlgorithms lists the recognized selection algorithms.
var validAlgorithms = map[string]bool{
	AlgorithmRoundRobin:       true,
	AlgorithmLeastConnections: true,
	AlgorithmWeightedRandom:   true,
	AlgorithmRandom:           true,
	AlgorithmIPHash:           true,
}

// Validate checks the configuration for errors. Validation failures are
// fatal at startup.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", c.ListenAddr, err)
	}
	if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
		return fmt.Errorf("invalid metrics_addr %q: %w", c.MetricsAddr, err)
	}

	if !validAlgorithms[c.Algorithm] {
		return fmt.Errorf("unknown algorithm %q", c.Algorithm)
	}

	if c.MaxConnections < 0 {
		return fmt.Errorf("max_connections must be non-negative, got %d", c.MaxConnections)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}

	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend %d: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name %q", b.Name)
		}
		seen[b.Name] = true

		if _, _, err := net.SplitHostPort(b.Address); err != nil {
			return fmt.Errorf("backend %q: invalid address %q: %w", b.Name, b.Address, err)
		}
		if b.Weight < 1 {
			return fmt.Errorf("backend %q: weight must be >= 1, got %d", b.Name, b.Weight)
		}
		if b.MaxConnections < 0 {
			return fmt.Errorf("backend %q: max_connections must be non-negative, got %d",
				b.Name, b.MaxConnections)
		}
	}

	if err := c.HealthCheck.validate(); err != nil {
		return err
	}
	if err := c.CircuitBreaker.validate(); err != nil {
		return err
	}
	return c.Retry.validate()
}

func (hc HealthCheckConfig) validate() error {
	if hc.Interval.Duration() <= 0 {
		return fmt.Errorf("health_check.interval must be positive, got %s", hc.Interval)
	}
	if hc.Timeout.Duration() <= 0 {
		return fmt.Errorf("health_check.timeout must be positive, got %s", hc.Timeout)
	}
	if hc.Path == "" || hc.Path[0] != '/' {
		return fmt.Errorf("health_check.path must start with '/', got %q", hc.Path)
	}
	if hc.HealthyThreshold < 1 {
		return fmt.Errorf("health_check.healthy_threshold must be >= 1, got %d", hc.HealthyThreshold)
	}
	if hc.UnhealthyThreshold < 1 {
		return fmt.Errorf("health_check.unhealthy_threshold must be >= 1, got %d", hc.UnhealthyThreshold)
	}
	return nil
}

func (cb CircuitBreakerConfig) validate() error {
	if cb.FailureThreshold < 1 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be >= 1, got %d", cb.FailureThreshold)
	}
	if cb.SuccessThreshold < 1 {
		return fmt.Errorf("circuit_breaker.success_threshold must be >= 1, got %d", cb.SuccessThreshold)
	}
	if cb.Timeout.Duration() <= 0 {
		return fmt.Errorf("circuit_breaker.timeout must be positive, got %s", cb.Timeout)
	}
	return nil
}

func (r RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", r.MaxAttempts)
	}
	if r.InitialBackoff.Duration() <= 0 {
		return fmt.Errorf("retry.initial_backoff must be positive, got %s", r.InitialBackoff)
	}
	if r.MaxBackoff.Duration() < r.InitialBackoff.Duration() {
		return fmt.Errorf("retry.max_backoff must be >= initial_backoff")
	}
	if r.Multiplier <= 1 {
		return fmt.Errorf("retry.multiplier must be > 1, got %v", r.Multiplier)
	}
	if r.JitterRatio < 0 || r.JitterRatio > 1 {
		return fmt.Errorf("retry.jitter_ratio must be in [0,1], got %v", r.JitterRatio)
	}
	return nil
}
