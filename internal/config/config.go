package config

import (
	"time"
)

// Load balancing algorithm names.
const (
	AlgorithmRoundRobin       = "round_robin"
	AlgorithmLeastConnections = "least_connections"
	AlgorithmWeightedRandom   = "weighted_random"
	AlgorithmRandom           = "random"
	AlgorithmIPHash           = "ip_hash"
)

// Config is the top-level load balancer configuration.
type Config struct {
	// ListenAddr is the address the proxy listens on.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the address the metrics endpoint listens on.
	MetricsAddr string `yaml:"metrics_addr"`

	// Algorithm selects the backend selection policy.
	Algorithm string `yaml:"algorithm"`

	// MaxConnections caps concurrent inbound connections process-wide.
	// An unset or zero value is replaced by the default when loading.
	MaxConnections int64 `yaml:"max_connections"`

	// Backends is the fixed set of upstream origins.
	Backends []BackendConfig `yaml:"backends"`

	// HealthCheck configures the active health checking loop.
	HealthCheck HealthCheckConfig `yaml:"health_check"`

	// CircuitBreaker configures the per-backend circuit breakers.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`

	// Retry configures the retry engine.
	Retry RetryConfig `yaml:"retry"`
}

// BackendConfig describes a single upstream origin.
type BackendConfig struct {
	// Name is the stable identity used in logs and metric labels.
	Name string `yaml:"name"`

	// Address is the host:port of the origin.
	Address string `yaml:"address"`

	// Weight is the static selection weight. Defaults to 1.
	Weight int `yaml:"weight"`

	// MaxConnections caps concurrent requests to this backend.
	// Zero means unlimited.
	MaxConnections int64 `yaml:"max_connections"`
}

// HealthCheckConfig configures the periodic prober.
type HealthCheckConfig struct {
	Interval           Duration `yaml:"interval"`
	Timeout            Duration `yaml:"timeout"`
	Path               string   `yaml:"path"`
	HealthyThreshold   int      `yaml:"healthy_threshold"`
	UnhealthyThreshold int      `yaml:"unhealthy_threshold"`
}

// CircuitBreakerConfig configures the per-backend failure gate.
type CircuitBreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	SuccessThreshold int      `yaml:"success_threshold"`
	Timeout          Duration `yaml:"timeout"`
}

// RetryConfig configures the retry engine.
type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	Multiplier     float64  `yaml:"multiplier"`
	JitterRatio    float64  `yaml:"jitter_ratio"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     "0.0.0.0:8080",
		MetricsAddr:    "0.0.0.0:9090",
		Algorithm:      AlgorithmRoundRobin,
		MaxConnections: 10000,
		HealthCheck: HealthCheckConfig{
			Interval:           Duration(10 * time.Second),
			Timeout:            Duration(5 * time.Second),
			Path:               "/health",
			HealthyThreshold:   2,
			UnhealthyThreshold: 3,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          Duration(30 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: Duration(100 * time.Millisecond),
			MaxBackoff:     Duration(10 * time.Second),
			Multiplier:     2.0,
			JitterRatio:    0.5,
		},
	}
}

// applyDefaults fills zero-valued fields from DefaultConfig.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaults.MetricsAddr
	}
	if c.Algorithm == "" {
		c.Algorithm = defaults.Algorithm
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = defaults.MaxConnections
	}

	if c.HealthCheck.Interval == 0 {
		c.HealthCheck.Interval = defaults.HealthCheck.Interval
	}
	if c.HealthCheck.Timeout == 0 {
		c.HealthCheck.Timeout = defaults.HealthCheck.Timeout
	}
	if c.HealthCheck.Path == "" {
		c.HealthCheck.Path = defaults.HealthCheck.Path
	}
	if c.HealthCheck.HealthyThreshold == 0 {
		c.HealthCheck.HealthyThreshold = defaults.HealthCheck.HealthyThreshold
	}
	if c.HealthCheck.UnhealthyThreshold == 0 {
		c.HealthCheck.UnhealthyThreshold = defaults.HealthCheck.UnhealthyThreshold
	}

	if c.CircuitBreaker.FailureThreshold == 0 {
		c.CircuitBreaker.FailureThreshold = defaults.CircuitBreaker.FailureThreshold
	}
	if c.CircuitBreaker.SuccessThreshold == 0 {
		c.CircuitBreaker.SuccessThreshold = defaults.CircuitBreaker.SuccessThreshold
	}
	if c.CircuitBreaker.Timeout == 0 {
		c.CircuitBreaker.Timeout = defaults.CircuitBreaker.Timeout
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = defaults.Retry.InitialBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = defaults.Retry.MaxBackoff
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = defaults.Retry.Multiplier
	}

	for i := range c.Backends {
		if c.Backends[i].Weight == 0 {
			c.Backends[i].Weight = 1
		}
	}
}
