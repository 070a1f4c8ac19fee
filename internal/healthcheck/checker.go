package healthcheck

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/config"
	"github.com/vyrodovalexey/avalb/internal/metrics"
	"github.com/vyrodovalexey/avalb/internal/observability"
)

// Checker probes every backend on a fixed interval and flips its health
// flag once the configured streak thresholds are reached. Each backend
// has its own probe goroutine; a checker never touches in-flight
// requests.
type Checker struct {
	registry  *backend.Registry
	config    config.HealthCheckConfig
	client    *http.Client
	transport *http.Transport
	logger    observability.Logger
	collector *metrics.Collector

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedWg sync.WaitGroup
}

// Option is a functional option for configuring the checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithClient sets the HTTP client used for probes.
func WithClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithCollector sets the metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Checker) {
		c.collector = collector
	}
}

// New creates a health checker for every backend in the registry.
func New(registry *backend.Registry, cfg config.HealthCheckConfig, opts ...Option) *Checker {
	c := &Checker{
		registry: registry,
		config:   cfg,
		logger:   observability.NopLogger(),
		stopCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		// Dedicated transport so Stop can tear down idle probe
		// connections without touching the shared default transport.
		c.transport = &http.Transport{}
		c.client = &http.Client{
			Timeout:   cfg.Timeout.Duration(),
			Transport: c.transport,
		}
	}

	return c
}

// Start launches one probe loop per backend. It is a no-op if the
// checker is already running.
func (c *Checker) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	for _, b := range c.registry.All() {
		c.stoppedWg.Add(1)
		go c.probeLoop(ctx, b)
	}

	c.logger.Info("health checker started",
		observability.Int("backends", c.registry.Len()),
		observability.Duration("interval", c.config.Interval.Duration()),
	)
}

// Stop terminates all probe loops and waits for them to exit.
func (c *Checker) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	c.stoppedWg.Wait()

	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// probeLoop probes a single backend until stopped.
func (c *Checker) probeLoop(ctx context.Context, b *backend.Backend) {
	defer c.stoppedWg.Done()

	ticker := time.NewTicker(c.config.Interval.Duration())
	defer ticker.Stop()

	c.probe(ctx, b)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.probe(ctx, b)
		}
	}
}

// probe performs one health check against a backend and records the
// outcome.
func (c *Checker) probe(ctx context.Context, b *backend.Backend) {
	probeCtx, cancel := context.WithTimeout(ctx, c.config.Timeout.Duration())
	defer cancel()

	url := "http://" + b.Address() + c.config.Path
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		c.recordFailure(b, err)
		return
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		c.recordFailure(b, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusBadRequest {
		c.logger.Debug("health probe succeeded",
			observability.String("backend", b.Name()),
			observability.Duration("elapsed", elapsed),
		)
		c.recordSuccess(b)
	} else {
		c.recordFailure(b, nil)
	}
}

// recordSuccess registers a successful probe and promotes the backend
// once the healthy streak threshold is reached.
func (c *Checker) recordSuccess(b *backend.Backend) {
	streak := b.ProbeSuccess()

	if !b.Healthy() && streak >= int32(c.config.HealthyThreshold) {
		b.SetHealthy(true)
		c.logger.Info("backend became healthy",
			observability.String("backend", b.Name()),
			observability.Int("streak", int(streak)),
		)
		c.updateHealthMetrics(b)
	}
}

// recordFailure registers a failed probe and demotes the backend once
// the unhealthy streak threshold is reached.
func (c *Checker) recordFailure(b *backend.Backend, err error) {
	streak := b.ProbeFailure()

	if b.Healthy() && streak >= int32(c.config.UnhealthyThreshold) {
		b.SetHealthy(false)
		c.logger.Warn("backend became unhealthy",
			observability.String("backend", b.Name()),
			observability.Int("streak", int(streak)),
			observability.Error(err),
		)
		c.updateHealthMetrics(b)
	}
}

// updateHealthMetrics refreshes the health gauges after a flip.
func (c *Checker) updateHealthMetrics(b *backend.Backend) {
	if c.collector == nil {
		return
	}
	c.collector.SetBackendHealth(b.Name(), b.Healthy())
	c.collector.SetHealthyBackends(c.registry.HealthyCount())
}
