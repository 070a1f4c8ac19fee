package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationBuckets are the request latency buckets in seconds.
var durationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Collector holds every metric series exported by the load balancer.
// All series are registered against an explicit registry so that two
// identical configurations produce identical exposition output.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec

	backendHealth *prometheus.GaugeVec
	backendActive *prometheus.GaugeVec

	activeConnections prometheus.Gauge
	healthyBackends   prometheus.Gauge
	totalBackends     prometheus.Gauge

	breakerState *prometheus.GaugeVec
	breakerTrips *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
}

// NewCollector creates a Collector registered against the given registry.
// A nil registry creates a private one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,

		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lb_requests_total",
				Help: "Total number of proxied requests",
			},
			[]string{"method", "status", "backend"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lb_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"backend"},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lb_response_size_bytes",
				Help:    "Response size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"backend"},
		),

		backendHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lb_backend_health_status",
				Help: "Backend health status (1=healthy, 0=unhealthy)",
			},
			[]string{"backend"},
		),
		backendActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lb_backend_active_requests",
				Help: "In-flight requests per backend",
			},
			[]string{"backend"},
		),

		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lb_active_connections",
				Help: "Active inbound connections",
			},
		),
		healthyBackends: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lb_healthy_backends",
				Help: "Number of healthy backends",
			},
		),
		totalBackends: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lb_total_backends",
				Help: "Total number of configured backends",
			},
		),

		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lb_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"backend"},
		),
		breakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lb_circuit_breaker_trips_total",
				Help: "Total closed-to-open circuit breaker transitions",
			},
			[]string{"backend"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lb_retries_total",
				Help: "Total retry attempts per backend",
			},
			[]string{"backend"},
		),
	}
}

// InitBackends pre-creates every per-backend series so the exported
// label set is complete and deterministic from startup.
func (c *Collector) InitBackends(names []string) {
	for _, name := range names {
		c.backendHealth.WithLabelValues(name).Set(1)
		c.backendActive.WithLabelValues(name).Set(0)
		c.breakerState.WithLabelValues(name).Set(0)
		c.breakerTrips.WithLabelValues(name).Add(0)
		c.retriesTotal.WithLabelValues(name).Add(0)
	}
	c.totalBackends.Set(float64(len(names)))
	c.healthyBackends.Set(float64(len(names)))
}

// RecordRequest records one completed attempt keyed by method, response
// status, and backend.
func (c *Collector) RecordRequest(method string, status int, backend string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, strconv.Itoa(status), backend).Inc()
	c.requestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveResponseSize records the response body size for a backend.
func (c *Collector) ObserveResponseSize(backend string, bytes int64) {
	c.responseSize.WithLabelValues(backend).Observe(float64(bytes))
}

// SetBackendHealth updates the per-backend health gauge.
func (c *Collector) SetBackendHealth(backend string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.backendHealth.WithLabelValues(backend).Set(value)
}

// SetBackendActive updates the per-backend in-flight gauge.
func (c *Collector) SetBackendActive(backend string, active int64) {
	c.backendActive.WithLabelValues(backend).Set(float64(active))
}

// SetActiveConnections updates the process-wide connection gauge.
func (c *Collector) SetActiveConnections(n int64) {
	c.activeConnections.Set(float64(n))
}

// SetHealthyBackends updates the healthy backend count gauge.
func (c *Collector) SetHealthyBackends(n int) {
	c.healthyBackends.Set(float64(n))
}

// SetCircuitBreakerState updates the per-backend breaker state gauge.
func (c *Collector) SetCircuitBreakerState(backend string, state int) {
	c.breakerState.WithLabelValues(backend).Set(float64(state))
}

// IncCircuitBreakerTrips counts a closed-to-open transition.
func (c *Collector) IncCircuitBreakerTrips(backend string) {
	c.breakerTrips.WithLabelValues(backend).Inc()
}

// IncRetries counts one retry attempt against a backend.
func (c *Collector) IncRetries(backend string) {
	c.retriesTotal.WithLabelValues(backend).Inc()
}

// Registry returns the underlying prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus text exposition handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
