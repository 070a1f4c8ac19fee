// Package metrics defines the Prometheus collector fed by the proxy,
// health checker, circuit breakers, and connection tracker, and the
// handler that serves the text exposition endpoint.
package metrics
