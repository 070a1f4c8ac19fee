// Package backend holds the upstream origin model: per-backend identity,
// weight, live request counters, and health state, plus the registry that
// exposes the healthy subset to the selection policies.
package backend
