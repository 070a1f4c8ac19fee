package proxy

import "errors"

// Sentinel errors for dispatch failures.
var (
	// ErrNoHealthyBackend indicates the healthy snapshot was empty.
	ErrNoHealthyBackend = errors.New("no healthy backend available")

	// ErrAllBackendsTripped indicates every healthy backend was rejected
	// by its circuit breaker.
	ErrAllBackendsTripped = errors.New("all backends tripped")

	// ErrClientCancelled indicates the inbound connection closed before
	// a backend response was received.
	ErrClientCancelled = errors.New("client cancelled request")
)
