package retry

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// Condition defines when a failed attempt should be retried.
type Condition interface {
	// ShouldRetry returns true if the attempt should be retried.
	ShouldRetry(err error, statusCode int) bool
}

// NetworkErrorCondition retries on transport errors: refused or reset
// connections, timeouts, and unexpected connection closes.
type NetworkErrorCondition struct{}

// OnNetworkErrors creates a condition that retries on transport errors.
func OnNetworkErrors() *NetworkErrorCondition {
	return &NetworkErrorCondition{}
}

// ShouldRetry implements Condition.
func (c *NetworkErrorCondition) ShouldRetry(err error, _ int) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || c.ShouldRetry(urlErr.Err, 0)
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}

// ServerErrorCondition retries on 5xx responses except 501 Not
// Implemented, which signals a permanent condition.
type ServerErrorCondition struct{}

// OnServerErrors creates a condition that retries on retryable 5xx
// status codes.
func OnServerErrors() *ServerErrorCondition {
	return &ServerErrorCondition{}
}

// ShouldRetry implements Condition.
func (c *ServerErrorCondition) ShouldRetry(_ error, statusCode int) bool {
	return statusCode >= 500 && statusCode < 600 && statusCode != http.StatusNotImplemented
}

// StatusCodeCondition retries on an explicit status code set.
type StatusCodeCondition struct {
	codes map[int]bool
}

// OnStatusCodes creates a condition that retries on the given status codes.
func OnStatusCodes(statusCodes ...int) *StatusCodeCondition {
	codes := make(map[int]bool, len(statusCodes))
	for _, code := range statusCodes {
		codes[code] = true
	}
	return &StatusCodeCondition{codes: codes}
}

// ShouldRetry implements Condition.
func (c *StatusCodeCondition) ShouldRetry(_ error, statusCode int) bool {
	return c.codes[statusCode]
}
