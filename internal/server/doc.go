// Package server wraps http.Server with graceful shutdown for the proxy
// and metrics listeners.
package server
