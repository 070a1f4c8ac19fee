// Package circuitbreaker implements the per-backend failure gate with
// closed, open, and half-open states. While half-open, at most one probe
// request is in flight at a time.
package circuitbreaker
