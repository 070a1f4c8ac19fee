// Package proxy implements the request handler that composes selection,
// circuit breaking, retries, and metrics into the forward path of the
// load balancer.
package proxy
