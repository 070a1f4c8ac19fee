package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vyrodovalexey/avalb/internal/backend"
	"github.com/vyrodovalexey/avalb/internal/balancer"
	"github.com/vyrodovalexey/avalb/internal/circuitbreaker"
	"github.com/vyrodovalexey/avalb/internal/conntrack"
	"github.com/vyrodovalexey/avalb/internal/metrics"
	"github.com/vyrodovalexey/avalb/internal/observability"
	"github.com/vyrodovalexey/avalb/internal/retry"
)

// hopHeaders are headers that must not be forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy is the request handler: it reserves a connection slot, selects a
// backend over the healthy snapshot, consults that backend's circuit
// breaker, forwards the request, and retries retryable failures against
// a freshly selected backend.
type Proxy struct {
	registry  *backend.Registry
	picker    balancer.Picker
	breakers  *circuitbreaker.Registry
	policy    *retry.Policy
	tracker   *conntrack.Tracker
	transport http.RoundTripper
	collector *metrics.Collector
	logger    observability.Logger
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithTransport sets the outbound transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithCollector sets the metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(p *Proxy) {
		p.collector = collector
	}
}

// New creates a proxy.
func New(
	registry *backend.Registry,
	picker balancer.Picker,
	breakers *circuitbreaker.Registry,
	policy *retry.Policy,
	tracker *conntrack.Tracker,
	opts ...Option,
) *Proxy {
	p := &Proxy{
		registry: registry,
		picker:   picker,
		breakers: breakers,
		policy:   policy,
		tracker:  tracker,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.transport == nil {
		p.transport = &http.Transport{
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.tracker.Acquire() {
		p.writeError(w, http.StatusServiceUnavailable, "connection limit reached")
		return
	}
	defer p.tracker.Release()

	clientIP := clientAddr(r)

	// Buffer the body once so retried attempts can replay it.
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			p.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
	}

	ctx := r.Context()
	attempt := 1

	// The backend of the previous failed attempt; a retry lands on it
	// only when nothing else is eligible.
	var lastFailed *backend.Backend

	for {
		b, breaker, err := p.selectBackend(clientIP, lastFailed)
		if err != nil {
			if errors.Is(err, ErrNoHealthyBackend) {
				p.writeError(w, http.StatusBadGateway, "no healthy backend available")
				return
			}
			p.writeError(w, http.StatusServiceUnavailable, "all backends unavailable")
			return
		}

		resp, err := p.forward(ctx, r, b, breaker, body, clientIP)

		if errors.Is(err, ErrClientCancelled) {
			p.logger.Debug("client cancelled request",
				observability.String("backend", b.Name()),
				observability.String("path", r.URL.Path),
			)
			return
		}

		if err != nil {
			if p.policy.IsRetryable(err, 0) {
				if delay, ok := p.policy.NextDelay(attempt); ok {
					if !p.waitRetry(ctx, delay, b.Name(), attempt, err) {
						return
					}
					attempt++
					lastFailed = b
					continue
				}
			}
			p.writeError(w, http.StatusBadGateway, "upstream request failed")
			return
		}

		if p.policy.IsRetryable(nil, resp.StatusCode) {
			if delay, ok := p.policy.NextDelay(attempt); ok {
				drainBody(resp)
				if !p.waitRetry(ctx, delay, b.Name(), attempt, nil) {
					return
				}
				attempt++
				lastFailed = b
				continue
			}
		}

		p.writeResponse(w, resp, b)
		return
	}
}

// selectBackend picks an admissible backend: healthy, under cap, and not
// rejected by its circuit breaker. Breaker rejections do not consume the
// retry budget; the rejected candidate is removed and selection runs
// again over the remainder. The excluded backend (the previous failed
// attempt's target) is only eligible when nothing else is.
func (p *Proxy) selectBackend(clientIP string, exclude *backend.Backend) (*backend.Backend, *circuitbreaker.Breaker, error) {
	snapshot := p.registry.Snapshot()
	if len(snapshot) == 0 {
		return nil, nil, ErrNoHealthyBackend
	}

	candidates := make([]*backend.Backend, len(snapshot))
	copy(candidates, snapshot)

	var excluded *backend.Backend
	if exclude != nil && len(candidates) > 1 {
		before := len(candidates)
		candidates = removeBackend(candidates, exclude)
		if len(candidates) < before {
			excluded = exclude
		}
	}

	for len(candidates) > 0 {
		b, err := p.picker.Pick(candidates, clientIP)
		if err != nil {
			break
		}

		breaker := p.breakers.Get(b.Name())
		if breaker != nil && !breaker.Allow() {
			candidates = removeBackend(candidates, b)
			continue
		}

		if !b.AcquireSlot() {
			// Lost a capacity race since the snapshot was taken.
			if breaker != nil {
				breaker.Release()
			}
			candidates = removeBackend(candidates, b)
			continue
		}

		return b, breaker, nil
	}

	// Every other candidate was inadmissible; the previously failed
	// backend becomes eligible again.
	if excluded != nil {
		breaker := p.breakers.Get(excluded.Name())
		if breaker == nil || breaker.Allow() {
			if excluded.AcquireSlot() {
				return excluded, breaker, nil
			}
			if breaker != nil {
				breaker.Release()
			}
		}
	}

	return nil, nil, ErrAllBackendsTripped
}

// forward sends one attempt to the selected backend and records its
// terminal outcome. The backend slot acquired during selection is
// released on every path.
func (p *Proxy) forward(
	ctx context.Context,
	r *http.Request,
	b *backend.Backend,
	breaker *circuitbreaker.Breaker,
	body []byte,
	clientIP string,
) (*http.Response, error) {
	if p.collector != nil {
		p.collector.SetBackendActive(b.Name(), b.Active())
	}

	outbound := buildOutbound(ctx, r, b, body, clientIP)

	start := time.Now()
	resp, err := p.transport.RoundTrip(outbound)
	duration := time.Since(start)

	b.ReleaseSlot()
	if p.collector != nil {
		p.collector.SetBackendActive(b.Name(), b.Active())
	}

	if err != nil {
		// A cancelled inbound connection aborts the outbound attempt;
		// the backend is not charged with a failure.
		if ctx.Err() != nil {
			if breaker != nil {
				breaker.Release()
			}
			return nil, ErrClientCancelled
		}

		b.RecordResult(false)
		if breaker != nil {
			breaker.Record(false)
		}
		p.recordAttempt(r.Method, http.StatusBadGateway, b.Name(), duration)

		p.logger.Warn("upstream attempt failed",
			observability.String("backend", b.Name()),
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		return nil, err
	}

	success := !isBackendFailure(resp.StatusCode)
	b.RecordResult(success)
	if breaker != nil {
		breaker.Record(success)
	}
	p.recordAttempt(r.Method, resp.StatusCode, b.Name(), duration)

	return resp, nil
}

// waitRetry sleeps for the backoff delay and counts the retry. It
// returns false when the client went away during the wait.
func (p *Proxy) waitRetry(ctx context.Context, delay time.Duration, backendName string, attempt int, cause error) bool {
	if p.collector != nil {
		p.collector.IncRetries(backendName)
	}

	p.logger.Debug("retrying request",
		observability.String("backend", backendName),
		observability.Int("attempt", attempt),
		observability.Duration("backoff", delay),
		observability.Error(cause),
	)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// writeResponse streams the backend response to the client.
func (p *Proxy) writeResponse(w http.ResponseWriter, resp *http.Response, b *backend.Backend) {
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
	header.Set("X-Backend-Name", b.Name())

	w.WriteHeader(resp.StatusCode)

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		p.logger.Debug("response stream interrupted",
			observability.String("backend", b.Name()),
			observability.Error(err),
		)
	}

	if p.collector != nil {
		p.collector.ObserveResponseSize(b.Name(), written)
	}
}

// writeError sends a synthesized error response.
func (p *Proxy) writeError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

// recordAttempt updates the per-attempt request metrics.
func (p *Proxy) recordAttempt(method string, status int, backendName string, duration time.Duration) {
	if p.collector != nil {
		p.collector.RecordRequest(method, status, backendName, duration)
	}
}

// buildOutbound clones the inbound request for the selected backend,
// stripping hop-by-hop headers and stamping forwarding headers.
func buildOutbound(ctx context.Context, r *http.Request, b *backend.Backend, body []byte, clientIP string) *http.Request {
	outbound := r.Clone(ctx)
	outbound.RequestURI = ""

	target := b.Target()
	outbound.URL.Scheme = target.Scheme
	outbound.URL.Host = target.Host
	outbound.Host = target.Host

	if len(body) > 0 {
		outbound.Body = io.NopCloser(bytes.NewReader(body))
		outbound.ContentLength = int64(len(body))
	} else {
		outbound.Body = http.NoBody
		outbound.ContentLength = 0
	}

	for _, h := range hopHeaders {
		outbound.Header.Del(h)
	}
	// Headers named by Connection, and every Proxy-* header, are hop-by-hop too.
	for _, v := range r.Header.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				outbound.Header.Del(name)
			}
		}
	}
	for key := range outbound.Header {
		if strings.HasPrefix(key, "Proxy-") {
			delete(outbound.Header, key)
		}
	}

	if clientIP != "" {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			outbound.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			outbound.Header.Set("X-Forwarded-For", clientIP)
		}
		outbound.Header.Set("X-Real-IP", clientIP)
	}

	return outbound
}

// clientAddr extracts the immediate client IP from the request.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isBackendFailure reports whether a status code counts as a backend
// failure for circuit breaking. 501 signals an unimplemented method,
// not an unhealthy backend.
func isBackendFailure(status int) bool {
	return status >= 500 && status != http.StatusNotImplemented
}

// removeBackend returns candidates without the given backend, order
// preserved.
func removeBackend(candidates []*backend.Backend, b *backend.Backend) []*backend.Backend {
	out := candidates[:0]
	for _, c := range candidates {
		if c != b {
			out = append(out, c)
		}
	}
	return out
}

// drainBody discards and closes a response body so the connection can
// be reused.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
