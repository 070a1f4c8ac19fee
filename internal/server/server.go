package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avalb/internal/observability"
)

// Server wraps http.Server with logging and graceful shutdown. It is
// used for both the proxy listener and the metrics listener.
type Server struct {
	name   string
	server *http.Server
	logger observability.Logger
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithReadHeaderTimeout sets the read header timeout.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.server.ReadHeaderTimeout = d
	}
}

// New creates a named server for the given address and handler.
func New(name, addr string, handler http.Handler, opts ...Option) *Server {
	s := &Server{
		name: name,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs the server until it is shut down. It returns nil after a
// graceful shutdown and the listen error otherwise.
func (s *Server) Start() error {
	s.logger.Info("server listening",
		observability.String("server", s.name),
		observability.String("addr", s.server.Addr),
	)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down",
		observability.String("server", s.name),
	)
	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
