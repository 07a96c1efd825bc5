// Package api provides the HTTP surface of the timer engine.
//
// It exposes RESTful endpoints for setting, querying, cancelling and
// snoozing timers, plus a health check. All handlers delegate to the
// timers service and translate its sentinel errors to HTTP status codes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/viewassist/timerd/internal/timers"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the HTTP endpoints to the timer service.
type Server struct {
	svc  *timers.Service
	addr string
}

// NewServer creates an API server backed by the given timer service.
func NewServer(svc *timers.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{svc: svc, addr: addr}
}

// Handler returns the routing table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/timers", s.timersHandler)
	mux.HandleFunc("/timers/", s.timersHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server.Run: API server failed", "error", err)
			return err
		}
		return nil
	}
}
