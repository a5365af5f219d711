// Package api provides the HTTP surface for VentaFlow.
//
// It exposes the Twilio inbound webhook plus health, stats, and offering
// endpoints. The conversational work happens in the flow engine; this package
// is glue.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Server is the VentaFlow HTTP API server.
type Server struct {
	addr       string
	store      store.Store
	catalog    catalog.Catalog
	webhook    http.HandlerFunc // inbound gateway webhook, nil when the backend has none
	httpServer *http.Server
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// NewServer creates an API server. webhook may be nil when the messaging
// backend receives messages without HTTP (e.g., whatsmeow events).
func NewServer(st store.Store, cat catalog.Catalog, webhook http.HandlerFunc, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		addr:    cfg.Addr,
		store:   st,
		catalog: cat,
		webhook: webhook,
	}
}

// Handler builds the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/offerings", s.offeringsHandler)
	if s.webhook != nil {
		mux.HandleFunc("/webhook/twilio", s.webhook)
	}
	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		slog.Info("API server stopped")
		return nil
	}
}
