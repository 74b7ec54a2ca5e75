// Package server exposes the price lookup over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sternrassler/price-getter/pkg/batch"
	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/Sternrassler/price-getter/pkg/metrics"
	"github.com/Sternrassler/price-getter/pkg/product"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// PriceService runs lookups. *price.Service implements it.
type PriceService interface {
	Lookup(ctx context.Context, upc, zip string) (*product.Quote, error)
	ResolveStore(ctx context.Context, zip string) (string, error)
	LookupAt(ctx context.Context, upc, zip, storeID string) (*product.Quote, error)
}

// ReadinessFunc reports whether the cache backend is reachable.
type ReadinessFunc func(ctx context.Context) error

// Config holds HTTP server configuration.
type Config struct {
	// Addr to listen on, e.g. ":4000".
	Addr string

	// RetailerName appears in error messages.
	RetailerName string

	// UpstreamTimeout is reported in timeout details.
	UpstreamTimeout time.Duration

	// ShutdownTimeout bounds the graceful drain.
	ShutdownTimeout time.Duration
}

// DefaultShutdownTimeout is the graceful drain period.
const DefaultShutdownTimeout = 10 * time.Second

// Server represents the HTTP API server
type Server struct {
	config Config
	prices PriceService
	batch  *batch.Fetcher
	ready  ReadinessFunc

	router *mux.Router
	server *http.Server
	logger zerolog.Logger
}

// New creates the server and registers its routes.
func New(cfg Config, prices PriceService, batchFetcher *batch.Fetcher, ready ReadinessFunc) *Server {
	if cfg.RetailerName == "" {
		cfg.RetailerName = "Kroger"
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if batchFetcher == nil {
		batchFetcher = batch.NewFetcher(batch.DefaultConfig())
	}
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}

	s := &Server{
		config: cfg,
		prices: prices,
		batch:  batchFetcher,
		ready:  ready,
		router: mux.NewRouter(),
		logger: logging.NewLogger(logging.ComponentServer),
	}
	s.setupRoutes()
	return s
}

// setupRoutes initializes all API routes
func (s *Server) setupRoutes() {
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(s.recoverMiddleware)
	s.router.Use(corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/prices", s.handlePrices).Methods(http.MethodGet, http.MethodOptions)
}

// Handler returns the routed handler with all middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx is done, then drains
// in-flight requests for at most ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Three sequential upstream calls of up to 10s each.
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting price gateway")
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Shutting down price gateway")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	return nil
}
