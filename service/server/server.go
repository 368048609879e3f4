package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/txledger/service/annotation"
	"github.com/brojonat/txledger/service/config"
	"github.com/brojonat/txledger/service/metrics"
	"github.com/brojonat/txledger/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the ledger service.
type Server struct {
	addr        string
	cfg         *config.Config
	store       Store
	scheduler   temporal.Scheduler
	hub         *Hub
	annotations *annotation.Service
	metrics     *metrics.Metrics
	logger      *slog.Logger
	server      *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The scheduler creates and deletes the Temporal sync schedules of wallets.
// The hub serves the live ledger views.
// The metrics is optional - if nil, the metrics endpoint is not mounted.
func New(addr string, cfg *config.Config, store Store, scheduler temporal.Scheduler, hub *Hub, annotations *annotation.Service, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:        addr,
		cfg:         cfg,
		store:       store,
		scheduler:   scheduler,
		hub:         hub,
		annotations: annotations,
		metrics:     m,
		logger:      logger,
	}
}

// Handler builds the routed handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(method, pattern string, h http.Handler) {
		mux.Handle(method+" "+pattern, metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h))
	}

	// Wallet routes
	route("POST", "/api/v1/wallets", handleRegisterWallet(s.store, s.scheduler, s.cfg, s.logger))
	route("GET", "/api/v1/wallets", handleListWallets(s.store, s.logger))
	route("GET", "/api/v1/wallets/{wallet}", handleGetWallet(s.store, s.logger))
	route("DELETE", "/api/v1/wallets/{wallet}", handleUnregisterWallet(s.store, s.scheduler, s.hub, s.logger))
	route("POST", "/api/v1/wallets/{wallet}/sync", handleTriggerSync(s.store, s.scheduler, s.logger))

	// Ledger view routes
	route("GET", "/api/v1/wallets/{wallet}/ledger", handleGetLedger(s.hub, s.logger))
	route("PUT", "/api/v1/wallets/{wallet}/ledger/filter", handleSetFilter(s.hub, s.logger))
	route("PUT", "/api/v1/wallets/{wallet}/ledger/window", handleSetWindow(s.hub, s.logger))
	route("GET", "/api/v1/wallets/{wallet}/ledger/stream", handleStreamLedger(s.hub, s.metrics, s.logger))
	route("PUT", "/api/v1/wallets/{wallet}/annotations/{txid}/{address}", handleSaveAnnotation(s.store, s.hub, s.annotations, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close views first so open streams end
	s.hub.Close()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
