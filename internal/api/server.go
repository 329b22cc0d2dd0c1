// Package api implements the HTTP surface of the scoring service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/metrics"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/stats"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, custom *rules.CustomEngine, statsSvc *stats.Service, m *metrics.Metrics, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, custom, statsSvc, m, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))
	if m != nil {
		router.Use(MetricsMiddleware(m))
	}

	// Operational endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	// API routes (tenant required)
	router.Route("/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(UsageMiddleware(bus, cache, m))

		// Scoring
		r.Post("/score", handler.Score)

		// Ledger retrieval
		r.Get("/transactions", handler.ListTransactions)
		r.Get("/transactions/{id}", handler.GetTransaction)

		// Denylist management
		r.Get("/blacklist", handler.ListBlacklistEntries)
		r.Post("/blacklist", handler.CreateBlacklistEntry)
		r.Get("/blacklist/{id}", handler.GetBlacklistEntry)
		r.Put("/blacklist/{id}", handler.UpdateBlacklistEntry)
		r.Delete("/blacklist/{id}", handler.DeleteBlacklistEntry)

		// Custom rule management
		r.Get("/rules", handler.ListCustomRules)
		r.Post("/rules", handler.CreateCustomRule)
		r.Delete("/rules/{id}", handler.DeleteCustomRule)
		r.Post("/rules/reload", handler.ReloadCustomRules)

		// Dashboard
		r.Get("/stats", handler.Stats)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
