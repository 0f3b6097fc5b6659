package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
	"github.com/opensource-finance/sentinel/internal/pipeline"
)

// Dependencies are the collaborators the API serves. Repo, Cache, Bus and
// Metrics may be nil; the routes that need them answer 503.
type Dependencies struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Pipeline *pipeline.Orchestrator
	Metrics  *metrics.Collector
	Version  string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. The Prometheus endpoint is mounted at
// metricsPath when deps.Metrics is set.
func NewServer(cfg domain.ServerConfig, metricsPath string, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil && metricsPath != "" {
		router.Handle(metricsPath, deps.Metrics.Handler())
	}

	router.Route("/transactions", func(r chi.Router) {
		r.Post("/", handler.CreateTransaction)
		r.Get("/", handler.ListTransactions)
		r.Post("/analyse", handler.Analyse)
		r.Post("/ingest", handler.Ingest)
		r.Get("/users/{userId}", handler.ListUserTransactions)
		r.Get("/{id}", handler.GetTransaction)
	})

	router.Get("/evaluations/{id}", handler.GetEvaluation)
	router.Get("/runs/{runKey}", handler.GetRun)
	router.Get("/catalog", handler.GetCatalog)

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
