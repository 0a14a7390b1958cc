// Package httpserver provides the HTTP REST API server for the research
// analytics service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/repository"
)

// HealthChecker reports the document store's health. *database.DB satisfies
// it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server

	works        *repository.WorkRepository
	persons      *repository.PersonRepository
	affiliations *repository.AffiliationRepository
	sources      *repository.SourceRepository
	facets       *repository.FacetRepository
	plots        *repository.PlotRepository
	csv          *repository.CSVRepository

	db      HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger
	limiter *clientRateLimiter
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// RateLimitRPS caps requests per second per client address; zero
	// disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	MetricsEnabled bool
	MetricsPath    string
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	works *repository.WorkRepository,
	persons *repository.PersonRepository,
	affiliations *repository.AffiliationRepository,
	sources *repository.SourceRepository,
	facets *repository.FacetRepository,
	plots *repository.PlotRepository,
	csv *repository.CSVRepository,
	db HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		works:        works,
		persons:      persons,
		affiliations: affiliations,
		sources:      sources,
		facets:       facets,
		plots:        plots,
		csv:          csv,
		db:           db,
		metrics:      metrics,
		logger:       logger.With().Str("component", "http-server").Logger(),
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	s.router = s.buildRouter(cfg)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/app", func(r chi.Router) {
		r.Get("/work/{workID}", s.getWork)

		r.Route("/affiliation/{affiliationType}/{affiliationID}", func(r chi.Router) {
			r.Get("/", s.getAffiliation)
			r.Get("/affiliations", s.getRelatedAffiliations)
			r.Get("/research/products", s.affiliationWorks)
			r.Get("/research/products/filters", s.affiliationWorksFilters)
			r.Get("/research/products/csv", s.affiliationWorksCSV)
		})

		r.Route("/person/{personID}", func(r chi.Router) {
			r.Get("/", s.getPerson)
			r.Get("/research/products", s.personWorks)
			r.Get("/research/products/filters", s.personWorksFilters)
			r.Get("/research/products/csv", s.personWorksCSV)
		})

		r.Route("/source/{sourceID}", func(r chi.Router) {
			r.Get("/", s.getSource)
			r.Get("/research/products", s.sourceWorks)
			r.Get("/research/products/filters", s.sourceWorksFilters)
			r.Get("/research/products/csv", s.sourceWorksCSV)
		})

		r.Route("/search", func(r chi.Router) {
			r.Get("/works", s.searchWorks)
			r.Get("/works/filters", s.searchWorksFilters)
			r.Get("/persons", s.searchPersons)
			r.Get("/sources", s.searchSources)
			r.Get("/sources/filters", s.searchSourcesFilters)
		})
	})

	return r
}

// Router exposes the assembled handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler reports whether the service can reach the document store.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
