// Package httpserver provides the HTTP REST API for the paper discovery service.
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
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/database"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/events"
	"github.com/helixir/paper-discovery-service/internal/ingest"
	"github.com/helixir/paper-discovery-service/internal/repository"
	"github.com/helixir/paper-discovery-service/internal/search"
)

// SearchService runs the discovery pipeline for a topic.
type SearchService interface {
	Search(ctx context.Context, topic string, opts search.Options) (*search.Response, error)
}

// IngestService persists papers into the library store.
type IngestService interface {
	IngestLightweight(ctx context.Context, input ingest.PaperInput) (*ingest.Result, error)
	IngestWithChunks(ctx context.Context, input ingest.PaperInput, chunks []ingest.ChunkInput) (*ingest.Result, error)
}

// JobService enqueues and inspects PDF acquisition jobs.
type JobService interface {
	Enqueue(ctx context.Context, paperID uuid.UUID, pdfURL, title string, priority domain.JobPriority) (*domain.PDFJob, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.PDFJob, error)
	ListByPaper(ctx context.Context, paperID uuid.UUID) ([]*domain.PDFJob, error)
}

// HealthChecker reports database health. *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	searches   SearchService
	ingests    IngestService
	jobs       JobService
	papers     repository.PaperRepository
	bus        *events.Bus
	health     HealthChecker
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server with all dependencies. The bus may be
// nil, in which case the job event stream only polls the store.
func NewServer(
	cfg Config,
	searches SearchService,
	ingests IngestService,
	jobs JobService,
	papers repository.PaperRepository,
	bus *events.Bus,
	health HealthChecker,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		searches: searches,
		ingests:  ingests,
		jobs:     jobs,
		papers:   papers,
		bus:      bus,
		health:   health,
		validate: validator.New(),
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

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
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.searchPapers)

		r.Route("/papers", func(r chi.Router) {
			r.Post("/", s.ingestPaper)
			r.Get("/", s.listPapers)
			r.Route("/{paperID}", func(r chi.Router) {
				r.Get("/", s.getPaper)
				r.Get("/chunks", s.getPaperChunks)
				r.Post("/pdf-jobs", s.enqueuePDFJob)
				r.Get("/pdf-jobs", s.listPaperJobs)
			})
		})

		r.Route("/pdf-jobs/{jobID}", func(r chi.Router) {
			r.Get("/", s.getPDFJob)
			r.Get("/events", s.streamJobEvents)
		})
	})

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
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
	health := s.health.Health(r.Context())
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

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
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
