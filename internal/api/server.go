// Package api exposes the HTTP interface for the harvest service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/config"
	"github.com/oceansat/geoharvest/internal/harvest"
)

// Runner executes one harvest job for a source.
type Runner interface {
	RunJob(ctx context.Context, job harvest.Job) (harvest.Summary, error)
}

// Server wires HTTP handlers to the per-source harvest runners.
type Server struct {
	router  chi.Router
	runners map[string]Runner
	idGen   harvest.IDGenerator
	clock   harvest.Clock
	cfg     config.Config
	logger  *zap.Logger

	mu        sync.Mutex
	running   map[string]bool
	summaries map[string]harvest.Summary
}

// NewServer constructs a Server with middleware and routes. The runners map
// is keyed by source id.
func NewServer(
	runners map[string]Runner,
	idGen harvest.IDGenerator,
	clock harvest.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runners:   runners,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		running:   make(map[string]bool),
		summaries: make(map[string]harvest.Summary),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sources", s.listSources)
		r.Route("/sources/{source}", func(r chi.Router) {
			r.Post("/harvest", s.startHarvest)
			r.Get("/summary", s.getSummary)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	sources := make([]string, 0, len(s.runners))
	for name := range s.runners {
		sources = append(sources, name)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// harvestRequest optionally overrides the configured job settings for one run.
type harvestRequest struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	PageSize  *int    `json:"page_size"`
	Limit     *int    `json:"limit"`
	UpdateAll *bool   `json:"update_all"`
	SkipRaw   *bool   `json:"skip_raw"`
}

// startHarvest launches a harvest cycle for the source. At most one cycle
// runs per source at a time; a second request gets 409.
func (s *Server) startHarvest(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	runner, ok := s.runners[source]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	var req harvestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate job id: %v", err))
		return
	}
	job := harvest.Job{
		ID:       jobID,
		SourceID: source,
		Settings: s.settingsFor(source, req),
	}

	if !s.tryAcquire(source) {
		s.writeError(w, http.StatusConflict, "harvest already running for source")
		return
	}

	go func() {
		defer s.release(source)
		// Detached from the request; a harvest cycle outlives the HTTP call.
		summary, err := runner.RunJob(context.Background(), job)
		if err != nil {
			s.logger.Error("harvest job failed",
				zap.String("source", source),
				zap.String("job_id", jobID),
				zap.Error(err))
		}
		s.mu.Lock()
		s.summaries[source] = summary
		s.mu.Unlock()
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "source": source})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if _, ok := s.runners[source]; !ok {
		s.writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	s.mu.Lock()
	summary, ok := s.summaries[source]
	running := s.running[source]
	s.mu.Unlock()
	if !ok && !running {
		s.writeError(w, http.StatusNotFound, "no harvest has run for source")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"running": running, "summary": summary})
}

func (s *Server) settingsFor(source string, req harvestRequest) harvest.JobSettings {
	settings := s.cfg.Sources[source].Settings
	if req.StartDate != nil {
		settings.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		settings.EndDate = *req.EndDate
	}
	if req.PageSize != nil {
		settings.PageSize = *req.PageSize
	}
	if req.Limit != nil {
		settings.Limit = *req.Limit
	}
	if req.UpdateAll != nil {
		settings.UpdateAll = *req.UpdateAll
	}
	if req.SkipRaw != nil {
		settings.SkipRaw = *req.SkipRaw
	}
	return settings
}

func (s *Server) tryAcquire(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[source] {
		return false
	}
	s.running[source] = true
	return true
}

func (s *Server) release(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[source] = false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// timeoutMiddleware bounds handler time. Harvest cycles are unaffected:
// they run detached from the request context.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
