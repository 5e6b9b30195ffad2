// Package server exposes the pipeline output tables over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"plus-ev-alerts/internal/config"
	"plus-ev-alerts/internal/metrics"
	"plus-ev-alerts/internal/odds"
	"plus-ev-alerts/internal/storage"
)

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 1000
)

// Lines lists the output tables of the last run.
type Lines interface {
	ListEvaluatedLines(ctx context.Context) ([]odds.Opportunity, error)
	ListPlusEV(ctx context.Context) ([]odds.Opportunity, error)
}

// ArchiveReader lists recently recommended bets.
type ArchiveReader interface {
	ListRecentArchive(ctx context.Context, limit int) ([]storage.RecommendedBet, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the data sources behind the routes. Health may be nil.
type Deps struct {
	Lines   Lines
	Archive ArchiveReader
	Health  Pinger
	Metrics *metrics.Metrics
}

// Server serves the read API.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	logger zerolog.Logger
}

// New constructs a Server.
func New(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, deps: deps, logger: logger.With().Str("component", "server").Logger()}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Get("/best-lines", s.bestLines)
	r.Get("/recommended-bets", s.recommendedBets)
	r.Get("/archive", s.archive)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{}))

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			s.respondError(w, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) bestLines(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Lines.ListEvaluatedLines(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list best lines", err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) recommendedBets(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Lines.ListPlusEV(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list recommended bets", err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
		return
	}
	rows, err := s.deps.Archive.ListRecentArchive(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list archive", err)
		return
	}
	if rows == nil {
		rows = []storage.RecommendedBet{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		s.logger.Error().Err(err).Int("status", status).Msg(message)
	}
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultArchiveLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	if n > maxArchiveLimit {
		n = maxArchiveLimit
	}
	return n, nil
}

func nonNil(rows []odds.Opportunity) []odds.Opportunity {
	if rows == nil {
		return []odds.Opportunity{}
	}
	return rows
}
