package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/metrics"
	"github.com/JakeFAU/hackathon-harvester/internal/pipeline"
)

// ProjectReader is the read side of harvest.Store.
type ProjectReader interface {
	Get(ctx context.Context, url string) (harvest.ProjectRecord, error)
	List(ctx context.Context, filter harvest.ListFilter) ([]harvest.ProjectRecord, error)
	Count(ctx context.Context) (int, error)
}

// Config controls server behaviour and run defaults.
type Config struct {
	APIKey          string
	RequestTimeout  time.Duration
	DefaultQuery    string
	DefaultMaxPages int
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Server wires HTTP handlers to the run registry and the project store.
type Server struct {
	router   chi.Router
	projects ProjectReader
	runs     *Registry
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs may be nil,
// in which case run submission is disabled.
func NewServer(projects ProjectReader, runs *Registry, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		projects: projects,
		runs:     runs,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/{run_id}", s.getRun)
		})
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.listProjects)
			r.Get("/lookup", s.lookupProject)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.projects.Count(ctx); err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type runRequest struct {
	Query        string `json:"query"`
	MaxPages     *int   `json:"max_pages"`
	SkipClassify bool   `json:"skip_classify"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotImplemented, "runs are disabled")
		return
	}
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	opts := pipeline.Options{
		Query:        req.Query,
		MaxPages:     s.cfg.DefaultMaxPages,
		SkipClassify: req.SkipClassify,
	}
	if opts.Query == "" {
		opts.Query = s.cfg.DefaultQuery
	}
	if req.MaxPages != nil {
		if *req.MaxPages <= 0 {
			s.writeError(w, http.StatusBadRequest, "max_pages must be > 0")
			return
		}
		opts.MaxPages = *req.MaxPages
	}

	run, err := s.runs.Submit(opts)
	if errors.Is(err, ErrRunActive) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Failed to submit run", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to submit run")
		return
	}
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run, ok := s.runs.Get(chi.URLParam(r, "run_id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := harvest.ListFilter{Limit: defaultPageLimit}
	if raw := q.Get("unclassified"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "unclassified must be a boolean")
			return
		}
		filter.UnclassifiedOnly = v
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), defaultPageLimit); err != nil || filter.Limit <= 0 || filter.Limit > maxPageLimit {
		s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil || filter.Offset < 0 {
		s.writeError(w, http.StatusBadRequest, "offset must be >= 0")
		return
	}

	records, err := s.projects.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to list projects", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	if records == nil {
		records = []harvest.ProjectRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"projects": records,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (s *Server) lookupProject(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	record, err := s.projects.Get(r.Context(), target)
	if errors.Is(err, harvest.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to look up project", zap.String("url", target), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to look up project")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return v, nil
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("Request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", rec),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
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

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
