// Package api exposes the HTTP interface for the site crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlasdir/site-crawler/internal/crawler"
	"github.com/atlasdir/site-crawler/internal/metrics"
)

// Server wires HTTP handlers to the crawl runner and record store.
type Server struct {
	router chi.Router
	runner *crawler.Runner
	store  crawler.RecordStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The store may
// be nil; site lookup and persistence endpoints then report the feature as
// unavailable.
func NewServer(runner *crawler.Runner, store crawler.RecordStore, logger *zap.Logger) *Server {
	s := &Server{
		runner: runner,
		store:  store,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(120 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", s.crawlOne)
		r.Post("/crawl/batch", s.crawlBatch)
		r.Post("/crawl/deep", s.crawlDeep)
		r.Get("/sites/{domain}", s.getSite)
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

type crawlRequest struct {
	URL       string `json:"url"`
	WebsiteID string `json:"website_id,omitempty"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

type deepRequest struct {
	URL      string `json:"url"`
	MaxDepth *int   `json:"max_depth,omitempty"`
}

func (s *Server) crawlOne(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.runner.CrawlOne(r.Context(), req.URL)

	if req.WebsiteID != "" {
		if s.store == nil {
			s.writeError(w, http.StatusServiceUnavailable, "no record store configured")
			return
		}
		if persistErr := s.runner.PersistResult(r.Context(), req.WebsiteID, result, err); persistErr != nil {
			status := http.StatusInternalServerError
			if errors.Is(persistErr, crawler.ErrRecordNotFound) {
				status = http.StatusNotFound
			}
			s.writeError(w, status, persistErr.Error())
			return
		}
	}

	if err != nil {
		s.writeError(w, crawlErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) crawlBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "urls are required")
		return
	}

	res := s.runner.CrawlBatch(r.Context(), req.URLs)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) crawlDeep(w http.ResponseWriter, r *http.Request) {
	var req deepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	maxDepth := -1
	if req.MaxDepth != nil {
		if *req.MaxDepth < 0 {
			s.writeError(w, http.StatusBadRequest, "max_depth must be >= 0")
			return
		}
		maxDepth = *req.MaxDepth
	}

	res, err := s.runner.DeepCrawl(r.Context(), req.URL, maxDepth)
	if err != nil {
		s.writeError(w, crawlErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no record store configured")
		return
	}
	domain := chi.URLParam(r, "domain")
	record, err := s.store.FindByDomain(r.Context(), domain)
	if err != nil {
		if errors.Is(err, crawler.ErrRecordNotFound) {
			s.writeError(w, http.StatusNotFound, "site not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// crawlErrorStatus maps engine errors onto HTTP statuses: bad input is the
// caller's fault, unreachable sites are upstream failures.
func crawlErrorStatus(err error) int {
	if errors.Is(err, crawler.ErrInvalidURL) {
		return http.StatusBadRequest
	}
	if kind, ok := crawler.FetchKind(err); ok {
		switch kind {
		case crawler.FetchTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
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
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
