// Package api exposes the stored entries, crawl history and refresh controls
// over HTTP.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/config"
	"github.com/Jadaunkg/job-portal-crawler/internal/metrics"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/processor"
	"github.com/Jadaunkg/job-portal-crawler/internal/refresh"
)

// Reader is the read side of the store; *processor.Processor implements it.
type Reader interface {
	Statistics(ctx context.Context) (processor.Statistics, error)
	PortalStatistics(ctx context.Context) (map[string]map[model.Category]int, error)
	Entries(ctx context.Context, c model.Category, limit int) ([]model.Entry, error)
	Lookup(ctx context.Context, c model.Category, id string) (model.Detailed, error)
	History(ctx context.Context, limit int) ([]*model.CrawlHistory, error)
}

// Enricher runs detail-fetches; *crawler.Coordinator implements it.
type Enricher interface {
	EnrichOne(ctx context.Context, c model.Category, id string) (*model.DetailedInfo, error)
	FetchDetails(ctx context.Context, pageURL string, hint model.ContentType) (*model.DetailedInfo, error)
}

// Refresher controls background pipeline runs; *refresh.Guard implements it.
type Refresher interface {
	Trigger(ctx context.Context, trigger string) error
	Status() refresh.Status
	Reset() error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Reader    Reader
	Enricher  Enricher
	Refresher Refresher
	Clock     Clock
	Portals   []config.PortalConfig
	Version   string
}

// Server wires HTTP handlers to the processor, coordinator and refresh guard.
type Server struct {
	router  chi.Router
	deps    Deps
	cfg     config.Config
	started time.Time
	logger  *zap.Logger
}

const maxBatchURLs = 50

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		started: deps.Clock.Now(),
		logger:  logger.Named("api"),
	}
	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/status", s.status)
		r.Get("/stats", s.stats)
		r.Get("/stats/by-portal", s.statsByPortal)
		r.Get("/portals", s.portals)
		r.Get("/history", s.history)

		for _, c := range model.ListingCategories {
			s.mountListing(r, c)
		}
		r.Get("/notifications", s.listEntries(model.CategoryNotifications))

		r.Post("/details/fetch", s.fetchDetails)
		r.Post("/details/batch", s.fetchDetailsBatch)

		r.Post("/refresh", s.triggerRefresh)
		r.Get("/refresh/status", s.refreshStatus)
		r.Post("/refresh/reset", s.resetRefresh)
	})

	s.router = r
	return s
}

// mountListing registers the routes of one listing category under its
// hyphenated path, e.g. /admit-cards.
func (s *Server) mountListing(r chi.Router, c model.Category) {
	r.Route("/"+pathSegment(c), func(r chi.Router) {
		r.Get("/", s.listEntries(c))
		r.Post("/search", s.searchEntries(c))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getEntry(c))
			r.Get("/details", s.getEntryDetails(c))
			r.Post("/details", s.enrichEntry(c))
		})
	})
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Reader.History(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

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

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
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
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
