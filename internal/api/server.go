// Package api exposes the HTTP interface for the quotes crawler.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/loader"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
	"github.com/JakeFAU/quotes-crawler/internal/planner"
	"github.com/JakeFAU/quotes-crawler/internal/store"
	"github.com/JakeFAU/quotes-crawler/internal/tracker"
)

// Service is what the handlers drive. *app.App implements it.
type Service interface {
	Crawl(ctx context.Context, w planner.Window) (crawler.RunSummary, error)
	Load(ctx context.Context, dir string, policy store.ChildPolicy) (loader.Summary, error)
	Records(ctx context.Context) ([]crawler.RawRecord, error)
	Processed() tracker.Set
	Stats(ctx context.Context) (store.Stats, error)
	Ping(ctx context.Context) error
	ListRuns(ctx context.Context) ([]crawler.RunSummary, error)
	GetRun(ctx context.Context, runID string) (crawler.RunSummary, error)
}

// Server wires HTTP handlers to the crawl and load pipelines.
type Server struct {
	router  chi.Router
	svc     Service
	cfg     config.Config
	logger  *zap.Logger
	crawlMu sync.Mutex
	loadMu  sync.Mutex
}

const readTimeout = 60 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(readTimeout))
		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
		r.Route("/v1", func(r chi.Router) {
			r.Get("/records", s.listRecords)
			r.Get("/state", s.getState)
			r.Get("/info", s.getInfo)
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{run_id}", s.getRun)
		})
	})

	// Crawl and load runs are bounded by the client connection, not a timeout.
	r.Post("/v1/crawl", s.crawl)
	r.Post("/v1/load", s.load)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	StartIndex *int `json:"start_index"`
	BatchSize  *int `json:"batch_size"`
	MaxTotal   *int `json:"max_total"`
}

type crawlResponse struct {
	Run   crawler.RunSummary `json:"run"`
	Error string             `json:"error,omitempty"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	window := planner.Window{
		Start:    valueOrDefault(req.StartIndex, s.cfg.Crawler.StartIndex),
		Size:     valueOrDefault(req.BatchSize, s.cfg.Crawler.BatchSize),
		MaxTotal: valueOrDefault(req.MaxTotal, s.cfg.Crawler.MaxTotal),
	}
	if err := window.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.crawlMu.TryLock() {
		writeError(w, http.StatusConflict, "crawl already running")
		return
	}
	defer s.crawlMu.Unlock()

	summary, err := s.svc.Crawl(r.Context(), window)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, planner.ErrInvalidWindow):
			status = http.StatusBadRequest
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		s.logger.Error("crawl failed", zap.Error(err))
		writeJSON(w, status, crawlResponse{Run: summary, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{Run: summary})
}

type loadRequest struct {
	Dir         string `json:"dir"`
	ChildPolicy string `json:"child_policy"`
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rawPolicy := req.ChildPolicy
	if rawPolicy == "" {
		rawPolicy = s.cfg.Loader.ChildPolicy
	}
	policy, err := store.ParseChildPolicy(rawPolicy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := s.loadDir(req.Dir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.loadMu.TryLock() {
		writeError(w, http.StatusConflict, "load already running")
		return
	}
	defer s.loadMu.Unlock()

	summary, err := s.svc.Load(r.Context(), dir, policy)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("directory %s not found", dir))
			return
		}
		s.logger.Error("load failed", zap.String("dir", dir), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// loadDir resolves a client-supplied directory inside records.dir. Absolute
// paths and paths that climb out of it are rejected.
func (s *Server) loadDir(rel string) (string, error) {
	if rel == "" {
		return s.cfg.Records.Dir, nil
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("dir must be a relative path inside the records directory")
	}
	return filepath.Join(s.cfg.Records.Dir, rel), nil
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.Records(r.Context())
	if err != nil {
		s.logger.Error("read records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "read records failed")
		return
	}
	if recs == nil {
		recs = []crawler.RawRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	set := s.svc.Processed()
	writeJSON(w, http.StatusOK, map[string]any{
		"processed_total": set.Len(),
		"processed":       set,
	})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []crawler.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.svc.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, crawler.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(body io.Reader, v any) error {
	if body == nil {
		return nil
	}
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
