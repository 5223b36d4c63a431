package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/copad/internal/logger"
	"github.com/marmos91/copad/pkg/metrics"
	"github.com/marmos91/copad/pkg/registry"
	"github.com/marmos91/copad/pkg/store"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /api/socket/{id}      - Websocket session for a document
//   - GET  /api/text/{id}        - Current plain text of a document
//   - POST /api/create           - Create a document with a fresh ID
//   - POST /api/create/{language} - Create a document pre-set to a language
//   - GET  /api/stats            - Server statistics
//   - GET  /health               - Liveness probe
//   - GET  /metrics              - Prometheus metrics (when enabled)
//
// No request timeout middleware is applied: the websocket route holds its
// connection open for the lifetime of the editing session.
func NewRouter(reg *registry.Registry, st store.Store) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	h := NewHandler(reg, st)

	r.Route("/api", func(r chi.Router) {
		r.Get("/socket/{id}", h.Socket)
		r.Get("/text/{id}", h.Text)
		r.Post("/create", h.Create)
		r.Post("/create/{language}", h.Create)
		r.Get("/stats", h.Stats)
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// isQuietPath returns true for endpoints whose completion should be logged
// at DEBUG level to reduce noise.
func isQuietPath(path string) bool {
	return path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/health/")
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Health and metrics requests are logged at DEBUG level
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("request started",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			logger.KeyRemoteAddr, r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		if isQuietPath(r.URL.Path) {
			logger.Debug("request completed", logArgs...)
		} else {
			logger.Info("request completed", logArgs...)
		}
	})
}
