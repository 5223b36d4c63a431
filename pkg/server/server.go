// Package server exposes the collaborative editing service over HTTP: the
// websocket endpoint, the REST surface for reading and creating documents,
// health probes, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/marmos91/copad/internal/logger"
	"github.com/marmos91/copad/pkg/config"
)

// Server wraps the HTTP server hosting all copad routes.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. It supports graceful shutdown with a configurable timeout.
type Server struct {
	server       *http.Server
	config       config.ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates an HTTP server for the given handler.
//
// Read and write body timeouts are deliberately not set: websocket sessions
// hold their connection open for as long as the client stays on the
// document.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		config: cfg,
	}
}

// Start starts the HTTP server and blocks until the context is cancelled or
// an error occurs. Cancellation triggers graceful shutdown bounded by the
// configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server shutdown signal received")
		// Don't use the cancelled ctx: it would abort shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and safe to
// call concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			logger.Error("server shutdown error", "error", err)
		} else {
			logger.Info("server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
