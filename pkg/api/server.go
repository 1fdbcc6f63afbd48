package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/droserasprout/slskd/internal/logger"
	"github.com/droserasprout/slskd/pkg/upload"
)

// Server is the management API HTTP server. It exposes read-only views
// over the upload governor and supports graceful shutdown.
type Server struct {
	server *http.Server
	config APIConfig
}

// NewServer creates a management API server over the given governor.
//
// Defaults are applied here so the server works correctly even when
// created directly (e.g., in tests); this is idempotent with the defaults
// applied during config loading.
func NewServer(config APIConfig, governor *upload.Governor) *Server {
	config.applyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewRouter(governor),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		logger.Info("API server stopped")
		return nil
	}
}
