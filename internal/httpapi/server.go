// Package httpapi builds the gin.Engine shared by the MCP SSE transport and
// the metrics/health surface, and owns its lifecycle (start, graceful
// shutdown on SIGINT/SIGTERM). Grounded on
// infrastructure/gin/{server.go,middleware.go,config.go}'s
// build-then-RunWithGracefulShutdown shape.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/logger"
	"github.com/michiel/ratchet-sub007/internal/metrics"
)

// Server wraps a gin.Engine with the standard middleware stack and an
// http.Server lifecycle.
type Server struct {
	router *gin.Engine
	server *http.Server
	log    logger.Logger
	cfg    config.ServerConfig
}

// New builds a Server with recovery, request-id/logging, CORS and metrics
// middleware applied, then lets register attach routes (the MCP SSE
// transport's Register, plus /metrics from mtr).
func New(cfg config.ServerConfig, log logger.Logger, mtr *metrics.Metrics, register func(*gin.Engine)) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg))
	if mtr != nil {
		router.Use(mtr.Middleware())
		router.GET("/metrics", gin.WrapH(mtr.Handler()))
	}

	if register != nil {
		register(router)
	}

	return &Server{
		router: router,
		log:    log,
		cfg:    cfg,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Router exposes the engine for tests that want to drive requests directly.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the server, blocking until it stops or errors.
func (s *Server) Start() error {
	s.log.Info("starting http server", logger.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine, returning a channel that receives
// at most one error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// finish until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// RunWithGracefulShutdown starts the server and blocks until ctx is
// cancelled, a SIGINT/SIGTERM is received, or the server itself errors,
// then shuts down gracefully with a fresh background context (the
// triggering ctx may already be done).
func (s *Server) RunWithGracefulShutdown(ctx context.Context) error {
	errCh := s.StartAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		s.log.Info("context cancelled, shutting down http server")
	}

	return s.Shutdown(context.Background())
}
