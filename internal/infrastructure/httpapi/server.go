// Package httpapi exposes the on-demand run trigger, the last run summary, health and metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Runner triggers ingestion runs and reports the latest one.
type Runner interface {
	FetchAllFeeds(ctx context.Context) (domain.RunSummary, error)
	LastSummary() (domain.RunSummary, bool)
}

// Server serves the trigger API on a gin engine.
type Server struct {
	runner  Runner
	metrics http.Handler
	logger  *slog.Logger
	engine  *gin.Engine
	srv     *http.Server
}

// New builds the router. A nil metrics handler leaves /metrics unregistered.
func New(addr string, runner Runner, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{runner: runner, metrics: metrics, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.engine.Group("/api/ingest")
	api.POST("/run", s.triggerRun)
	api.GET("/last", s.lastRun)
}

// Run serves until ctx is done and then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("http api listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// triggerRun handles POST /api/ingest/run. The run outlives a disconnecting client.
func (s *Server) triggerRun(c *gin.Context) {
	summary, err := s.runner.FetchAllFeeds(context.WithoutCancel(c.Request.Context()))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, summary)
	case errors.Is(err, usecase.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "kind": "config"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
	}
}

// lastRun handles GET /api/ingest/last.
func (s *Server) lastRun(c *gin.Context) {
	summary, ok := s.runner.LastSummary()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has finished yet"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			return
		}
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
