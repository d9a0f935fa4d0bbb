package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Trigger starts background runs.
type Trigger interface {
	Start(ctx context.Context) bool
	Running() bool
	Last() *domain.RunOutcome
}

// Server exposes the run trigger, health and metrics over HTTP.
type Server struct {
	e      *echo.Echo
	runCtx context.Context
	runner Trigger
	log    logger.Logger
}

// New builds the router. Runs started over HTTP use runCtx, so they outlive
// the request and stop when the process shuts down.
func New(runCtx context.Context, runner Trigger, log logger.Logger) *Server {
	s := &Server{e: echo.New(), runCtx: runCtx, runner: runner, log: logger.Ensure(log)}
	s.e.HideBanner = true
	s.e.HidePort = true

	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.DebugObj("http request", "http_request", map[string]any{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			})
			return nil
		},
	}))

	s.e.POST("/run", s.handleRun)
	s.e.GET("/runs/last", s.handleLastRun)
	s.e.GET("/healthz", s.handleHealth)
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.e }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("trigger server listening", "server_start", map[string]any{"addr": addr})
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	s.log.Info("trigger server stopped")
	return nil
}

func (s *Server) handleRun(c echo.Context) error {
	if !s.runner.Start(s.runCtx) {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleLastRun(c echo.Context) error {
	last := s.runner.Last()
	if last == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no completed run yet")
	}
	return c.JSON(http.StatusOK, last.Snapshot())
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.runner.Running(),
	})
}
