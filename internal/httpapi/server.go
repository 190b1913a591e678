// Package httpapi provides the optional operational HTTP sidecar.
//
// The MCP stdio transport is the primary surface; this server only
// exposes health, readiness and metrics for process supervisors, plus
// a read-only status endpoint. It is disabled by default.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/instinctd/internal/factstore"
	"github.com/fyrsmithlabs/instinctd/internal/instinct"
)

// Config holds HTTP server configuration.
type Config struct {
	// Addr is the listen address (default: "127.0.0.1:9632").
	Addr string

	// DataDir is checked by the readiness probe.
	DataDir string
}

// Server provides operational HTTP endpoints for instinctd.
type Server struct {
	echo      *echo.Echo
	facts     *factstore.Store
	instincts *instinct.Store
	logger    *zap.Logger
	config    *Config
	metrics   *Metrics
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config, facts *factstore.Store, instincts *instinct.Store, logger *zap.Logger) (*Server, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if facts == nil {
		return nil, fmt.Errorf("fact store is required")
	}
	if instincts == nil {
		return nil, fmt.Errorf("instinct store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	m := NewMetrics(logger)
	e.Use(m.Middleware())

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		facts:     facts,
		instincts: instincts,
		logger:    logger,
		config:    cfg,
		metrics:   m,
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/readyz", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Facts     map[string]factstore.CategoryStatus `json:"facts"`
	Instincts int                                 `json:"instincts"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady reports ready once the data directory is accessible.
func (s *Server) handleReady(c echo.Context) error {
	if s.config.DataDir != "" {
		if _, err := os.Stat(s.config.DataDir); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusServiceUnavailable, "data directory not accessible")
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}

// handleStatus returns a read-only overview of both stores.
func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()

	summary := s.facts.Summary(ctx)
	facts := make(map[string]factstore.CategoryStatus, len(summary))
	for category, status := range summary {
		facts[string(category)] = status
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Facts:     facts,
		Instincts: len(s.instincts.List(ctx, nil)),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
