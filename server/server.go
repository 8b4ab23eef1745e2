// Package server assembles the HTTP surface of the matching service.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/refind-ai/refind/internal/profile"
	apiv1 "github.com/refind-ai/refind/server/router/api/v1"
	"github.com/refind-ai/refind/store"
)

// HealthChecker is any collaborator that can report readiness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// EngineReadiness reports whether the matching engine can serve requests.
type EngineReadiness interface {
	Ready(ctx context.Context) error
}

// Server hosts the matching API.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	store      *store.Store
	cache      HealthChecker
	engine     EngineReadiness
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(profile *profile.Profile, st *store.Store, cache HealthChecker, engine EngineReadiness, api *apiv1.APIV1Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	s := &Server{
		echoServer: e,
		profile:    profile,
		store:      st,
		cache:      cache,
		engine:     engine,
	}

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	api.RegisterRoutes(e)

	return s
}

// Start begins serving. It blocks until the listener fails or is shut down.
func (s *Server) Start(_ context.Context) error {
	return s.echoServer.Start(s.profile.ListenAddress())
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server gracefully", "error", err)
	}
}

type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// healthz reports per-component readiness. Redis being down degrades the
// service (cache misses) but does not fail health.
func (s *Server) healthz(c echo.Context) error {
	ctx := c.Request().Context()
	components := map[string]componentHealth{}
	healthy := true

	if err := s.store.Ping(ctx); err != nil {
		components["item_store"] = componentHealth{Status: "down", Error: err.Error()}
		healthy = false
	} else {
		components["item_store"] = componentHealth{Status: "ok"}
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			components["cache_store"] = componentHealth{Status: "degraded", Error: err.Error()}
		} else {
			components["cache_store"] = componentHealth{Status: "ok"}
		}
	}

	if s.engine != nil {
		if err := s.engine.Ready(ctx); err != nil {
			components["engine"] = componentHealth{Status: "down", Error: err.Error()}
			healthy = false
		} else {
			components["engine"] = componentHealth{Status: "ok"}
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unavailable"
	}
	return c.JSON(status, map[string]any{
		"status":     overall,
		"components": components,
	})
}
