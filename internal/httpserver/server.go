// Package httpserver exposes health, metrics and transcript retrieval over
// HTTP.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/datastore"
	"github.com/voicewire/voicewire-go/internal/diagnostics"
	"github.com/voicewire/voicewire-go/internal/logging"
	"github.com/voicewire/voicewire-go/internal/observability"
)

const defaultListLimit = 50

// Server serves the HTTP surface: /healthz, /metrics and the v1 JSON API.
type Server struct {
	Echo     *echo.Echo
	Settings *conf.Settings
	DS       datastore.Interface
	Metrics  *observability.Metrics

	log *slog.Logger
}

// New initializes the HTTP server. The datastore may be nil when no
// database output is enabled; transcript routes then return 503.
func New(settings *conf.Settings, ds datastore.Interface, metrics *observability.Metrics) *Server {
	s := &Server{
		Echo:     echo.New(),
		Settings: settings,
		DS:       ds,
		Metrics:  metrics,
		log:      logging.ForService("httpserver"),
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	s.Echo.Use(middleware.Recover())

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.Echo.GET("/healthz", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))

	v1 := s.Echo.Group("/api/v1")
	v1.GET("/transcripts", s.handleListTranscripts)
	v1.GET("/transcripts/:id", s.handleGetTranscript)
	v1.GET("/system", s.handleSystemInfo)
	v1.GET("/stats", s.handleStats)
}

// Start begins listening in a background goroutine. Startup failures other
// than a clean close are logged, not fatal.
func (s *Server) Start() {
	go func() {
		addr := ":" + s.Settings.WebServer.Port
		s.log.Info("http server listening", "addr", addr)
		if err := s.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	health := s.Metrics.HealthCheck()
	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, health)
}

func (s *Server) handleListTranscripts(c echo.Context) error {
	if s.DS == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no datastore configured")
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	if query := c.QueryParam("search"); query != "" {
		offset := 0
		if raw := c.QueryParam("offset"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
			}
			offset = parsed
		}
		records, err := s.DS.Search(query, limit, offset)
		if err != nil {
			s.log.Error("transcript search failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
		}
		return c.JSON(http.StatusOK, records)
	}

	records, err := s.DS.GetLast(limit)
	if err != nil {
		s.log.Error("transcript listing failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "listing failed")
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) handleGetTranscript(c echo.Context) error {
	if s.DS == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no datastore configured")
	}

	record, err := s.DS.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "transcript not found")
	}
	return c.JSON(http.StatusOK, record)
}

func (s *Server) handleSystemInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, diagnostics.CaptureSystemInfo())
}

func (s *Server) handleStats(c echo.Context) error {
	stats := s.Metrics.Pipeline.GetStats()
	return c.JSON(http.StatusOK, map[string]any{
		"frames_processed":      stats.FramesProcessed,
		"transcripts_completed": stats.TranscriptsCompleted,
		"wake_detections":       stats.WakeDetections,
		"state_transitions":     stats.StateTransitions,
		"errors":                stats.Errors,
		"error_rate_per_hour":   stats.ErrorRatePerHour,
		"current_state":         stats.CurrentState,
		"buffer_utilization":    stats.BufferUtilization,
		"latency_mean_ms":       stats.LatencyMeanMs,
		"latency_p95_ms":        stats.LatencyP95Ms,
		"latency_samples":       stats.LatencySamples,
	})
}
