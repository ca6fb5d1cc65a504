package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/config"
	"github.com/fyrsmithlabs/fixd/internal/coordinator"
	"github.com/fyrsmithlabs/fixd/internal/patterns"
	"github.com/fyrsmithlabs/fixd/internal/secrets"
)

// Workflows is the slice of the scheduler the API needs.
type Workflows interface {
	TriggerNow(ctx context.Context, template string) *coordinator.WorkflowExecution
	ScheduleBackground(template string, interval time.Duration)
	CancelBackground(template string) bool
	Signal(template string)
}

// Server provides HTTP endpoints for fixd.
type Server struct {
	echo      *echo.Echo
	workflows Workflows
	history   coordinator.History
	store     patterns.Store
	scrubber  secrets.Scrubber
	logger    *zap.Logger
	config    config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(workflows Workflows, history coordinator.History, store patterns.Store, scrubber secrets.Scrubber, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if workflows == nil {
		return nil, fmt.Errorf("workflows cannot be nil")
	}
	if scrubber == nil {
		return nil, fmt.Errorf("scrubber cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		workflows: workflows,
		history:   history,
		store:     store,
		scrubber:  scrubber,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/executions", s.handleListExecutions)
	v1.GET("/executions/:id", s.handleGetExecution)
	v1.POST("/trigger", s.handleTrigger)
	v1.POST("/schedule", s.handleSchedule)
	v1.DELETE("/schedule/:template", s.handleCancelSchedule)
	v1.POST("/signal", s.handleSignal)
	v1.GET("/patterns", s.handleListPatterns)
	v1.POST("/scrub-preview", s.handleScrubPreview)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListExecutions(c echo.Context) error {
	q := coordinator.Query{
		Status:   coordinator.Status(c.QueryParam("status")),
		Template: c.QueryParam("template"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC3339 timestamp")
		}
		q.Since = since
	}
	if raw := c.QueryParam("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "until must be an RFC3339 timestamp")
		}
		q.Until = until
	}

	execs, err := s.history.List(c.Request().Context(), q)
	if err != nil {
		s.logger.Error("listing executions failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list executions")
	}
	if execs == nil {
		execs = []*coordinator.WorkflowExecution{}
	}
	return c.JSON(http.StatusOK, execs)
}

func (s *Server) handleGetExecution(c echo.Context) error {
	exec, err := s.history.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, coordinator.ErrExecutionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}
	if err != nil {
		s.logger.Error("loading execution failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load execution")
	}
	return c.JSON(http.StatusOK, exec)
}

// TriggerRequest is the request body for POST /api/v1/trigger.
type TriggerRequest struct {
	Template string `json:"template"`
}

func (s *Server) handleTrigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Template == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template field is required")
	}

	exec := s.workflows.TriggerNow(c.Request().Context(), req.Template)
	return c.JSON(http.StatusOK, exec)
}

// ScheduleRequest is the request body for POST /api/v1/schedule.
type ScheduleRequest struct {
	Template string `json:"template"`
	Interval string `json:"interval,omitempty"`
}

func (s *Server) handleSchedule(c echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Template == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template field is required")
	}

	var interval time.Duration
	if req.Interval != "" {
		parsed, err := time.ParseDuration(req.Interval)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "interval must be a positive duration")
		}
		interval = parsed
	}

	s.workflows.ScheduleBackground(req.Template, interval)
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleCancelSchedule(c echo.Context) error {
	if !s.workflows.CancelBackground(c.Param("template")) {
		return echo.NewHTTPError(http.StatusNotFound, "no background job for template")
	}
	return c.NoContent(http.StatusNoContent)
}

// SignalRequest is the request body for POST /api/v1/signal.
type SignalRequest struct {
	Template string `json:"template"`
}

func (s *Server) handleSignal(c echo.Context) error {
	var req SignalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Template == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template field is required")
	}

	s.workflows.Signal(req.Template)
	return c.NoContent(http.StatusAccepted)
}

// PatternResponse is one entry in the GET /api/v1/patterns listing.
type PatternResponse struct {
	Key     string           `json:"key"`
	Pattern patterns.Pattern `json:"pattern"`
}

func (s *Server) handleListPatterns(c echo.Context) error {
	repository := c.QueryParam("repository")
	if repository == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repository query parameter is required")
	}

	prefix := patterns.KeyPrefix(repository, c.QueryParam("type"))
	var out []PatternResponse
	err := s.store.Scan(c.Request().Context(), prefix, func(key patterns.Key, p patterns.Pattern) bool {
		out = append(out, PatternResponse{Key: key.String(), Pattern: p})
		return true
	})
	if err != nil {
		s.logger.Error("pattern scan failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "pattern store unavailable")
	}
	if out == nil {
		out = []PatternResponse{}
	}
	return c.JSON(http.StatusOK, out)
}

// ScrubRequest is the request body for POST /api/v1/scrub-preview.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub-preview.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

// handleScrubPreview shows what anonymization would do to a payload
// without storing anything.
func (s *Server) handleScrubPreview(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.scrubber.Scrub(req.Content)

	s.logger.Debug("scrubbed content",
		zap.Int("findings", result.TotalFindings),
		zap.Strings("rules", result.RuleIDs()),
	)

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.TotalFindings,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
