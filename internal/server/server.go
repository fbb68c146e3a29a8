// Package server exposes the generator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"codearchitect/internal/generator"
	"codearchitect/internal/llm"
	"codearchitect/internal/metrics"
	"codearchitect/internal/orchestrator"
	"codearchitect/internal/planner"
	"codearchitect/internal/storage"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HeaderAPIKey carries a per-request provider key.
const HeaderAPIKey = "X-Api-Key"

const defaultListLimit = 50

// GeneratorFactory builds a provider client. An empty apiKey selects the
// configured key.
type GeneratorFactory func(ctx context.Context, apiKey string) (llm.Generator, error)

// Deps are the collaborators a Server needs. Store, Metrics and Limiter may
// be nil. Limiter throttles every request's client from one bucket, so
// NewGenerator should return unthrottled clients.
type Deps struct {
	NewGenerator GeneratorFactory
	Orchestrator orchestrator.Config
	Store        storage.RunStore
	Metrics      *metrics.Metrics
	Limiter      *rate.Limiter
}

type Config struct {
	Addr string
}

// Server provides HTTP endpoints for running and browsing generations.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.NewGenerator == nil {
		return nil, fmt.Errorf("generator factory cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Addr: ":8080"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
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
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleCreateRun)
	v1.POST("/plans", s.handleCreatePlan)
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.GET("/runs/:id/script", s.handleGetScript)
}

// RunRequest is the request body for POST /api/v1/runs and /api/v1/plans.
type RunRequest struct {
	Prompt         string `json:"prompt"`
	Language       string `json:"language,omitempty"`
	SectionHeaders *bool  `json:"section_headers,omitempty"`
}

// RunResponse is the response body for run endpoints. Run is present on
// failures too so clients can inspect the archived record.
type RunResponse struct {
	Run   *orchestrator.Result `json:"run,omitempty"`
	Error string               `json:"error,omitempty"`
}

type PlanResponse struct {
	Plan  *planner.Plan `json:"plan,omitempty"`
	Error string        `json:"error,omitempty"`
}

type ListResponse struct {
	Runs []storage.RunSummary `json:"runs"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateRun(c echo.Context) error {
	req, err := s.bindRunRequest(c)
	if err != nil {
		return err
	}

	cfg := s.deps.Orchestrator
	if req.SectionHeaders != nil {
		cfg.SectionHeaders = *req.SectionHeaders
	}
	orch, err := s.orchestrator(c, cfg)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	res, runErr := orch.Run(ctx, generator.Request{Prompt: req.Prompt, Language: req.Language})
	if res != nil && s.deps.Store != nil {
		// The client may have gone away; archive regardless.
		if err := s.deps.Store.SaveRun(context.WithoutCancel(ctx), res); err != nil {
			s.logger.Error("failed to archive run", zap.String("run_id", res.ID), zap.Error(err))
		}
	}
	if runErr != nil {
		return c.JSON(statusFor(runErr), RunResponse{Run: res, Error: runErr.Error()})
	}
	return c.JSON(http.StatusOK, RunResponse{Run: res})
}

func (s *Server) handleCreatePlan(c echo.Context) error {
	req, err := s.bindRunRequest(c)
	if err != nil {
		return err
	}
	orch, err := s.orchestrator(c, s.deps.Orchestrator)
	if err != nil {
		return err
	}

	plan, err := orch.Plan(c.Request().Context(), generator.Request{Prompt: req.Prompt, Language: req.Language})
	if err != nil {
		return c.JSON(statusFor(err), PlanResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, PlanResponse{Plan: &plan})
}

func (s *Server) handleListRuns(c echo.Context) error {
	store, err := s.store()
	if err != nil {
		return err
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}

	runs, err := store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	return c.JSON(http.StatusOK, ListResponse{Runs: runs})
}

func (s *Server) handleGetRun(c echo.Context) error {
	res, err := s.loadRun(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RunResponse{Run: res})
}

func (s *Server) handleGetScript(c echo.Context) error {
	res, err := s.loadRun(c)
	if err != nil {
		return err
	}
	if res.Script == "" {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("run %s has no script (state %s)", res.ID, res.State))
	}

	name := generator.LookupLanguage(res.Request.Language).FileName()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.String(http.StatusOK, res.Script)
}

func (s *Server) bindRunRequest(c echo.Context) (RunRequest, error) {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid run request", zap.Error(err))
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Prompt == "" {
		return req, echo.NewHTTPError(http.StatusBadRequest, "prompt field is required")
	}
	return req, nil
}

func (s *Server) orchestrator(c echo.Context, cfg orchestrator.Config) (*orchestrator.Orchestrator, error) {
	gen, err := s.deps.NewGenerator(c.Request().Context(), c.Request().Header.Get(HeaderAPIKey))
	if err != nil {
		s.logger.Warn("failed to build provider client", zap.Error(err))
		var pe *llm.ProviderError
		if errors.As(err, &pe) {
			return nil, echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "provider client unavailable")
	}
	if s.deps.Limiter != nil {
		gen = llm.NewRateLimited(gen, s.deps.Limiter)
	}
	logger := s.logger.With(zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
	return orchestrator.New(gen, cfg,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(s.deps.Metrics),
	), nil
}

func (s *Server) store() (storage.RunStore, error) {
	if s.deps.Store == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "run archive is disabled")
	}
	return s.deps.Store, nil
}

func (s *Server) loadRun(c echo.Context) (*orchestrator.Result, error) {
	store, err := s.store()
	if err != nil {
		return nil, err
	}
	res, err := store.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		s.logger.Error("failed to load run", zap.String("run_id", c.Param("id")), zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}
	return res, nil
}

// statusFor maps a run or plan error to an HTTP status.
func statusFor(err error) int {
	var parseErr *planner.ParseError
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, orchestrator.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
