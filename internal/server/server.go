// Package server provides the changeset server the checkin CLI submits to.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/remote"
)

const (
	defaultListLimit = 50
	maxBodySize      = "32M"
)

// Server serves the changeset API.
type Server struct {
	echo     *echo.Echo
	store    *Store
	logger   *logging.Logger
	metrics  *Metrics
	registry *prometheus.Registry
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64
	Burst     int

	// Meter receives OTEL request metrics. Nil uses the global provider.
	Meter metric.Meter
}

// NewServer creates a new changeset server.
func NewServer(store *Store, logger *logging.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8765,
		}
	}

	registry := prometheus.NewRegistry()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(logger))
	e.Use(NewHTTPMetrics(cfg.Meter, logger).Middleware())
	e.Use(middleware.BodyLimit(maxBodySize))
	if cfg.RateLimit > 0 {
		e.Use(rateLimiter(cfg.RateLimit, cfg.Burst))
	}

	s := &Server{
		echo:     e,
		store:    store,
		logger:   logger,
		metrics:  NewMetrics(registry),
		registry: registry,
		config:   cfg,
	}
	s.metrics.Head.Set(float64(store.Head()))

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET(remote.HealthPath, s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/changesets", s.handleSubmit)
	v1.GET("/changesets", s.handleList)
	v1.GET("/changesets/:id", s.handleGet)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// requestLogger logs every request and puts the request id on the request
// context so handlers log with it.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), rid)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				// Let the error handler write the status before we log it.
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

func rateLimiter(limit float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(limit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, remote.ErrorResponse{
				Code:    remote.CodeRateLimited,
				Message: "rate limit exceeded",
			})
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "cannot identify client")
		},
	})
}

// errorHandler renders every error as a remote.ErrorResponse.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		code := remote.CodeInvalidRequest
		msg := http.StatusText(status)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = fmt.Sprint(he.Message)
			if status == http.StatusNotFound {
				code = remote.CodeNotFound
			}
		} else {
			logger.Error(c.Request().Context(), "unhandled error", zap.Error(err))
		}

		if err := c.JSON(status, remote.ErrorResponse{Code: code, Message: msg}); err != nil {
			logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(err))
		}
	}
}

// handleHealth reports liveness and the newest changeset id.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, remote.HealthResponse{Status: "ok", Head: s.store.Head()})
}

// handleSubmit records a changeset.
func (s *Server) handleSubmit(c echo.Context) error {
	ctx := c.Request().Context()
	start := time.Now()
	defer func() {
		s.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	}()

	var req remote.SubmitRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid changeset request", zap.Error(err))
		s.metrics.ChangesetsTotal.WithLabelValues(ResultInvalid).Inc()
		return c.JSON(http.StatusBadRequest, remote.ErrorResponse{
			Code:    remote.CodeInvalidRequest,
			Message: "invalid request body",
		})
	}

	cs, err := s.store.Submit(&req)
	if err != nil {
		status, code, result := classify(err)
		s.metrics.ChangesetsTotal.WithLabelValues(result).Inc()
		s.logger.Warn(ctx, "changeset rejected",
			zap.String("code", code),
			zap.Int("base_version", req.BaseVersion),
			zap.Int("changes", len(req.Changes)),
			zap.Error(err),
		)
		return c.JSON(status, remote.ErrorResponse{Code: code, Message: err.Error()})
	}

	s.metrics.ChangesetsTotal.WithLabelValues(ResultAccepted).Inc()
	s.metrics.Head.Set(float64(cs.ID))
	fields := []zap.Field{
		zap.Int("changeset", cs.ID),
		zap.String("uuid", cs.UUID),
		zap.String("author", cs.Author),
		zap.Int("changes", len(cs.Changes)),
	}
	if cs.Override != nil {
		s.metrics.OverridesTotal.Inc()
		s.logger.Warn(ctx, "changeset accepted with policy override",
			append(fields,
				zap.String("reason", cs.Override.Reason),
				zap.Strings("policies", cs.Override.Policies),
			)...,
		)
	} else {
		s.logger.Info(ctx, "changeset accepted", fields...)
	}

	return c.JSON(http.StatusCreated, remote.SubmitResponse{ID: cs.ID, UUID: cs.UUID})
}

// handleList returns the newest changesets. ?limit=N caps the count.
func (s *Server) handleList(c echo.Context) error {
	limit := defaultListLimit
	if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, remote.ErrorResponse{
				Code:    remote.CodeInvalidRequest,
				Message: fmt.Sprintf("invalid limit %q", v),
			})
		}
		limit = n
	}

	return c.JSON(http.StatusOK, remote.ChangesetList{
		Head:       s.store.Head(),
		Changesets: s.store.List(limit),
	})
}

// handleGet returns one changeset.
func (s *Server) handleGet(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, remote.ErrorResponse{
			Code:    remote.CodeInvalidRequest,
			Message: fmt.Sprintf("invalid changeset id %q", c.Param("id")),
		})
	}

	cs, err := s.store.Get(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, remote.ErrorResponse{
			Code:    remote.CodeNotFound,
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, cs)
}

// classify maps a store error to status, error code and metric result.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrStaleVersion):
		return http.StatusConflict, remote.CodeStaleVersion, ResultStale
	case errors.Is(err, ErrOverrideReasonRequired):
		return http.StatusUnprocessableEntity, remote.CodeReasonRequired, ResultRejected
	default:
		return http.StatusBadRequest, remote.CodeInvalidRequest, ResultInvalid
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting changeset server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down changeset server")
	return s.echo.Shutdown(ctx)
}
