// Package httpapi exposes manual run triggers, stored digests and metrics.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
	"UpdatesDigest/internal/usecase"
)

// Runner executes pipeline runs; the bool is false when the run was skipped
// because another one is in progress.
type Runner interface {
	RunDaily(ctx context.Context, req usecase.RunRequest) (usecase.RunResult, bool)
	RunRolling(ctx context.Context, req usecase.RollingRequest) (usecase.RunResult, bool)
}

// Server wraps the echo instance.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	digests ports.DigestRepository
	loc     *time.Location
	logger  *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

// DailyRunRequest is the body of POST /runs/daily.
type DailyRunRequest struct {
	// Date is YYYY-MM-DD; empty means today.
	Date            string `json:"date"`
	ForceRegenerate bool   `json:"force"`
	SkipFetch       bool   `json:"skipFetch"`
	Publish         bool   `json:"publish"`
}

// RollingRunRequest is the body of POST /runs/rolling.
type RollingRunRequest struct {
	RecentWindowDays int  `json:"recentWindowDays"`
	MissedWindowDays int  `json:"missedWindowDays"`
	FetchFresh       bool `json:"fetchFresh"`
	Publish          bool `json:"publish"`
	DryRun           bool `json:"dryRun"`
}

// New registers routes. metrics may be nil.
func New(runner Runner, digests ports.DigestRepository, metrics http.Handler, loc *time.Location, log *slog.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("http request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s := &Server{echo: e, runner: runner, digests: digests, loc: loc, logger: log}
	e.HTTPErrorHandler = s.handleError

	e.GET("/healthz", s.health)
	e.POST("/runs/daily", s.runDaily)
	e.POST("/runs/rolling", s.runRolling)
	e.GET("/digests/:date", s.digest)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
	return s
}

// Handler exposes the router for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving addr until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) runDaily(c echo.Context) error {
	var body DailyRunRequest
	if err := bindOptional(c, &body); err != nil {
		return err
	}

	req := usecase.RunRequest{ForceRegenerate: body.ForceRegenerate, SkipFetch: body.SkipFetch, Publish: body.Publish}
	if body.Date != "" {
		day, err := time.ParseInLocation(time.DateOnly, body.Date, s.loc)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		req.TargetDate = day
	}

	res, ran := s.runner.RunDaily(runContext(c), req)
	return s.respondRun(c, res, ran)
}

func (s *Server) runRolling(c echo.Context) error {
	var body RollingRunRequest
	if err := bindOptional(c, &body); err != nil {
		return err
	}
	if body.RecentWindowDays < 0 || body.MissedWindowDays < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "window days must not be negative")
	}

	res, ran := s.runner.RunRolling(runContext(c), usecase.RollingRequest{
		RecentWindowDays: body.RecentWindowDays,
		MissedWindowDays: body.MissedWindowDays,
		FetchFresh:       body.FetchFresh,
		Publish:          body.Publish,
		DryRun:           body.DryRun,
	})
	return s.respondRun(c, res, ran)
}

// runContext keeps request values but outlives the client connection, so a
// disconnect cannot abort ingestion halfway.
func runContext(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

func (s *Server) respondRun(c echo.Context, res usecase.RunResult, ran bool) error {
	if !ran {
		return echo.NewHTTPError(http.StatusConflict, "another run is in progress")
	}
	status := http.StatusOK
	if !res.OK {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, res)
}

func (s *Server) digest(c echo.Context) error {
	date := c.Param("date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	d, err := s.digests.DigestByDate(c.Request().Context(), date)
	if errors.Is(err, domain.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no digest for "+date)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// bindOptional accepts an empty body as the zero request.
func bindOptional(c echo.Context, v any) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody{Error: msg})
}
