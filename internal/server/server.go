package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/config"
	"github.com/stockdesk/apipulse/internal/handler"
	"github.com/stockdesk/apipulse/internal/ingest"
	"github.com/stockdesk/apipulse/internal/metrics"
	"github.com/stockdesk/apipulse/internal/middleware"
	"github.com/stockdesk/apipulse/internal/response"
	"github.com/stockdesk/apipulse/internal/status"
	"github.com/stockdesk/apipulse/internal/worker"
)

// Deps are the stores and integrations the server is built on. Snapshots and
// NewRelic are optional.
type Deps struct {
	Logs      status.LogStore
	Records   status.RecordStore
	Snapshots handler.SnapshotCache
	NewRelic  *newrelic.Application
	Registry  *prometheus.Registry
	Log       zerolog.Logger
}

// Server holds the Echo app and the background machinery behind it.
type Server struct {
	Echo     *echo.Echo
	Config   *config.Config
	Updater  *status.Updater
	Metrics  *metrics.Metrics
	pool     *worker.Pool
	recorder *status.Recorder
	log      zerolog.Logger
}

// New builds the Echo server and registers routes.
func New(cfg *config.Config, deps Deps) *Server {
	log := deps.Log
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	updater := status.NewUpdater(deps.Records, log)
	aggregator := status.NewAggregator(deps.Logs, deps.Records, log)
	recorder := status.NewRecorder(deps.Logs, updater, status.RecorderConfig{
		UpdateTimeout: cfg.Status.UpdateTimeoutDuration(),
		Metrics:       m,
		Logger:        log,
	})
	pool := worker.NewPool(cfg.Status.Workers, cfg.Status.QueueSize, m, log)
	dispatcher := NewDispatcher(pool, recorder, updater, cfg.Status.UpdateTimeoutDuration(), log)
	validate := validator.New()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.HTTPErrorHandler
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	e.Use(
		echomw.Recover(),
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.NewRelic(deps.NewRelic),
	)
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.Server.CORSAllowedOrigins}))
	}
	e.Use(middleware.Capture(middleware.CaptureConfig{
		CaptureBodies:    cfg.Status.CaptureBodies,
		CaptureResponses: cfg.Status.CaptureResponses,
		MaxBodyBytes:     cfg.Status.MaxBodyBytes,
		SkipPaths:        cfg.Status.SkipPaths,
		SlowThreshold:    time.Duration(cfg.Status.SlowRequestThreshold) * time.Millisecond,
	}, dispatcher.Submit, m, log))
	if cfg.RateLimit.RequestsPerMinute > 0 {
		e.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerMinute, dispatcher, m, log))
	}

	var guards []echo.MiddlewareFunc
	if cfg.Auth.JWTSecret != "" {
		guards = append(guards, middleware.JWTGuard(cfg.Auth.JWTSecret, dispatcher, m, log))
	} else {
		log.Warn().Msg("auth.jwt_secret not set, status write endpoints are unauthenticated")
	}

	apiStatus := &handler.APIStatusHandler{
		Logs:        deps.Logs,
		Aggregator:  aggregator,
		Updater:     updater,
		CacheEvents: dispatcher,
		Snapshots:   deps.Snapshots,
		Validate:    validate,
		Log:         log,
	}
	apiStatus.Register(e.Group("/api-status"))

	extended := &handler.ExtendedStatusHandler{
		Aggregator: aggregator,
		Updater:    updater,
		Validate:   validate,
		Log:        log,
	}
	extended.Register(e.Group("/status/extended"), guards...)

	source := ingest.NewSource(ingest.SinkFunc(dispatcher.Submit), validate, log)
	e.POST("/ingest/observations", source.Handle, guards...)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	return &Server{
		Echo:     e,
		Config:   cfg,
		Updater:  updater,
		Metrics:  m,
		pool:     pool,
		recorder: recorder,
		log:      log,
	}
}

// Start serves HTTP until ctx is cancelled or the listener fails. On cancel the
// server is shut down and queued observations are flushed.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + s.Config.Server.Port
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests, then drains the worker queue and the
// in-flight status updates.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	if err := s.recorder.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("status updates: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		s.log.Error().Err(err).Msg("shutdown incomplete")
	} else {
		s.log.Info().Msg("server stopped")
	}
	return err
}
