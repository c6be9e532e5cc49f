package handler

import (
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
	"github.com/stockdesk/apipulse/internal/response"
	"github.com/stockdesk/apipulse/internal/status"
)

// MonitoringSnapshotKey names the cached monitoring view; cache hits and misses
// on it are reported as cache status under the same key.
const MonitoringSnapshotKey = "monitoring-snapshot"

// APIStatusHandler serves /api-status: request logs and endpoint health.
type APIStatusHandler struct {
	Logs        status.LogStore
	Aggregator  *status.Aggregator
	Updater     *status.Updater
	CacheEvents CacheReporter // receives snapshot hits and misses; optional
	Snapshots   SnapshotCache // optional
	Validate    *validator.Validate
	Log         zerolog.Logger
}

func (h *APIStatusHandler) Register(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/logs", h.ListLogs)
	g.GET("/stats", h.Stats)
	g.GET("/errors", h.Errors)
	g.GET("/endpoint/:endpoint", h.EndpointLogs)
	g.GET("/monitoring", h.Monitoring)
	g.POST("/healthy", h.MarkHealthy)
}

// Health is the liveness probe (GET /api-status/health).
func (h *APIStatusHandler) Health(c echo.Context) error {
	return response.OK(c, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    h.Aggregator.Uptime().Seconds(),
	}, "API is running successfully")
}

// ListLogs lists log entries newest first (GET /api-status/logs).
func (h *APIStatusHandler) ListLogs(c echo.Context) error {
	limit, err := queryInt(c, "limit", 100, maxListLimit)
	if err != nil {
		return response.BadRequest(c, "invalid pagination", err.Error())
	}
	skip, err := queryInt(c, "skip", 0, 0)
	if err != nil {
		return response.BadRequest(c, "invalid pagination", err.Error())
	}
	logs, err := h.Logs.List(c.Request().Context(), limit, skip)
	if err != nil {
		h.Log.Error().Err(err).Msg("list api logs")
		logs = []model.LogEntry{}
	}
	return response.OK(c, map[string]any{
		"logs":       logs,
		"pagination": response.Pagination{Limit: limit, Skip: skip, Count: len(logs)},
	}, "")
}

func (h *APIStatusHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	return response.OK(c, map[string]any{
		"overview":  h.Aggregator.Stats(ctx),
		"endpoints": h.Aggregator.Endpoints(ctx),
		"timestamp": time.Now().UTC(),
	}, "")
}

func (h *APIStatusHandler) Errors(c echo.Context) error {
	limit, err := queryInt(c, "limit", 50, maxListLimit)
	if err != nil {
		return response.BadRequest(c, "invalid limit", err.Error())
	}
	errs, err := h.Logs.ListErrors(c.Request().Context(), limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("list error logs")
		errs = []model.LogEntry{}
	}
	return response.OK(c, map[string]any{"errors": errs, "limit": limit}, "")
}

// EndpointLogs lists entries whose URL matches the :endpoint pattern.
func (h *APIStatusHandler) EndpointLogs(c echo.Context) error {
	endpoint := c.Param("endpoint")
	if unescaped, err := url.PathUnescape(endpoint); err == nil {
		endpoint = unescaped
	}
	limit, err := queryInt(c, "limit", 50, maxListLimit)
	if err != nil {
		return response.BadRequest(c, "invalid limit", err.Error())
	}
	logs, err := h.Logs.ListByURL(c.Request().Context(), endpoint, limit)
	if err != nil {
		h.Log.Error().Err(err).Str("endpoint", endpoint).Msg("list endpoint logs")
		logs = []model.LogEntry{}
	}
	return response.OK(c, map[string]any{"endpoint": endpoint, "logs": logs, "limit": limit}, "")
}

// Monitoring serves the dashboard view, from the snapshot cache when enabled.
func (h *APIStatusHandler) Monitoring(c echo.Context) error {
	ctx := c.Request().Context()
	if h.Snapshots == nil {
		return response.OK(c, h.Aggregator.Monitoring(ctx), "")
	}

	var snap model.Monitoring
	hit, err := h.Snapshots.Get(ctx, MonitoringSnapshotKey, &snap)
	if err != nil {
		h.Log.Warn().Err(err).Msg("read monitoring snapshot")
	}
	h.reportCache(c, hit)
	if hit {
		return response.OK(c, snap, "")
	}

	snap = h.Aggregator.Monitoring(ctx)
	if err := h.Snapshots.Set(ctx, MonitoringSnapshotKey, snap); err != nil {
		h.Log.Warn().Err(err).Msg("write monitoring snapshot")
	}
	return response.OK(c, snap, "")
}

func (h *APIStatusHandler) reportCache(c echo.Context, hit bool) {
	if h.CacheEvents == nil {
		return
	}
	op := status.CacheMiss
	if hit {
		op = status.CacheHit
	}
	if err := h.CacheEvents.RecordCacheOperation(c.Request().Context(), MonitoringSnapshotKey, op); err != nil {
		h.Log.Error().Err(err).Msg("record snapshot cache operation")
	}
}

type markHealthyRequest struct {
	Domain string `json:"domain" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

// MarkHealthy clears a record's sticky unhealthy flag (POST /api-status/healthy).
func (h *APIStatusHandler) MarkHealthy(c echo.Context) error {
	var req markHealthyRequest
	if err := bindValid(c, h.Validate, &req); err != nil {
		return response.BadRequest(c, "invalid request", err.Error())
	}
	d, ok := model.ParseDomain(req.Domain)
	if !ok {
		return response.BadRequest(c, "invalid request", "unknown domain: "+req.Domain)
	}
	rec, err := h.Updater.MarkHealthy(c.Request().Context(), d, req.Key)
	if err != nil {
		return writeError(c, "mark healthy failed", err)
	}
	return response.OK(c, rec, "status marked healthy")
}
