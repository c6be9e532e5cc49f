package handler

import (
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
	"github.com/stockdesk/apipulse/internal/response"
	"github.com/stockdesk/apipulse/internal/status"
)

// ExtendedStatusHandler serves /status/extended: per-subsystem status records,
// event recording and rollups.
type ExtendedStatusHandler struct {
	Aggregator *status.Aggregator
	Updater    *status.Updater
	Validate   *validator.Validate
	Log        zerolog.Logger
}

// Register mounts the routes on g; write routes additionally run guards.
func (h *ExtendedStatusHandler) Register(g *echo.Group, guards ...echo.MiddlewareFunc) {
	g.GET("/overview", h.Overview)
	g.GET("/database", h.list(model.DomainDatabase))
	g.GET("/auth", h.list(model.DomainAuth))
	g.GET("/external-service", h.list(model.DomainExternalService))
	g.GET("/cache", h.list(model.DomainCache))
	g.GET("/security", h.list(model.DomainSecurity))
	g.GET("/business", h.list(model.DomainBusinessLogic))

	g.GET("/health/database", h.DatabaseHealth)
	g.GET("/health/services", h.ServicesHealth)
	g.GET("/health/security", h.SecurityHealth)
	g.GET("/analytics/performance", h.Performance)

	g.POST("/auth/login-attempt", h.LoginAttempt, guards...)
	g.POST("/external-service/ping", h.Ping, guards...)
	g.POST("/cache/operation", h.CacheOperation, guards...)
	g.POST("/security/event", h.SecurityEvent, guards...)
	g.POST("/business/transaction", h.BusinessTransaction, guards...)

	g.POST("/database/:endpoint", h.update(model.DomainDatabase, "endpoint"), guards...)
	g.POST("/auth/:endpoint", h.update(model.DomainAuth, "endpoint"), guards...)
	g.POST("/external-service/:serviceName", h.update(model.DomainExternalService, "serviceName"), guards...)
	g.POST("/cache/:endpoint", h.update(model.DomainCache, "endpoint"), guards...)
	g.POST("/security/:endpoint", h.update(model.DomainSecurity, "endpoint"), guards...)
	g.POST("/business/:businessFunction", h.update(model.DomainBusinessLogic, "businessFunction"), guards...)
}

func (h *ExtendedStatusHandler) Overview(c echo.Context) error {
	return response.OK(c, h.Aggregator.Overview(c.Request().Context()), "")
}

func (h *ExtendedStatusHandler) list(d model.Domain) echo.HandlerFunc {
	return func(c echo.Context) error {
		return response.OK(c, h.Aggregator.Records(c.Request().Context(), d), "")
	}
}

func pathKey(c echo.Context, name string) string {
	key := c.Param(name)
	if unescaped, err := url.PathUnescape(key); err == nil {
		return unescaped
	}
	return key
}

// update overwrites fields of one record from a JSON object body.
func (h *ExtendedStatusHandler) update(d model.Domain, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := pathKey(c, param)
		var patch map[string]any
		if err := (&echo.DefaultBinder{}).BindBody(c, &patch); err != nil {
			return response.BadRequest(c, "invalid request", "body must be a JSON object")
		}
		if patch == nil {
			patch = map[string]any{}
		}
		rec, err := h.Updater.Update(c.Request().Context(), d, key, patch)
		if err != nil {
			return writeError(c, "update "+string(d)+" status failed", err)
		}
		return response.OK(c, rec, "status updated")
	}
}

type loginAttemptRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
	Success  *bool  `json:"success" validate:"required"`
	Reason   string `json:"reason"`
}

func (h *ExtendedStatusHandler) LoginAttempt(c echo.Context) error {
	var req loginAttemptRequest
	if err := bindValid(c, h.Validate, &req); err != nil {
		return response.BadRequest(c, "invalid request", err.Error())
	}
	if err := h.Updater.RecordLoginAttempt(c.Request().Context(), req.Endpoint, *req.Success, req.Reason); err != nil {
		return writeError(c, "record login attempt failed", err)
	}
	return response.OK(c, nil, "login attempt recorded")
}

type pingRequest struct {
	ServiceName  string   `json:"serviceName" validate:"required"`
	ResponseTime *float64 `json:"responseTime" validate:"required,gte=0"`
	Success      *bool    `json:"success" validate:"required"`
}

func (h *ExtendedStatusHandler) Ping(c echo.Context) error {
	var req pingRequest
	if err := bindValid(c, h.Validate, &req); err != nil {
		return response.BadRequest(c, "invalid request", err.Error())
	}
	if err := h.Updater.PingExternalService(c.Request().Context(), req.ServiceName, *req.ResponseTime, *req.Success); err != nil {
		return writeError(c, "record ping failed", err)
	}
	return response.OK(c, nil, "ping recorded")
}

type cacheOperationRequest struct {
	Endpoint  string `json:"endpoint" validate:"required"`
	Operation string `json:"operation" validate:"required"`
}

func (h *ExtendedStatusHandler) CacheOperation(c echo.Context) error {
	var req cacheOperationRequest
	if err := bindValid(c, h.Validate, &req); err != nil {
		return response.BadRequest(c, "invalid request", err.Error())
	}
	op := status.CacheOperation(req.Operation)
	if err := h.Updater.RecordCacheOperation(c.Request().Context(), req.Endpoint, op); err != nil {
		return writeError(c, "record cache operation failed", err)
	}
	return response.OK(c, nil, "cache operation recorded")
}

type securityEventRequest struct {
	Endpoint  string         `json:"endpoint" validate:"required"`
	EventType string         `json:"eventType" validate:"required"`
	Details   map[string]any `json:"details"`
}

func (h *ExtendedStatusHandler) SecurityEvent(c echo.Context) error {
	var req securityEventRequest
	if err := bindValid(c, h.Validate, &req); err != nil {
		return response.BadRequest(c, "invalid request", err.Error())
	}
	ev := status.SecurityEvent(req.EventType)
	if err := h.Updater.RecordSecurityEvent(c.Request().Context(), req.Endpoint, ev, req.Details); err != nil {
		return writeError(c, "record security event failed", err)
	}
	return response.OK(c, nil, "security event recorded")
}

type businessTransactionRequest struct {
	BusinessFunction string   `json:"businessFunction" validate:"required"`
	Success          *bool    `json:"success" validate:"required"`
	TransactionTime  *float64 `json:"transactionTime" validate:"required,gte=0"`
	Revenue          float64  `json:"revenue" validate:"gte=0"`
	FailureReason    string   `json:"failureReason"`
}

func (h *ExtendedStatusHandler) BusinessTransaction(c echo.Context) error {
	var req businessTransactionRequest
	if err := bindValid(c, h.Validate, &req); err != nil {
		return response.BadRequest(c, "invalid request", err.Error())
	}
	tx := status.BusinessTransaction{
		Success:         *req.Success,
		TransactionTime: *req.TransactionTime,
		Revenue:         req.Revenue,
		FailureReason:   req.FailureReason,
	}
	if err := h.Updater.RecordBusinessTransaction(c.Request().Context(), req.BusinessFunction, tx); err != nil {
		return writeError(c, "record business transaction failed", err)
	}
	return response.OK(c, nil, "business transaction recorded")
}

func (h *ExtendedStatusHandler) DatabaseHealth(c echo.Context) error {
	return response.OK(c, h.Aggregator.DatabaseHealth(c.Request().Context()), "")
}

func (h *ExtendedStatusHandler) ServicesHealth(c echo.Context) error {
	return response.OK(c, h.Aggregator.ServicesHealth(c.Request().Context()), "")
}

func (h *ExtendedStatusHandler) SecurityHealth(c echo.Context) error {
	return response.OK(c, h.Aggregator.SecurityRollup(c.Request().Context()), "")
}

// Performance averages per-record figures (GET /analytics/performance?hours=24).
func (h *ExtendedStatusHandler) Performance(c echo.Context) error {
	hours, err := queryInt(c, "hours", 24, 0)
	if err != nil {
		return response.BadRequest(c, "invalid hours", err.Error())
	}
	return response.OK(c, h.Aggregator.PerformanceRollup(c.Request().Context(), hours), "")
}
