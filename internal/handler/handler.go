package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/stockdesk/apipulse/internal/response"
	"github.com/stockdesk/apipulse/internal/status"
)

const maxListLimit = 1000

// SnapshotCache stores short-lived copies of expensive read views.
type SnapshotCache interface {
	Get(ctx context.Context, name string, dst any) (bool, error)
	Set(ctx context.Context, name string, v any) error
}

// CacheReporter records cache lookups on a cache status record. Server wiring
// passes an implementation that writes in the background.
type CacheReporter interface {
	RecordCacheOperation(ctx context.Context, endpoint string, op status.CacheOperation) error
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(c echo.Context, name string, def, max int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}

// bindValid binds the JSON body into dst and validates its struct tags.
func bindValid(c echo.Context, v *validator.Validate, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return v.Struct(dst)
}

// writeError maps status package errors onto HTTP responses.
func writeError(c echo.Context, message string, err error) error {
	switch {
	case errors.Is(err, status.ErrValidation):
		return response.BadRequest(c, message, err.Error())
	case errors.Is(err, status.ErrNotFound):
		return response.NotFound(c, message, err.Error())
	default:
		return response.InternalError(c, message, err.Error())
	}
}
