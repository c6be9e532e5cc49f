// Package middleware holds the echo middleware of the HTTP server.
package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const (
	// ContextKeyRequestID holds the request id in the echo context.
	ContextKeyRequestID = "request_id"
	// ContextKeyUserID holds the authenticated subject, when there is one.
	ContextKeyUserID = "user_id"
)

// RequestID reuses an incoming X-Request-ID or generates a UUID, echoes it on
// the response and stores it in the echo context.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			c.Set(ContextKeyRequestID, id)
		},
	})
}

// RequestLogger attaches a request-scoped logger to the request context;
// handlers retrieve it with zerolog.Ctx.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, _ := c.Get(ContextKeyRequestID).(string)
			l := log.With().
				Str("request_id", id).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Logger()
			req := c.Request()
			c.SetRequest(req.WithContext(l.WithContext(req.Context())))
			return next(c)
		}
	}
}
