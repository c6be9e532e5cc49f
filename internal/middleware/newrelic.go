package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelic wraps each request in a New Relic web transaction named after its
// route and stores it in the request context. A nil app disables the middleware.
func NewRelic(app *newrelic.Application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if app == nil {
			return next
		}
		return func(c echo.Context) error {
			req := c.Request()
			name := req.Method + " " + c.Path()
			if c.Path() == "" {
				name = req.Method + " NotFound"
			}
			txn := app.StartTransaction(name)
			defer txn.End()

			txn.SetWebRequestHTTP(req)
			c.Response().Writer = txn.SetWebResponse(c.Response().Writer)
			c.SetRequest(req.WithContext(newrelic.NewContext(req.Context(), txn)))

			// handler errors are noticed by Capture, which renders them
			return next(c)
		}
	}
}
