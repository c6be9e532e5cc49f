package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/metrics"
	"github.com/stockdesk/apipulse/internal/response"
	"github.com/stockdesk/apipulse/internal/status"
)

// RateLimit allows requestsPerMinute per client IP. Requests over the limit get
// a 429 and are reported as rate_limit security events.
func RateLimit(requestsPerMinute int, reporter SecurityReporter, m *metrics.Metrics, log zerolog.Logger) echo.MiddlewareFunc {
	limiter := httprate.Limit(requestsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			endpoint := status.EndpointKey(r.Method, r.URL.Path)
			ip, _ := httprate.KeyByIP(r)
			details := map[string]any{"ip": ip, "limit": requestsPerMinute}
			if err := reporter.RecordSecurityEvent(r.Context(), endpoint, status.SecurityRateLimit, details); err != nil {
				log.Error().Err(err).Str("endpoint", endpoint).Msg("record rate limit event failed")
			}
			m.SecurityEvent(string(status.SecurityRateLimit))
			log.Warn().Str("endpoint", endpoint).Str("ip", ip).Msg("rate limit exceeded")

			w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(response.APIError{
				Message: "too many requests",
				Error:   "rate limit exceeded",
				Path:    r.URL.Path,
				Status:  http.StatusTooManyRequests,
			})
		}),
	)
	return echo.WrapMiddleware(limiter)
}
