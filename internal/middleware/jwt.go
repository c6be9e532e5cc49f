package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/metrics"
	"github.com/stockdesk/apipulse/internal/response"
	"github.com/stockdesk/apipulse/internal/status"
)

// SecurityReporter receives the events raised by the guards. It is called on
// the request path, so implementations should queue the write rather than wait
// for the status store.
type SecurityReporter interface {
	RecordTokenRejected(ctx context.Context, endpoint string, expired bool) error
	RecordSecurityEvent(ctx context.Context, endpoint string, ev status.SecurityEvent, details map[string]any) error
}

// AuthKeyJWT is the auth status record that counts rejected bearer tokens.
const AuthKeyJWT = "jwt"

// JWTGuard requires an HS256 bearer token signed with secret. Rejections are
// counted on the "jwt" auth record and as blocked events on the route's
// security record.
func JWTGuard(secret string, reporter SecurityReporter, m *metrics.Metrics, log zerolog.Logger) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			endpoint := status.EndpointKey(req.Method, req.URL.Path)

			subject, err := parseBearer(req.Header.Get(echo.HeaderAuthorization), key)
			if err != nil {
				expired := errors.Is(err, jwt.ErrTokenExpired)
				ctx := req.Context()
				if rerr := reporter.RecordTokenRejected(ctx, AuthKeyJWT, expired); rerr != nil {
					log.Error().Err(rerr).Str("endpoint", endpoint).Msg("record token rejection failed")
				}
				details := map[string]any{"reason": err.Error(), "ip": c.RealIP()}
				if rerr := reporter.RecordSecurityEvent(ctx, endpoint, status.SecurityBlocked, details); rerr != nil {
					log.Error().Err(rerr).Str("endpoint", endpoint).Msg("record security event failed")
				}
				m.SecurityEvent(string(status.SecurityBlocked))
				log.Warn().Err(err).Str("endpoint", endpoint).Str("ip", c.RealIP()).Msg("bearer token rejected")
				return response.Unauthorized(c, "unauthorized", err.Error())
			}
			if subject != "" {
				c.Set(ContextKeyUserID, subject)
			}
			return next(c)
		}
	}
}

var errMissingToken = errors.New("missing bearer token")

func parseBearer(header string, key []byte) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	return subjectOf(claims), nil
}

// subjectOf prefers "sub" and falls back to "user_id", which may be numeric.
func subjectOf(claims jwt.MapClaims) string {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	switch v := claims["user_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
