package middleware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/metrics"
	"github.com/stockdesk/apipulse/internal/model"
)

// CaptureConfig controls what the capture middleware copies into observations.
type CaptureConfig struct {
	CaptureBodies    bool
	CaptureResponses bool
	MaxBodyBytes     int
	SkipPaths        []string
	SlowThreshold    time.Duration
}

func (cfg CaptureConfig) skip(path string) bool {
	for _, p := range cfg.SkipPaths {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// Capture observes every handled request, including failed and panicking ones,
// and hands the observation to submit without waiting for it to be stored.
func Capture(cfg CaptureConfig, submit func(model.Observation) bool, m *metrics.Metrics, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if cfg.skip(req.URL.Path) {
				return next(c)
			}
			start := time.Now()

			var reqBody json.RawMessage
			if cfg.CaptureBodies && req.Body != nil && isJSON(req.Header.Get(echo.HeaderContentType)) {
				reqBody = peekBody(req, cfg.MaxBodyBytes)
			}
			var tee *teeWriter
			if cfg.CaptureResponses {
				tee = &teeWriter{ResponseWriter: c.Response().Writer, max: cfg.MaxBodyBytes}
				c.Response().Writer = tee
			}

			stack, err := run(next, c)
			if err != nil {
				noticeError(c.Request().Context(), err)
				c.Error(err)
			}

			elapsed := time.Since(start)
			code := c.Response().Status
			ms := float64(elapsed) / float64(time.Millisecond)
			m.ObserveRequest(req.Method, c.Path(), strconv.Itoa(code), elapsed.Seconds())
			logSlow(log, cfg.SlowThreshold, req, elapsed)

			o := model.Observation{
				RequestID:    c.Response().Header().Get(echo.HeaderXRequestID),
				Method:       req.Method,
				URL:          req.URL.RequestURI(),
				StatusCode:   code,
				ResponseTime: ms,
				IP:           c.RealIP(),
				UserAgent:    req.UserAgent(),
				RequestBody:  reqBody,
				QueryParams:  queryJSON(c),
				ErrorStack:   stack,
			}
			if err != nil {
				o.ErrorMessage = errorMessage(err)
			}
			if uid, ok := c.Get(ContextKeyUserID).(string); ok {
				o.UserID = uid
			}
			if tee != nil && !tee.truncated && json.Valid(tee.buf.Bytes()) {
				o.ResponseBody = json.RawMessage(tee.buf.Bytes())
			}
			submit(o)
			return nil
		}
	}
}

// noticeError reports a handler error on the request's New Relic transaction,
// if there is one.
var noticeError = func(ctx context.Context, err error) {
	newrelic.FromContext(ctx).NoticeError(err)
}

// run calls next and converts a panic into an error carrying its stack.
func run(next echo.HandlerFunc, c echo.Context) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(r)
			}
			err = fmt.Errorf("panic: %v", r)
			stack = string(debug.Stack())
		}
	}()
	return "", next(c)
}

func errorMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if s, ok := he.Message.(string); ok {
			return s
		}
	}
	return err.Error()
}

func logSlow(log zerolog.Logger, threshold time.Duration, req *http.Request, elapsed time.Duration) {
	if threshold <= 0 {
		return
	}
	switch {
	case elapsed >= threshold:
		log.Warn().Str("method", req.Method).Str("url", req.URL.Path).Dur("elapsed", elapsed).Msg("slow request")
	case elapsed >= threshold/2:
		log.Info().Str("method", req.Method).Str("url", req.URL.Path).Dur("elapsed", elapsed).Msg("medium response time")
	}
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), echo.MIMEApplicationJSON)
}

// peekBody copies up to max bytes of the request body and restores it for the
// handler. Bodies over max or not valid JSON are not captured.
func peekBody(req *http.Request, max int) json.RawMessage {
	if max <= 0 {
		return nil
	}
	head, err := io.ReadAll(io.LimitReader(req.Body, int64(max)+1))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
	if err != nil || len(head) == 0 || len(head) > max || !json.Valid(head) {
		return nil
	}
	return json.RawMessage(head)
}

func queryJSON(c echo.Context) json.RawMessage {
	q := c.QueryParams()
	if len(q) == 0 {
		return nil
	}
	flat := make(map[string]any, len(q))
	for k, v := range q {
		if len(v) == 1 {
			flat[k] = v[0]
		} else {
			flat[k] = v
		}
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return raw
}

// teeWriter copies up to max bytes of the response body.
type teeWriter struct {
	http.ResponseWriter
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(b) > room {
			w.buf.Write(b[:room])
			w.truncated = true
		} else {
			w.buf.Write(b)
		}
	} else if len(b) > 0 {
		w.truncated = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *teeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("response writer does not support hijacking")
}

func (w *teeWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
