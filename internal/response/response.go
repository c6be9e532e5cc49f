package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the standard success response shape.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError is the standard error response shape.
type APIError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

// Pagination echoes the window a list response was cut from.
type Pagination struct {
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
	Count int `json:"count"`
}

func pathFromContext(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

func send(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, APIResponse{
		Data:    data,
		Status:  status,
		Message: message,
		Path:    pathFromContext(c),
	})
}

// OK sends a 200 response with data.
func OK(c echo.Context, data any, message string) error {
	return send(c, http.StatusOK, data, message)
}

// Created sends a 201 response with data.
func Created(c echo.Context, data any, message string) error {
	return send(c, http.StatusCreated, data, message)
}

// Accepted sends a 202 for work that is queued rather than done.
func Accepted(c echo.Context, data any, message string) error {
	return send(c, http.StatusAccepted, data, message)
}

// Error sends a JSON error response using APIError.
func Error(c echo.Context, status int, message, errDetail string) error {
	return c.JSON(status, APIError{
		Message: message,
		Error:   errDetail,
		Path:    pathFromContext(c),
		Status:  status,
	})
}

func BadRequest(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusBadRequest, message, errDetail)
}

func Unauthorized(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusUnauthorized, message, errDetail)
}

func NotFound(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusNotFound, message, errDetail)
}

func TooManyRequests(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusTooManyRequests, message, errDetail)
}

// InternalError sends 500 with message and error detail.
func InternalError(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusInternalServerError, message, errDetail)
}

// HTTPErrorHandler renders errors returned by handlers and middleware
// (routing misses, binding failures, panics) in the APIError shape.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	message := http.StatusText(status)
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = Error(c, status, message, err.Error())
}
