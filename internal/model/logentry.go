package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// LogStatus classifies a logged call by its HTTP status code.
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusWarning LogStatus = "warning"
	LogStatusError   LogStatus = "error"
)

// ClassifyStatus maps a status code to success (<300), warning (3xx) or error (>=400).
func ClassifyStatus(statusCode int) LogStatus {
	switch {
	case statusCode >= 400:
		return LogStatusError
	case statusCode >= 300:
		return LogStatusWarning
	default:
		return LogStatusSuccess
	}
}

// Observation is what the ingestion layer reports for one completed or failed HTTP call.
type Observation struct {
	RequestID    string          `json:"requestId"`
	Method       string          `json:"method" validate:"required"`
	URL          string          `json:"url" validate:"required"`
	StatusCode   int             `json:"statusCode" validate:"gte=100,lte=599"`
	ResponseTime float64         `json:"responseTime" validate:"gte=0"` // milliseconds
	IP           string          `json:"ip,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	RequestBody  json.RawMessage `json:"requestBody,omitempty"`
	QueryParams  json.RawMessage `json:"queryParams,omitempty"`
	ResponseBody json.RawMessage `json:"responseBody,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ErrorStack   string          `json:"errorStack,omitempty"`
	UserID       string          `json:"userId,omitempty"`
}

// Failed reports whether the observation counts as a failed request for status records.
func (o Observation) Failed() bool { return o.StatusCode >= 400 }

// LogEntry is the persisted, immutable record of one HTTP call.
type LogEntry struct {
	ID           uuid.UUID       `json:"id"`
	RequestID    string          `json:"requestId"`
	Method       string          `json:"method"`
	URL          string          `json:"url"`
	StatusCode   int             `json:"statusCode"`
	ResponseTime float64         `json:"responseTime"`
	IP           string          `json:"ip,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	RequestBody  json.RawMessage `json:"requestBody,omitempty"`
	QueryParams  json.RawMessage `json:"queryParams,omitempty"`
	ResponseBody json.RawMessage `json:"responseBody,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ErrorStack   string          `json:"errorStack,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	Status       LogStatus       `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewLogEntry builds the entry for an observation, stamped at now.
func NewLogEntry(o Observation, now time.Time) *LogEntry {
	return &LogEntry{
		ID:           uuid.New(),
		RequestID:    o.RequestID,
		Method:       o.Method,
		URL:          o.URL,
		StatusCode:   o.StatusCode,
		ResponseTime: o.ResponseTime,
		IP:           o.IP,
		UserAgent:    o.UserAgent,
		RequestBody:  o.RequestBody,
		QueryParams:  o.QueryParams,
		ResponseBody: o.ResponseBody,
		ErrorMessage: o.ErrorMessage,
		ErrorStack:   o.ErrorStack,
		UserID:       o.UserID,
		Status:       ClassifyStatus(o.StatusCode),
		Timestamp:    now,
	}
}

// LogStats counts logged calls by classification.
type LogStats struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	Warnings  int64   `json:"warnings"`
	Success   int64   `json:"success"`
	ErrorRate float64 `json:"errorRate"` // percent, two decimals
}

// NewLogStats derives the error rate from the classification counts.
func NewLogStats(total, errors, warnings, success int64) LogStats {
	s := LogStats{Total: total, Errors: errors, Warnings: warnings, Success: success}
	if total > 0 {
		s.ErrorRate = math.Round(float64(errors)/float64(total)*100*100) / 100
	}
	return s
}
