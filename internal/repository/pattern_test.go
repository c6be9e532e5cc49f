package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stockdesk/apipulse/internal/model"
)

func TestURLPattern(t *testing.T) {
	tests := []struct {
		pattern string
		url     string
		match   bool
	}{
		{"^/stocks/[0-9]+$", "/stocks/42", true},
		{"^/stocks/[0-9]+$", "/stocks/abc", false},
		{"/orders/(7", "/orders/(7/items", true},
		{"/orders/(7", "/orders/7", false},
	}
	for _, tt := range tests {
		if got := urlPattern(tt.pattern).MatchString(tt.url); got != tt.match {
			t.Errorf("urlPattern(%q).Match(%q) = %v, want %v", tt.pattern, tt.url, got, tt.match)
		}
	}
}

func TestIsInvalidRegex(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgInvalidRegex, Message: "invalid regular expression: quantifier operand invalid"}
	if !isInvalidRegex(pgErr) || !isInvalidRegex(fmt.Errorf("query: %w", pgErr)) {
		t.Error("invalid_regular_expression not recognised")
	}
	if isInvalidRegex(&pgconn.PgError{Code: "42P01"}) || isInvalidRegex(errors.New("boom")) || isInvalidRegex(nil) {
		t.Error("unrelated error treated as invalid regex")
	}
}

func TestFilterURL(t *testing.T) {
	logs := []model.LogEntry{{URL: "/stocks/c"}, {URL: "/orders/1"}, {URL: "/stocks/c/x"}}
	got := filterURL(logs, urlPattern("/stocks/(?P<id>c)"), 0)
	if len(got) != 2 || got[1].URL != "/stocks/c/x" {
		t.Errorf("filterURL = %+v", got)
	}
	if got := filterURL(logs, urlPattern("/stocks/"), 1); len(got) != 1 || got[0].URL != "/stocks/c" {
		t.Errorf("filterURL limit = %+v", got)
	}
}
