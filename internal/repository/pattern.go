package repository

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stockdesk/apipulse/internal/model"
)

// invalid_regular_expression
const pgInvalidRegex = "2201B"

// urlPattern compiles a caller-supplied URL filter. A pattern that is not a
// valid regular expression matches literally.
func urlPattern(pattern string) *regexp.Regexp {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	return re
}

// isInvalidRegex reports whether PostgreSQL rejected a pattern that Go's
// regexp accepted, e.g. the (?P<name>...) group syntax.
func isInvalidRegex(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidRegex
}

// filterURL keeps the entries whose url matches re, at most limit of them
// when limit is positive.
func filterURL(logs []model.LogEntry, re *regexp.Regexp, limit int) []model.LogEntry {
	out := []model.LogEntry{}
	for _, e := range logs {
		if limit > 0 && len(out) == limit {
			break
		}
		if re.MatchString(e.URL) {
			out = append(out, e)
		}
	}
	return out
}
