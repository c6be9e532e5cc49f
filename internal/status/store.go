// Package status records API calls and keeps running per-endpoint and
// per-subsystem statistics on top of a pluggable record store.
package status

import (
	"context"
	"errors"

	"github.com/stockdesk/apipulse/internal/model"
)

// ErrValidation marks caller mistakes (unknown event types, bad patches).
var ErrValidation = errors.New("validation failed")

// RecordStore persists status records keyed by (domain, key).
//
// Mutate must upsert and apply the whole mutation atomically for the key: a
// missing record starts from model.Defaults and concurrent mutations of the
// same key must never lose increments.
type RecordStore interface {
	Get(ctx context.Context, d model.Domain, key string) (model.Record, error) // nil, nil when absent
	List(ctx context.Context, d model.Domain) ([]model.Record, error)
	Mutate(ctx context.Context, d model.Domain, key string, m model.Mutation) (model.Record, error)
}

// LogStore is the append-only request log.
type LogStore interface {
	Insert(ctx context.Context, entry *model.LogEntry) error
	List(ctx context.Context, limit, skip int) ([]model.LogEntry, error)
	ListErrors(ctx context.Context, limit int) ([]model.LogEntry, error)
	// ListByURL returns entries whose URL matches pattern as a regular expression.
	ListByURL(ctx context.Context, pattern string, limit int) ([]model.LogEntry, error)
	Stats(ctx context.Context) (model.LogStats, error)
}

// ListAs lists a domain and narrows every record to its concrete type.
func ListAs[T model.Record](ctx context.Context, store RecordStore, d model.Domain) ([]T, error) {
	records, err := store.List(ctx, d)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		if typed, ok := r.(T); ok {
			out = append(out, typed)
		}
	}
	return out, nil
}
