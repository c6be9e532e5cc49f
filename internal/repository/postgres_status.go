package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockdesk/apipulse/internal/model"
)

// StatusRepository stores status records as JSONB documents in status_records.
type StatusRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStatusRepository returns a StatusRepository using the given pool.
func NewStatusRepository(pool *pgxpool.Pool) *StatusRepository {
	return &StatusRepository{pool: pool, now: time.Now}
}

// Get returns one record, or nil if not found.
func (r *StatusRepository) Get(ctx context.Context, d model.Domain, key string) (model.Record, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT doc FROM status_records
		WHERE domain = $1 AND key = $2`, string(d), key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return model.DecodeRecord(d, raw)
}

// List returns all records of a domain ordered by key; api records come busiest first.
func (r *StatusRepository) List(ctx context.Context, d model.Domain) ([]model.Record, error) {
	order := "key"
	if d == model.DomainAPI {
		order = "(doc->>'totalRequests')::float8 DESC, key"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT doc FROM status_records
		WHERE domain = $1
		ORDER BY `+order, string(d))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := model.DecodeRecord(d, raw)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Mutate upserts the record in one statement. On conflict every increment and
// running mean is computed from the stored document, so concurrent writers
// serialize on the row lock without losing updates.
func (r *StatusRepository) Mutate(ctx context.Context, d model.Domain, key string, m model.Mutation) (model.Record, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if _, err := model.NewRecord(d); err != nil {
		return nil, err
	}

	query, args, err := upsertQuery(d, key, m, r.now().UTC())
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return nil, err
	}
	return model.DecodeRecord(d, raw)
}

func upsertQuery(d model.Domain, key string, m model.Mutation, now time.Time) (string, []any, error) {
	set := m.Set
	if set == nil {
		set = map[string]any{}
	}
	setDoc, err := json.Marshal(set)
	if err != nil {
		return "", nil, fmt.Errorf("encode set: %w", err)
	}
	insertDoc, err := json.Marshal(m.Apply(model.Defaults(d, key, now)))
	if err != nil {
		return "", nil, fmt.Errorf("encode insert doc: %w", err)
	}

	args := []any{string(d), key, setDoc, insertDoc}
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	old := func(field string) string {
		return fmt.Sprintf("COALESCE((status_records.doc->>%s::text)::float8, 0)", field)
	}

	expr := "status_records.doc || $3::jsonb"
	for _, f := range m.IncFields() {
		fp := param(f)
		expr = fmt.Sprintf("jsonb_set(%s, ARRAY[%s::text], to_jsonb(%s + %s::float8))",
			expr, fp, old(fp), param(m.Inc[f]))
	}
	for _, mu := range m.Mean {
		fp, wp, sp := param(mu.Field), param(mu.Weight), param(mu.Sample)
		expr = fmt.Sprintf(
			"jsonb_set(%s, ARRAY[%s::text], to_jsonb(CASE WHEN %s <= 0 THEN %s::float8 ELSE (%s * %s + %s::float8) / (%s + 1) END))",
			expr, fp, old(wp), sp, old(fp), old(wp), sp, old(wp))
	}

	var b strings.Builder
	b.WriteString(`
		INSERT INTO status_records (domain, key, doc, created_at, updated_at)
		VALUES ($1, $2, $4::jsonb, now(), now())
		ON CONFLICT (domain, key) DO UPDATE
		SET doc = `)
	b.WriteString(expr)
	b.WriteString(`, updated_at = now()
		RETURNING doc`)
	return b.String(), args, nil
}
