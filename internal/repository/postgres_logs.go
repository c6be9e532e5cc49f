package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockdesk/apipulse/internal/model"
)

// LogRepository persists and reads API log entries.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository returns a LogRepository using the given pool.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

const logColumns = `id, request_id, method, url, status_code, response_time, ip, user_agent,
	request_body, query_params, response_body, error_message, error_stack, user_id, status, created_at`

// Insert writes one entry; the ID is generated when unset.
func (r *LogRepository) Insert(ctx context.Context, e *model.LogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID,
		e.RequestID,
		e.Method,
		e.URL,
		e.StatusCode,
		e.ResponseTime,
		e.IP,
		e.UserAgent,
		nullJSON(e.RequestBody),
		nullJSON(e.QueryParams),
		nullJSON(e.ResponseBody),
		e.ErrorMessage,
		e.ErrorStack,
		e.UserID,
		string(e.Status),
		e.Timestamp,
	)
	return err
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// List returns entries newest first. A limit of 0 means no limit.
func (r *LogRepository) List(ctx context.Context, limit, skip int) ([]model.LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+logColumns+`
		FROM api_logs
		ORDER BY created_at DESC
		LIMIT NULLIF($1::int, 0) OFFSET $2`, limit, skip)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

func (r *LogRepository) ListErrors(ctx context.Context, limit int) ([]model.LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+logColumns+`
		FROM api_logs
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2::int, 0)`, string(model.LogStatusError), limit)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// ListByURL matches url against pattern with the ~ operator. Patterns that
// PostgreSQL rejects but Go accepts, such as (?P<name>...) groups, are matched
// in Go so both stores return the same entries.
func (r *LogRepository) ListByURL(ctx context.Context, pattern string, limit int) ([]model.LogEntry, error) {
	re := urlPattern(pattern)
	logs, err := r.listByURL(ctx, re.String(), limit)
	if !isInvalidRegex(err) {
		return logs, err
	}
	all, err := r.listByURL(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	return filterURL(all, re, limit), nil
}

func (r *LogRepository) listByURL(ctx context.Context, re string, limit int) ([]model.LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+logColumns+`
		FROM api_logs
		WHERE url ~ $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2::int, 0)`, re, limit)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

func (r *LogRepository) Stats(ctx context.Context) (model.LogStats, error) {
	var total, errs, warns, ok int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE status = 'error'),
			count(*) FILTER (WHERE status = 'warning'),
			count(*) FILTER (WHERE status = 'success')
		FROM api_logs`).Scan(&total, &errs, &warns, &ok)
	if err != nil {
		return model.LogStats{}, err
	}
	return model.NewLogStats(total, errs, warns, ok), nil
}

func scanLogs(rows pgx.Rows) ([]model.LogEntry, error) {
	defer rows.Close()

	list := []model.LogEntry{}
	for rows.Next() {
		var (
			e                     model.LogEntry
			status                string
			reqBody, query, respB []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.RequestID,
			&e.Method,
			&e.URL,
			&e.StatusCode,
			&e.ResponseTime,
			&e.IP,
			&e.UserAgent,
			&reqBody,
			&query,
			&respB,
			&e.ErrorMessage,
			&e.ErrorStack,
			&e.UserID,
			&status,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Status = model.LogStatus(status)
		e.RequestBody, e.QueryParams, e.ResponseBody = reqBody, query, respB
		list = append(list, e)
	}
	return list, rows.Err()
}
