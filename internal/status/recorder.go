package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/metrics"
	"github.com/stockdesk/apipulse/internal/model"
)

// DefaultUpdateTimeout bounds one endpoint status update.
const DefaultUpdateTimeout = 5 * time.Second

// Recorder persists API log entries and, after each successful write, updates
// the endpoint's status record in the background.
type Recorder struct {
	logs     LogStore
	updater  *Updater
	metrics  *metrics.Metrics
	log      zerolog.Logger
	timeout  time.Duration
	now      func() time.Time
	inflight sync.WaitGroup
}

// RecorderConfig carries the optional collaborators of a Recorder.
type RecorderConfig struct {
	UpdateTimeout time.Duration
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

func NewRecorder(logs LogStore, updater *Updater, cfg RecorderConfig) *Recorder {
	timeout := cfg.UpdateTimeout
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	return &Recorder{
		logs:    logs,
		updater: updater,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Record stores the observation as a log entry. A failed write is logged and
// returned but never retried. The status update runs detached and is abandoned
// once it exceeds the update timeout.
func (r *Recorder) Record(ctx context.Context, o model.Observation) (*model.LogEntry, error) {
	entry := model.NewLogEntry(o, r.now().UTC())
	if err := r.logs.Insert(ctx, entry); err != nil {
		r.metrics.LogWriteFailed()
		r.log.Error().Err(err).
			Str("request_id", o.RequestID).
			Str("method", o.Method).
			Str("url", o.URL).
			Msg("failed to save api log")
		return nil, fmt.Errorf("save api log: %w", err)
	}
	r.metrics.LogRecorded(string(entry.Status))

	r.inflight.Add(1)
	go r.updateStatus(o)
	return entry, nil
}

func (r *Recorder) updateStatus(o model.Observation) {
	defer r.inflight.Done()

	// cancelled on abandonment; a late completion only repeats an idempotent upsert
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.updater.RecordRequest(ctx, o) }()

	select {
	case err := <-done:
		switch {
		case err == nil:
			r.metrics.StatusUpdate("ok")
		case ctx.Err() != nil:
			r.abandoned(o)
		default:
			r.metrics.StatusUpdate("failed")
			r.log.Error().Err(err).Str("request_id", o.RequestID).Msg("failed to update api status")
		}
	case <-ctx.Done():
		r.abandoned(o)
	}
}

func (r *Recorder) abandoned(o model.Observation) {
	r.metrics.StatusUpdate("abandoned")
	r.log.Error().
		Str("request_id", o.RequestID).
		Str("endpoint", EndpointKey(o.Method, o.URL)).
		Dur("timeout", r.timeout).
		Msg("api status update abandoned")
}

// Drain waits for in-flight status updates or until ctx is done.
func (r *Recorder) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
