package server

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
	"github.com/stockdesk/apipulse/internal/status"
	"github.com/stockdesk/apipulse/internal/worker"
)

// ErrQueueFull is returned when a report is dropped because the worker queue
// is full or stopped.
var ErrQueueFull = errors.New("worker queue full")

// Dispatcher hands observations and status events to the worker pool, which
// records them off the request path.
type Dispatcher struct {
	pool     *worker.Pool
	recorder *status.Recorder
	updater  *status.Updater
	timeout  time.Duration
	log      zerolog.Logger
}

func NewDispatcher(pool *worker.Pool, recorder *status.Recorder, updater *status.Updater, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = status.DefaultUpdateTimeout
	}
	return &Dispatcher{pool: pool, recorder: recorder, updater: updater, timeout: timeout, log: log}
}

// Submit queues o and reports whether it was accepted; a full queue drops it.
func (d *Dispatcher) Submit(o model.Observation) bool {
	return d.pool.Submit(worker.JobFunc(func(ctx context.Context) {
		// failures are logged and counted by the recorder
		_, _ = d.recorder.Record(ctx, o)
	}))
}

// report queues one status write bounded by the update timeout. The caller's
// context is not used: the write outlives the request that triggered it.
func (d *Dispatcher) report(op, key string, write func(ctx context.Context) error) error {
	ok := d.pool.Submit(worker.JobFunc(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := write(ctx); err != nil {
			d.log.Error().Err(err).Str("op", op).Str("key", key).Msg("status report failed")
		}
	}))
	if !ok {
		return ErrQueueFull
	}
	return nil
}

func (d *Dispatcher) RecordTokenRejected(_ context.Context, endpoint string, expired bool) error {
	return d.report("token_rejected", endpoint, func(ctx context.Context) error {
		return d.updater.RecordTokenRejected(ctx, endpoint, expired)
	})
}

func (d *Dispatcher) RecordSecurityEvent(_ context.Context, endpoint string, ev status.SecurityEvent, details map[string]any) error {
	return d.report("security_event", endpoint, func(ctx context.Context) error {
		return d.updater.RecordSecurityEvent(ctx, endpoint, ev, details)
	})
}

func (d *Dispatcher) RecordCacheOperation(_ context.Context, endpoint string, op status.CacheOperation) error {
	return d.report("cache_operation", endpoint, func(ctx context.Context) error {
		return d.updater.RecordCacheOperation(ctx, endpoint, op)
	})
}
