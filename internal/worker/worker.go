// Package worker runs fire-and-forget jobs on a fixed pool of goroutines fed by
// a bounded queue.
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/metrics"
)

type Job interface {
	Do(ctx context.Context)
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context)

func (f JobFunc) Do(ctx context.Context) { f(ctx) }

// Pool never blocks producers: when the queue is full the job is dropped and
// counted.
type Pool struct {
	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(workers, queueSize int, m *metrics.Metrics, log zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:    make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		log:     log,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.do(job)
	}
}

func (p *Pool) do(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("worker job panicked")
		}
	}()
	job.Do(p.ctx)
}

// Submit enqueues job and reports whether it was accepted.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.metrics.Dropped()
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.metrics.Dropped()
		p.log.Warn().Int("queue_size", cap(p.jobs)).Msg("worker queue full, dropping job")
		return false
	}
}

// Stop refuses new jobs and waits until queued ones finish or ctx is done, in
// which case the jobs' context is cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
