// Package queue runs inbound work on a fixed pool of workers behind a
// bounded buffer.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueStarted    = errors.New("queue: already started")
	ErrQueueStopped    = errors.New("queue: stopped")
	ErrEnqueueCanceled = errors.New("queue: enqueue canceled")
)

// Job is run at most once. Timeout bounds a single run when positive.
type Job struct {
	ID      string
	Timeout time.Duration
	Run     func(context.Context) error
}

type Queue struct {
	mu        sync.Mutex
	jobs      chan Job
	started   bool
	stopping  bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	nextID    atomic.Uint64
	inFlight  atomic.Int64
	enqueued  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	logger    *zap.Logger
}

type Stats struct {
	Started   bool   `json:"started"`
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	InFlight  int64  `json:"in_flight"`
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

func New(buffer int, logger *zap.Logger) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{jobs: make(chan Job, buffer), logger: logger}
}

// Enqueue blocks while the buffer is full until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	job, err := q.prepare(job)
	if err != nil {
		return "", err
	}
	select {
	case q.jobs <- job:
		q.enqueued.Add(1)
		return job.ID, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrEnqueueCanceled, ctx.Err())
	}
}

func (q *Queue) prepare(job Job) (Job, error) {
	if job.Run == nil {
		return job, errors.New("queue: job run callback is required")
	}
	if job.Timeout < 0 {
		return job, errors.New("queue: job timeout cannot be negative")
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("q-%d", q.nextID.Add(1))
	}
	q.mu.Lock()
	stopping := q.stopping
	q.mu.Unlock()
	if stopping {
		return job, ErrQueueStopped
	}
	return job, nil
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	return Stats{
		Started:   started,
		Depth:     len(q.jobs),
		Capacity:  cap(q.jobs),
		InFlight:  q.inFlight.Load(),
		Enqueued:  q.enqueued.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

func (q *Queue) Start(parent context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrQueueStarted
	}
	// Workers outlive parent cancellation so Stop can drain in-flight writes.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	q.cancel = cancel
	q.started = true
	q.stopping = false
	q.mu.Unlock()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return nil
}

// Stop refuses new jobs until the next Start, waits up to timeout for the buffer and in-flight
// jobs to drain, then cancels the workers. A non-positive timeout waits
// indefinitely.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	cancel := q.cancel
	q.cancel = nil
	q.started = false
	q.stopping = true
	q.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	timedOut := false
drain:
	for len(q.jobs) > 0 || q.inFlight.Load() > 0 {
		select {
		case <-deadline:
			timedOut = true
			break drain
		case <-ticker.C:
		}
	}
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()
	if !timedOut {
		select {
		case <-done:
		case <-deadline:
			timedOut = true
		}
	} else {
		<-done
	}

	if timedOut {
		q.logger.Warn("queue stop timed out", zap.Duration("timeout", timeout), zap.Int("remaining", len(q.jobs)))
		return fmt.Errorf("queue: stop timeout after %s", timeout)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.inFlight.Add(1)
			q.runOnce(ctx, job)
			q.inFlight.Add(-1)
		}
	}
}

func (q *Queue) runOnce(parent context.Context, job Job) {
	runCtx := parent
	cancel := func() {}
	if job.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(parent, job.Timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.logger.Error("job panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
		}
	}()

	if err := job.Run(runCtx); err != nil {
		q.failed.Add(1)
		q.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	q.completed.Add(1)
}
