package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestJobsRunOnWorkers(t *testing.T) {
	q := New(16, nil)
	if err := q.Start(context.Background(), 2); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var runs atomic.Int32
	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue(context.Background(), Job{Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	if err := q.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := runs.Load(); got != 5 {
		t.Fatalf("expected 5 runs, got %d", got)
	}
	stats := q.Stats()
	if stats.Completed != 5 || stats.Enqueued != 5 || stats.Started {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestFailedJobIsNotRetried(t *testing.T) {
	q := New(4, nil)
	if err := q.Start(context.Background(), 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var attempts atomic.Int32
	if _, err := q.Enqueue(context.Background(), Job{Run: func(context.Context) error {
		attempts.Add(1)
		return errors.New("classifier down")
	}}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := q.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
	if q.Stats().Failed != 1 {
		t.Fatalf("expected failed=1, got %+v", q.Stats())
	}
}

func TestPanickingJobDoesNotKillWorker(t *testing.T) {
	q := New(4, nil)
	if err := q.Start(context.Background(), 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	done := make(chan struct{}, 1)
	_, _ = q.Enqueue(context.Background(), Job{Run: func(context.Context) error { panic("boom") }})
	_, _ = q.Enqueue(context.Background(), Job{Run: func(context.Context) error {
		done <- struct{}{}
		return nil
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected worker to survive panic")
	}
	if err := q.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestJobTimeoutCancelsRun(t *testing.T) {
	q := New(16, nil)
	if err := q.Start(context.Background(), 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer q.Stop(200 * time.Millisecond)

	finished := make(chan error, 1)
	_, err := q.Enqueue(context.Background(), Job{
		Timeout: 20 * time.Millisecond,
		Run: func(runCtx context.Context) error {
			<-runCtx.Done()
			finished <- runCtx.Err()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case err := <-finished:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected timeout cancellation")
	}
}

func TestStopDrainsAfterParentCancel(t *testing.T) {
	q := New(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	release := make(chan struct{})
	var sawCancel atomic.Bool
	_, _ = q.Enqueue(context.Background(), Job{Run: func(runCtx context.Context) error {
		<-release
		sawCancel.Store(runCtx.Err() != nil)
		return nil
	}})

	cancel()
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := q.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sawCancel.Load() {
		t.Fatal("in-flight job should keep a live context while draining")
	}
	if q.Stats().Completed != 1 {
		t.Fatalf("expected drained job to complete: %+v", q.Stats())
	}
}

func TestEnqueueAfterStopIsRejectedWhileStopping(t *testing.T) {
	q := New(4, nil)
	if err := q.Start(context.Background(), 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := q.Start(context.Background(), 1); !errors.Is(err, ErrQueueStarted) {
		t.Fatalf("expected ErrQueueStarted, got %v", err)
	}

	release := make(chan struct{})
	_, _ = q.Enqueue(context.Background(), Job{Run: func(context.Context) error {
		<-release
		return nil
	}})

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(time.Second) }()

	deadline := time.Now().Add(time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := q.Enqueue(ctx, Job{Run: func(context.Context) error { return nil }})
		cancel()
		if errors.Is(err, ErrQueueStopped) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected ErrQueueStopped while stopping, got %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	if err := <-stopped; err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestEnqueueReturnsWhenQueueIsFull(t *testing.T) {
	q := New(1, nil)

	if _, err := q.Enqueue(context.Background(), Job{Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Enqueue(ctx, Job{Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrEnqueueCanceled) {
		t.Fatalf("expected ErrEnqueueCanceled, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEnqueueAfterStopIsRejected(t *testing.T) {
	q := New(4, nil)
	if err := q.Start(context.Background(), 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := q.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	ran := make(chan struct{}, 1)
	_, err := q.Enqueue(context.Background(), Job{Run: func(context.Context) error {
		ran <- struct{}{}
		return nil
	}})
	if !errors.Is(err, ErrQueueStopped) {
		t.Fatalf("expected ErrQueueStopped, got %v", err)
	}
	if depth := q.Stats().Depth; depth != 0 {
		t.Fatalf("expected empty buffer, got depth %d", depth)
	}

	if err := q.Start(context.Background(), 1); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer q.Stop(time.Second)
	if _, err := q.Enqueue(context.Background(), Job{Run: func(context.Context) error {
		ran <- struct{}{}
		return nil
	}}); err != nil {
		t.Fatalf("enqueue after restart failed: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected job to run after restart")
	}
}
