package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgcopilot/app/core/interaction/gateway"
	"tgcopilot/app/core/orchestrator/db"
	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/core/scheduler"
)

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (r *countingRunner) Run(context.Context) error {
	r.runs.Add(1)
	return r.err
}

func jobStatus(t *testing.T, s *scheduler.Scheduler, name string) scheduler.JobStatus {
	t.Helper()
	for _, st := range s.Snapshot() {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("job %s not registered", name)
	return scheduler.JobStatus{}
}

func TestRegisterSummaryJobRunsOnStart(t *testing.T) {
	s := scheduler.New(nil)
	runner := &countingRunner{err: errors.New("bot unreachable")}
	require.NoError(t, RegisterSummaryJob(s, runner, SummaryOptions{
		Enabled:    true,
		Cron:       "0 9 * * *",
		RunOnStart: true,
	}))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return jobStatus(t, s, SummaryJobName).Runs == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(time.Second))

	st := jobStatus(t, s, SummaryJobName)
	assert.Equal(t, "bot unreachable", st.LastError)
	assert.Equal(t, int32(1), runner.runs.Load())
}

func TestRegisterSummaryJobSkipsWhenDisabled(t *testing.T) {
	s := scheduler.New(nil)
	require.NoError(t, RegisterSummaryJob(s, &countingRunner{}, SummaryOptions{Cron: "0 9 * * *"}))
	assert.Empty(t, s.Snapshot())
}

func TestRegisterSummaryJobRejectsBadCron(t *testing.T) {
	s := scheduler.New(nil)
	err := RegisterSummaryJob(s, &countingRunner{}, SummaryOptions{Enabled: true, Cron: "61 * * * *"})
	assert.Error(t, err)
}

func TestRegisterMaintenanceJobs(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Optimize(context.Background()))

	tasks := task.NewStore(store)
	_, err = tasks.Add(context.Background(), task.Task{
		Source:     task.SourceTelegram,
		ChatID:     1,
		MessageID:  1,
		Sender:     "Alice",
		Content:    "review the draft",
		DetectedAt: time.Now(),
		Status:     task.StatusNew,
	})
	require.NoError(t, err)

	s := scheduler.New(nil)
	status := &StatusCollector{
		Gateway:   gateway.New(nil, nil, nil, nil, nil, gateway.Options{}, nil),
		Scheduler: s,
		Tasks:     tasks,
	}
	require.NoError(t, RegisterMaintenanceJobs(s, store, status, time.Hour, nil))

	names := []string{}
	for _, st := range s.Snapshot() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{StatusJobName, StoreOptimizeJobName}, names)

	snap, err := status.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PendingTasks)
	assert.Equal(t, 2, snap.Scheduler.RegisteredJobs)
	assert.NotEmpty(t, snap.Fields())
}
