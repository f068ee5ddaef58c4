package runtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tgcopilot/app/core/interaction/gateway"
	"tgcopilot/app/core/orchestrator/task"
	"tgcopilot/app/core/scheduler"
)

type PendingLister interface {
	Pending(ctx context.Context) ([]task.Task, error)
}

// StatusCollector gathers counters from the running components. Any field may
// be nil.
type StatusCollector struct {
	Gateway   *gateway.Gateway
	Scheduler *scheduler.Scheduler
	Tasks     PendingLister
	Now       func() time.Time
}

type Snapshot struct {
	Timestamp    time.Time
	PendingTasks int
	Gateway      gateway.HealthStatus
	Scheduler    scheduler.Health
	Jobs         []scheduler.JobStatus
}

func (c *StatusCollector) Snapshot(ctx context.Context) (Snapshot, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	snap := Snapshot{Timestamp: now().UTC()}
	if c.Tasks != nil {
		pending, err := c.Tasks.Pending(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("status: count pending: %w", err)
		}
		snap.PendingTasks = len(pending)
	}
	if c.Gateway != nil {
		snap.Gateway = c.Gateway.HealthStatus()
	}
	if c.Scheduler != nil {
		snap.Scheduler = c.Scheduler.Health()
		snap.Jobs = c.Scheduler.Snapshot()
	}
	return snap, nil
}

// Fields flattens the snapshot for a single structured log line.
func (s Snapshot) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Int("pending_tasks", s.PendingTasks),
		zap.Uint64("messages_received", s.Gateway.ReceivedMessages),
		zap.Uint64("tasks_recorded", s.Gateway.RecordedTasks),
		zap.Uint64("inline_done", s.Gateway.InlineCompleted),
		zap.Uint64("messages_dropped", s.Gateway.DroppedMessages),
		zap.Uint64("commands_handled", s.Gateway.CommandsHandled),
		zap.Int("jobs_running", s.Scheduler.RunningJobs),
	}
	if s.Gateway.QueueEnabled {
		fields = append(fields,
			zap.Int("queue_depth", s.Gateway.Queue.Depth),
			zap.Int64("queue_in_flight", s.Gateway.Queue.InFlight),
			zap.Uint64("queue_failed", s.Gateway.Queue.Failed),
		)
	}
	for _, job := range s.Jobs {
		if job.LastError != "" {
			fields = append(fields, zap.String("job_error_"+job.Name, job.LastError))
		}
	}
	return fields
}
