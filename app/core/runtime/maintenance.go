package runtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tgcopilot/app/core/scheduler"
)

const (
	StoreOptimizeJobName = "store-optimize"
	StatusJobName        = "runtime-status"
)

// Optimizer is the store hook run by the maintenance job.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// RegisterMaintenanceJobs keeps the SQLite planner statistics fresh and logs a
// status snapshot periodically. Tasks are never pruned.
func RegisterMaintenanceJobs(jobScheduler *scheduler.Scheduler, store Optimizer, status *StatusCollector, statusEvery time.Duration, logger *zap.Logger) error {
	if jobScheduler == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if store != nil {
		err := jobScheduler.Register(scheduler.JobSpec{
			Name:     StoreOptimizeJobName,
			Interval: 6 * time.Hour,
			Timeout:  20 * time.Second,
			Run:      store.Optimize,
		})
		if err != nil {
			return err
		}
	}
	if status == nil || statusEvery <= 0 {
		return nil
	}
	return jobScheduler.Register(scheduler.JobSpec{
		Name:     StatusJobName,
		Interval: statusEvery,
		Timeout:  10 * time.Second,
		Run: func(ctx context.Context) error {
			snap, err := status.Snapshot(ctx)
			if err != nil {
				return err
			}
			logger.Info("runtime status", snap.Fields()...)
			return nil
		},
	})
}
