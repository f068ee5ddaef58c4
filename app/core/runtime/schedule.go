package runtime

import (
	"context"
	"time"

	"tgcopilot/app/core/scheduler"
)

const (
	SummaryJobName        = "daily-summary"
	defaultSummaryTimeout = time.Minute
)

// SummaryRunner is one firing of the daily summary.
type SummaryRunner interface {
	Run(ctx context.Context) error
}

type SummaryOptions struct {
	Enabled    bool
	Cron       string
	Timeout    time.Duration
	RunOnStart bool
}

// RegisterSummaryJob schedules runner on the cron expression in options. A
// failed run is recorded on the job status and retried at the next firing.
func RegisterSummaryJob(jobScheduler *scheduler.Scheduler, runner SummaryRunner, options SummaryOptions) error {
	if jobScheduler == nil || runner == nil || !options.Enabled {
		return nil
	}
	schedule, err := scheduler.CronSchedule(options.Cron)
	if err != nil {
		return err
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultSummaryTimeout
	}
	return jobScheduler.Register(scheduler.JobSpec{
		Name:       SummaryJobName,
		Schedule:   schedule,
		Timeout:    timeout,
		RunOnStart: options.RunOnStart,
		Run:        runner.Run,
	})
}
