package jobs

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// RunRecoveryJob periodically asks the engine to re-host open runs that
// have no live instance in this process.
type RunRecoveryJob struct {
	engine   Engine
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewRunRecoveryJob creates a job that runs a recovery pass on schedule.
func NewRunRecoveryJob(engine Engine, schedule string, logger *slog.Logger) *RunRecoveryJob {
	return &RunRecoveryJob{
		engine:   engine,
		schedule: schedule,
		cron:     newCron(),
		logger:   logger.With("component", "run_recovery_job"),
	}
}

// Start schedules the job.
func (j *RunRecoveryJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Run(context.Background()) }); err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("Run recovery job started", "schedule", j.schedule)
	return nil
}

// Run performs one recovery pass.
func (j *RunRecoveryJob) Run(ctx context.Context) {
	recovered, err := j.engine.Recover(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Run recovery failed", "error", err, "recovered", recovered)
		return
	}
	if recovered > 0 {
		j.logger.InfoContext(ctx, "Recovered open runs", "count", recovered)
	}
}

// Stop stops the job and waits for a running pass to finish.
func (j *RunRecoveryJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Run recovery job stopped")
}
