package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Engine is the part of the workflow engine the jobs drive.
type Engine interface {
	Recover(ctx context.Context) (int, error)
	Compact(ctx context.Context, retention time.Duration) (int64, error)
}

// Schedules holds the cron expressions of the jobs.
type Schedules struct {
	Recovery   string
	Compaction string
}

// JobManager coordinates all scheduled jobs in the application.
// Provides a unified interface to start and stop all background jobs.
type JobManager struct {
	runRecoveryJob       *RunRecoveryJob
	journalCompactionJob *JournalCompactionJob
}

// NewJobManager creates the recovery and compaction jobs. Nothing is
// scheduled until StartAll.
func NewJobManager(engine Engine, schedules Schedules, retention time.Duration, logger *slog.Logger) (*JobManager, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("journal retention must be positive, got %s", retention)
	}

	return &JobManager{
		runRecoveryJob:       NewRunRecoveryJob(engine, schedules.Recovery, logger),
		journalCompactionJob: NewJournalCompactionJob(engine, schedules.Compaction, retention, logger),
	}, nil
}

// RecoverNow runs one recovery pass right away. A failed pass is logged and
// left to the scheduled job, so a journal outage does not stop the caller.
func (jm *JobManager) RecoverNow(ctx context.Context) {
	jm.runRecoveryJob.Run(ctx)
}

// StartAll starts all scheduled jobs.
// Returns an error if any job fails to start.
func (jm *JobManager) StartAll() error {
	if err := jm.runRecoveryJob.Start(); err != nil {
		return fmt.Errorf("failed to start run recovery job: %w", err)
	}

	if err := jm.journalCompactionJob.Start(); err != nil {
		// Stop already started jobs if this one fails
		jm.runRecoveryJob.Stop()
		return fmt.Errorf("failed to start journal compaction job: %w", err)
	}

	return nil
}

// StopAll stops all scheduled jobs and waits for running ticks to finish.
func (jm *JobManager) StopAll() {
	jm.journalCompactionJob.Stop()
	jm.runRecoveryJob.Stop()
}

func newCron() *cron.Cron {
	return cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}
