package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JournalCompactionJob periodically purges closed runs older than the
// retention period.
type JournalCompactionJob struct {
	engine    Engine
	schedule  string
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewJournalCompactionJob creates a job that purges runs closed longer than
// retention ago.
func NewJournalCompactionJob(engine Engine, schedule string, retention time.Duration, logger *slog.Logger) *JournalCompactionJob {
	return &JournalCompactionJob{
		engine:    engine,
		schedule:  schedule,
		retention: retention,
		cron:      newCron(),
		logger:    logger.With("component", "journal_compaction_job"),
	}
}

// Start schedules the job.
func (j *JournalCompactionJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Run(context.Background()) }); err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("Journal compaction job started", "schedule", j.schedule, "retention", j.retention)
	return nil
}

// Run performs one compaction pass.
func (j *JournalCompactionJob) Run(ctx context.Context) {
	purged, err := j.engine.Compact(ctx, j.retention)
	if err != nil {
		j.logger.ErrorContext(ctx, "Journal compaction failed", "error", err)
		return
	}
	if purged > 0 {
		j.logger.InfoContext(ctx, "Purged closed runs", "count", purged)
	}
}

// Stop stops the job and waits for a running pass to finish.
func (j *JournalCompactionJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Journal compaction job stopped")
}
