// Package jobs provides scheduled background tasks for the freight service.
//
// This package implements cron-based jobs using github.com/robfig/cron/v3
// to keep the workflow engine healthy between requests.
//
// # Available Jobs
//
// 1. RunRecoveryJob - re-hosts journaled open runs that have no live instance,
// e.g. after a coordinator goroutine stopped on a journal error
// 2. JournalCompactionJob - purges closed runs and their events once they are
// older than the retention period
//
// # Usage
//
//	jobManager, err := jobs.NewJobManager(engine, jobs.Schedules{
//		Recovery:   "0 * * * * *",
//		Compaction: "0 0 * * * *",
//	}, 7*24*time.Hour, logger)
//	if err != nil {
//		return err
//	}
//
//	if err := jobManager.StartAll(); err != nil {
//		return err
//	}
//	defer jobManager.StopAll()
//
// # Scheduling
//
// Schedules use the six-field cron format with a leading seconds field. A
// tick is skipped while the previous run of the same job is still going.
package jobs
