package journalrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight/internal/adapters/out/postgres/pgerrors"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"

	"gorm.io/gorm"
)

const openRunIndex = "workflow_runs_open_workflow_id"

var _ workflow.Journal = (*GormJournal)(nil)

// Migrate creates the journal tables and the index that keeps a single open
// run per workflow id.
func Migrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&RunDTO{}, &EventDTO{}); err != nil {
		return err
	}

	return db.Exec(fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON workflow_runs (workflow_id) WHERE status = '%s'",
		openRunIndex, workflow.RunOpen,
	)).Error
}

// GormJournal implements workflow.Journal on PostgreSQL.
type GormJournal struct {
	db *gorm.DB
}

// NewGormJournal creates a journal on db. Migrate must have run.
func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

// StartRun inserts run. The partial unique index turns a second open run
// for the workflow into ErrAlreadyRunning.
func (j *GormJournal) StartRun(ctx context.Context, run workflow.Run) error {
	return insertRun(j.db.WithContext(ctx), run)
}

// Append records event on an open run.
func (j *GormJournal) Append(ctx context.Context, event workflow.Event) error {
	db := j.db.WithContext(ctx)

	run, err := findRun(db, event.RunID)
	if err != nil {
		return err
	}
	if run.Status != string(workflow.RunOpen) {
		return errs.NewValueIsInvalidError("run is closed")
	}

	dto := eventFromDomain(event)
	if err = db.Create(&dto).Error; err != nil {
		return fmt.Errorf("append event %d to run %s: %w", event.Seq, event.RunID, err)
	}
	return nil
}

// Events returns the run's events ordered by sequence number.
func (j *GormJournal) Events(ctx context.Context, runID string) ([]workflow.Event, error) {
	db := j.db.WithContext(ctx)
	if _, err := findRun(db, runID); err != nil {
		return nil, err
	}

	var dtos []EventDTO
	if err := db.Where("run_id = ?", runID).Order("seq").Find(&dtos).Error; err != nil {
		return nil, err
	}

	events := make([]workflow.Event, 0, len(dtos))
	for _, dto := range dtos {
		events = append(events, eventToDomain(dto))
	}
	return events, nil
}

// OpenRuns returns every open run, oldest first.
func (j *GormJournal) OpenRuns(ctx context.Context) ([]workflow.Run, error) {
	var dtos []RunDTO
	if err := j.db.WithContext(ctx).
		Where("status = ?", string(workflow.RunOpen)).
		Order("created_at, id").
		Find(&dtos).Error; err != nil {
		return nil, err
	}

	runs := make([]workflow.Run, 0, len(dtos))
	for _, dto := range dtos {
		runs = append(runs, runToDomain(dto))
	}
	return runs, nil
}

// CloseRun moves an open run to status.
func (j *GormJournal) CloseRun(ctx context.Context, runID string, status workflow.RunStatus, at time.Time) error {
	return closeRun(j.db.WithContext(ctx), runID, status, at)
}

// ContinueAsNew closes the current run and opens the next one in a single
// transaction.
func (j *GormJournal) ContinueAsNew(ctx context.Context, runID string, next workflow.Run, at time.Time) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := closeRun(tx, runID, workflow.RunContinued, at); err != nil {
			return err
		}
		return insertRun(tx, next)
	})
}

// PurgeClosed removes runs closed before the cutoff and their events.
func (j *GormJournal) PurgeClosed(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed := tx.Model(&RunDTO{}).Select("id").
			Where("status <> ? AND closed_at < ?", string(workflow.RunOpen), before)

		if err := tx.Where("run_id IN (?)", closed).Delete(&EventDTO{}).Error; err != nil {
			return err
		}

		result := tx.Where("status <> ? AND closed_at < ?", string(workflow.RunOpen), before).Delete(&RunDTO{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	return purged, err
}

func findRun(db *gorm.DB, runID string) (RunDTO, error) {
	var dto RunDTO
	err := db.Where("id = ?", runID).Take(&dto).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunDTO{}, errs.NewObjectNotFoundError("runID", runID)
	}
	return dto, err
}

func insertRun(db *gorm.DB, run workflow.Run) error {
	dto := runFromDomain(run)
	if err := db.Create(&dto).Error; err != nil {
		if pgerrors.IsUniqueViolation(err) && pgerrors.ConstraintName(err) != "workflow_runs_pkey" {
			return workflow.ErrAlreadyRunning
		}
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// closeRun only closes an open run; a run closed before keeps its status.
func closeRun(db *gorm.DB, runID string, status workflow.RunStatus, at time.Time) error {
	result := db.Model(&RunDTO{}).
		Where("id = ? AND status = ?", runID, string(workflow.RunOpen)).
		Updates(map[string]any{
			"status":    string(status),
			"closed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := findRun(db, runID); err != nil {
			return err
		}
		return errs.NewValueIsInvalidError("run is closed")
	}
	return nil
}
