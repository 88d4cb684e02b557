// Package sqlite implements the workflow journal on an embedded SQLite
// database for single-node deployments that run without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"freight/internal/pkg/errs"
	"freight/internal/workflow"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	input       BLOB NOT NULL,
	status      TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	closed_at   INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS workflow_runs_open_workflow_id
	ON workflow_runs(workflow_id) WHERE status = 'OPEN';
CREATE INDEX IF NOT EXISTS workflow_runs_status ON workflow_runs(status, created_at);

CREATE TABLE IF NOT EXISTS workflow_events (
	run_id        TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL,
	payload       BLOB,
	error         TEXT NOT NULL DEFAULT '',
	non_retryable INTEGER NOT NULL DEFAULT 0,
	recorded_at   INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

var _ workflow.Journal = (*Journal)(nil)

// Journal is a workflow.Journal backed by a SQLite file in WAL mode.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(ctx context.Context, path string) (*Journal, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun inserts run, failing with ErrAlreadyRunning while the workflow
// has another open run.
func (j *Journal) StartRun(ctx context.Context, run workflow.Run) error {
	return retryOnContention(ctx, func() error {
		return insertRun(ctx, j.db, run)
	})
}

// Append records event on an open run.
func (j *Journal) Append(ctx context.Context, event workflow.Event) error {
	return retryOnContention(ctx, func() error {
		status, err := runStatus(ctx, j.db, event.RunID)
		if err != nil {
			return err
		}
		if status != workflow.RunOpen {
			return errs.NewValueIsInvalidError("run is closed")
		}

		_, err = j.db.ExecContext(ctx,
			`INSERT INTO workflow_events (run_id, seq, kind, name, payload, error, non_retryable, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			event.RunID, event.Seq, string(event.Kind), event.Name, []byte(event.Payload),
			event.Error, event.NonRetryable, event.RecordedAt.UnixNano(),
		)
		return err
	})
}

// Events returns the run's events ordered by sequence number.
func (j *Journal) Events(ctx context.Context, runID string) ([]workflow.Event, error) {
	if _, err := runStatus(ctx, j.db, runID); err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, kind, name, payload, error, non_retryable, recorded_at
		 FROM workflow_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []workflow.Event
	for rows.Next() {
		var (
			e          workflow.Event
			kind       string
			payload    []byte
			recordedAt int64
		)
		if err = rows.Scan(&e.Seq, &kind, &e.Name, &payload, &e.Error, &e.NonRetryable, &recordedAt); err != nil {
			return nil, err
		}
		e.RunID = runID
		e.Kind = workflow.EventKind(kind)
		e.Payload = payload
		e.RecordedAt = time.Unix(0, recordedAt).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// OpenRuns returns every open run, oldest first.
func (j *Journal) OpenRuns(ctx context.Context) ([]workflow.Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, workflow_id, input, status, created_at
		 FROM workflow_runs WHERE status = ? ORDER BY created_at, rowid`, string(workflow.RunOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []workflow.Run
	for rows.Next() {
		var (
			run       workflow.Run
			input     []byte
			status    string
			createdAt int64
		)
		if err = rows.Scan(&run.ID, &run.WorkflowID, &input, &status, &createdAt); err != nil {
			return nil, err
		}
		run.Input = input
		run.Status = workflow.RunStatus(status)
		run.CreatedAt = time.Unix(0, createdAt).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CloseRun moves an open run to status.
func (j *Journal) CloseRun(ctx context.Context, runID string, status workflow.RunStatus, at time.Time) error {
	return retryOnContention(ctx, func() error {
		return closeRun(ctx, j.db, runID, status, at)
	})
}

// ContinueAsNew closes the current run and opens the next one in a single
// transaction.
func (j *Journal) ContinueAsNew(ctx context.Context, runID string, next workflow.Run, at time.Time) error {
	return retryOnContention(ctx, func() error {
		return j.inTx(ctx, func(tx *sql.Tx) error {
			if err := closeRun(ctx, tx, runID, workflow.RunContinued, at); err != nil {
				return err
			}
			return insertRun(ctx, tx, next)
		})
	})
}

// PurgeClosed deletes runs closed before the cutoff together with their
// events.
func (j *Journal) PurgeClosed(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := retryOnContention(ctx, func() error {
		return j.inTx(ctx, func(tx *sql.Tx) error {
			cutoff := before.UnixNano()
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM workflow_events WHERE run_id IN (
					SELECT id FROM workflow_runs WHERE status <> ? AND closed_at < ?)`,
				string(workflow.RunOpen), cutoff); err != nil {
				return err
			}

			result, err := tx.ExecContext(ctx,
				`DELETE FROM workflow_runs WHERE status <> ? AND closed_at < ?`,
				string(workflow.RunOpen), cutoff)
			if err != nil {
				return err
			}
			purged, err = result.RowsAffected()
			return err
		})
	})
	return purged, err
}

func (j *Journal) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execQuerier interface {
	execer
	querier
}

func insertRun(ctx context.Context, db execer, run workflow.Run) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, input, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, []byte(run.Input), string(workflow.RunOpen), run.CreatedAt.UnixNano(),
	)
	if isOpenRunConflict(err) {
		return workflow.ErrAlreadyRunning
	}
	return err
}

// closeRun only closes an open run; a run closed before keeps its status.
func closeRun(ctx context.Context, db execQuerier, runID string, status workflow.RunStatus, at time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, closed_at = ? WHERE id = ? AND status = ?`,
		string(status), at.UnixNano(), runID, string(workflow.RunOpen))
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err = runStatus(ctx, db, runID); err != nil {
			return err
		}
		return errs.NewValueIsInvalidError("run is closed")
	}
	return nil
}

func runStatus(ctx context.Context, db querier, runID string) (workflow.RunStatus, error) {
	var status string
	err := db.QueryRowContext(ctx, `SELECT status FROM workflow_runs WHERE id = ?`, runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.NewObjectNotFoundError("runID", runID)
	}
	return workflow.RunStatus(status), err
}

// isOpenRunConflict reports a violation of the open-run index. Primary key
// collisions name the id column and are not matched.
func isOpenRunConflict(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(sqliteErr.Error(), "workflow_runs.workflow_id")
}

// isTransient reports lock contention that a retry can resolve.
func isTransient(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// retryOnContention retries fn with jittered exponential backoff while it
// fails with SQLITE_BUSY or SQLITE_LOCKED.
func retryOnContention(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx))
}
