package workflow

import (
	"context"
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a Run in the journal.
type RunStatus string

const (
	RunOpen      RunStatus = "OPEN"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunContinued RunStatus = "CONTINUED_AS_NEW"
)

// EventKind distinguishes journaled signals from activity results.
type EventKind string

const (
	EventSignal   EventKind = "SIGNAL"
	EventActivity EventKind = "ACTIVITY"
)

// Run is one execution of a workflow.
type Run struct {
	ID         string
	WorkflowID string
	Input      json.RawMessage
	Status     RunStatus
	CreatedAt  time.Time
	ClosedAt   *time.Time
}

// Event is a single journal entry of a run. Seq starts at 1 and increases by
// one per event within the run.
type Event struct {
	RunID        string
	Seq          int64
	Kind         EventKind
	Name         string
	Payload      json.RawMessage
	Error        string
	NonRetryable bool
	RecordedAt   time.Time
}

// Journal is the durable store behind the engine.
type Journal interface {
	// StartRun records a new open run. It fails with ErrAlreadyRunning when
	// the workflow id already has an open run.
	StartRun(ctx context.Context, run Run) error

	// Append adds an event to an open run.
	Append(ctx context.Context, event Event) error

	// Events returns the events of a run ordered by Seq.
	Events(ctx context.Context, runID string) ([]Event, error)

	// OpenRuns lists runs that were neither completed, failed nor continued.
	OpenRuns(ctx context.Context) ([]Run, error)

	// CloseRun marks a run as finished with the given terminal status.
	CloseRun(ctx context.Context, runID string, status RunStatus, at time.Time) error

	// ContinueAsNew closes runID as continued and opens next atomically.
	ContinueAsNew(ctx context.Context, runID string, next Run, at time.Time) error

	// PurgeClosed deletes runs closed before the cutoff together with their
	// events and returns how many runs were removed.
	PurgeClosed(ctx context.Context, before time.Time) (int64, error)
}
