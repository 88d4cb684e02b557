package workflow

import (
	"context"
	"slices"
	"sync"
	"time"

	"freight/internal/pkg/errs"
)

// MemoryJournal keeps runs in process memory. It is used by tests and by
// deployments that accept losing in-flight runs on restart.
type MemoryJournal struct {
	mu     sync.Mutex
	runs   map[string]Run
	events map[string][]Event
	order  map[string]int
	next   int
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		runs:   make(map[string]Run),
		events: make(map[string][]Event),
		order:  make(map[string]int),
	}
}

// StartRun opens run. It fails with ErrAlreadyRunning while the workflow
// has another open run.
func (j *MemoryJournal) StartRun(_ context.Context, run Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.startLocked(run)
}

func (j *MemoryJournal) startLocked(run Run) error {
	for _, existing := range j.runs {
		if existing.WorkflowID == run.WorkflowID && existing.Status == RunOpen {
			return ErrAlreadyRunning
		}
	}

	run.Status = RunOpen
	j.runs[run.ID] = run
	j.next++
	j.order[run.ID] = j.next
	return nil
}

// Append records event on an open run.
func (j *MemoryJournal) Append(_ context.Context, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	run, ok := j.runs[event.RunID]
	if !ok {
		return errs.NewObjectNotFoundError("runID", event.RunID)
	}
	if run.Status != RunOpen {
		return errs.NewValueIsInvalidError("run is closed")
	}

	j.events[event.RunID] = append(j.events[event.RunID], event)
	return nil
}

// Events returns the run's events ordered by sequence number.
func (j *MemoryJournal) Events(_ context.Context, runID string) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.runs[runID]; !ok {
		return nil, errs.NewObjectNotFoundError("runID", runID)
	}

	events := slices.Clone(j.events[runID])
	slices.SortFunc(events, func(a, b Event) int { return int(a.Seq - b.Seq) })
	return events, nil
}

// OpenRuns returns every open run, oldest first.
func (j *MemoryJournal) OpenRuns(_ context.Context) ([]Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var open []Run
	for _, run := range j.runs {
		if run.Status == RunOpen {
			open = append(open, run)
		}
	}
	j.sortLocked(open)
	return open, nil
}

// CloseRun moves an open run to status.
func (j *MemoryJournal) CloseRun(_ context.Context, runID string, status RunStatus, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.closeLocked(runID, status, at)
}

func (j *MemoryJournal) closeLocked(runID string, status RunStatus, at time.Time) error {
	run, ok := j.runs[runID]
	if !ok {
		return errs.NewObjectNotFoundError("runID", runID)
	}
	if run.Status != RunOpen {
		return errs.NewValueIsInvalidError("run is closed")
	}

	run.Status = status
	run.ClosedAt = &at
	j.runs[runID] = run
	return nil
}

// ContinueAsNew closes runID as continued and opens next.
func (j *MemoryJournal) ContinueAsNew(_ context.Context, runID string, next Run, at time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.closeLocked(runID, RunContinued, at); err != nil {
		return err
	}
	return j.startLocked(next)
}

// PurgeClosed drops runs closed before the cutoff.
func (j *MemoryJournal) PurgeClosed(_ context.Context, before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var purged int64
	for id, run := range j.runs {
		if run.Status == RunOpen || run.ClosedAt == nil || !run.ClosedAt.Before(before) {
			continue
		}
		delete(j.runs, id)
		delete(j.events, id)
		delete(j.order, id)
		purged++
	}
	return purged, nil
}

// Run returns a copy of the stored run; handy in tests.
func (j *MemoryJournal) Run(runID string) (Run, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	run, ok := j.runs[runID]
	return run, ok
}

// Runs returns every run of a workflow id ordered by creation.
func (j *MemoryJournal) Runs(workflowID string) []Run {
	j.mu.Lock()
	defer j.mu.Unlock()

	var runs []Run
	for _, run := range j.runs {
		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}
	j.sortLocked(runs)
	return runs
}

func (j *MemoryJournal) sortLocked(runs []Run) {
	slices.SortFunc(runs, func(a, b Run) int { return j.order[a.ID] - j.order[b.ID] })
}
