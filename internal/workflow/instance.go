package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type envelope struct {
	signal Signal
	reply  chan error
}

type bootFunc func(ctx context.Context) (Directive, error)

// instance hosts the current run of one workflow id. Only the loop goroutine
// touches run, wf and hist; queries go through the view guarded by mu.
type instance struct {
	engine     *Engine
	workflowID string
	mailbox    chan envelope
	done       chan struct{}
	logger     *slog.Logger

	run  Run
	wf   Workflow
	hist *history

	mu      sync.RWMutex
	started Workflow
}

func newInstance(e *Engine, workflowID string) *instance {
	return &instance{
		engine:     e,
		workflowID: workflowID,
		mailbox:    make(chan envelope, e.mailboxSize),
		done:       make(chan struct{}),
		logger:     e.logger.With("workflow_id", workflowID),
	}
}

func (i *instance) bind(run Run, wf Workflow, hist *history) {
	i.run = run
	i.wf = wf
	i.hist = hist
}

func (i *instance) view() (Workflow, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.started, i.started != nil
}

func (i *instance) publish() {
	i.mu.Lock()
	i.started = i.wf
	i.mu.Unlock()
}

func (i *instance) loop(ctx context.Context, boot bootFunc, started chan<- error) {
	defer i.engine.wg.Done()
	defer close(i.done)
	defer i.engine.release(i)

	directive, err := boot(ctx)
	started <- err
	if err != nil {
		return
	}

	for i.apply(ctx, directive) {
		select {
		case <-ctx.Done():
			return
		case env := <-i.mailbox:
			directive, err = i.handle(ctx, env.signal)
			env.reply <- err
		}
	}
}

// bootFresh starts a brand new run. A failure closes the run: the caller
// learns about it and nothing will recover it.
func (i *instance) bootFresh(ctx context.Context) (Directive, error) {
	directive, err := i.wf.Start(ctx, i.hist)
	if err != nil {
		if ctx.Err() == nil {
			i.close(ctx, RunFailed)
		}
		return Continue, err
	}

	i.publish()
	i.logger.InfoContext(ctx, "Workflow started", "run_id", i.run.ID)
	return directive, nil
}

// bootRecovered replays a run from its journal, one step at a time. Signal
// handler errors were already reported to their original callers and are
// only logged here. A replay that no longer matches the journal is abandoned
// and the workflow continues on a fresh run.
func (i *instance) bootRecovered(startup []Event, signals []recordedSignal) bootFunc {
	return func(ctx context.Context) (Directive, error) {
		i.hist.load(startup, len(signals) == 0)
		directive, err := i.wf.Start(ctx, i.hist)
		if divergence := i.hist.settle(); divergence != nil {
			return i.restart(ctx, divergence)
		}
		if err != nil {
			return i.recoverFailedStart(ctx, err)
		}

		for n, recorded := range signals {
			if directive != Continue {
				break
			}
			event := recorded.event
			i.hist.load(recorded.results, n == len(signals)-1)
			directive, err = i.wf.HandleSignal(ctx, i.hist, Signal{Name: event.Name, Payload: event.Payload})
			if ctx.Err() != nil {
				return Continue, ctx.Err()
			}
			if divergence := i.hist.settle(); divergence != nil {
				i.logger.WarnContext(ctx, "Replay diverged from journal",
					"signal", event.Name, "seq", event.Seq, "error", divergence)
				return i.restart(ctx, divergence)
			}
			if err != nil {
				i.logger.WarnContext(ctx, "Replayed signal failed", "signal", event.Name, "seq", event.Seq, "error", err)
			}
		}

		i.publish()
		i.logger.InfoContext(ctx, "Workflow recovered", "run_id", i.run.ID, "signals", len(signals))
		return directive, nil
	}
}

// recoverFailedStart handles a start step that failed while recovering.
// Permanent failures close the run; anything else restarts the run from a
// clean history so a recorded transient failure is not replayed forever.
func (i *instance) recoverFailedStart(ctx context.Context, cause error) (Directive, error) {
	if ctx.Err() != nil {
		return Continue, ctx.Err()
	}
	if IsNonRetryable(cause) {
		i.close(ctx, RunFailed)
		return Continue, fmt.Errorf("recover run %s: %w", i.run.ID, cause)
	}
	return i.restart(ctx, cause)
}

// restart carries the workflow over to a new run with the original input.
// The new run starts from an empty history, so nothing recorded in the old
// run is replayed again.
func (i *instance) restart(ctx context.Context, cause error) (Directive, error) {
	if ctx.Err() != nil {
		return Continue, ctx.Err()
	}

	i.logger.WarnContext(ctx, "Restarting recovered run", "run_id", i.run.ID, "cause", cause)
	directive, err := i.rotate(ctx)
	if err != nil {
		if IsNonRetryable(err) && ctx.Err() == nil {
			i.close(ctx, RunFailed)
		}
		return Continue, fmt.Errorf("restart run for %s: %w", i.workflowID, err)
	}
	return directive, nil
}

func (i *instance) handle(ctx context.Context, signal Signal) (Directive, error) {
	event := Event{
		RunID:      i.run.ID,
		Seq:        i.hist.seq(),
		Kind:       EventSignal,
		Name:       signal.Name,
		Payload:    signal.Payload,
		RecordedAt: i.engine.now(),
	}
	if err := i.engine.journal.Append(ctx, event); err != nil {
		return Continue, fmt.Errorf("journal signal %s: %w", signal.Name, err)
	}

	directive, err := i.wf.HandleSignal(ctx, i.hist, signal)
	i.engine.observer.SignalHandled(signal.Name, err)
	if err != nil {
		i.logger.WarnContext(ctx, "Signal failed", "signal", signal.Name, "error", err)
	}
	return directive, err
}

// apply acts on a directive and reports whether the loop keeps running.
func (i *instance) apply(ctx context.Context, directive Directive) bool {
	switch directive {
	case Continue:
		return true
	case Complete:
		i.close(ctx, RunCompleted)
		i.logger.InfoContext(ctx, "Workflow completed", "run_id", i.run.ID)
		return false
	case ContinueAsNew:
		next, err := i.rotate(ctx)
		if err != nil {
			if IsNonRetryable(err) {
				i.close(ctx, RunFailed)
			}
			i.logger.ErrorContext(ctx, "Continue-as-new failed", "run_id", i.run.ID, "error", err)
			return false
		}
		return i.apply(ctx, next)
	default:
		i.logger.ErrorContext(ctx, "Unknown directive", "directive", int(directive))
		return false
	}
}

// rotate closes the current run as continued, opens a new one with the same
// input and starts a fresh workflow on it. Queries keep seeing the previous
// workflow until the new one has started.
func (i *instance) rotate(ctx context.Context) (Directive, error) {
	e := i.engine
	next := Run{
		ID:         uuid.NewString(),
		WorkflowID: i.workflowID,
		Input:      i.run.Input,
		Status:     RunOpen,
		CreatedAt:  e.now(),
	}
	if err := e.journal.ContinueAsNew(ctx, i.run.ID, next, e.now()); err != nil {
		return Continue, fmt.Errorf("continue as new: %w", err)
	}
	e.observer.RunClosed(RunContinued)
	e.observer.RunRotated()

	previous := i.run.ID
	wf, err := e.factory(next.Input)
	if err != nil {
		// The next run is open now; it is the one the caller fails.
		i.run = next
		return Continue, NewNonRetryableError(err)
	}

	i.bind(next, wf, e.newHistory(next.ID, 1))

	directive, err := wf.Start(ctx, i.hist)
	if err != nil {
		return Continue, err
	}

	i.publish()
	i.logger.InfoContext(ctx, "Workflow continued as new", "previous_run_id", previous, "run_id", next.ID)
	return directive, nil
}

func (i *instance) close(ctx context.Context, status RunStatus) {
	// The run must be closed even if the engine is being stopped.
	closeCtx := context.WithoutCancel(ctx)
	if err := i.engine.journal.CloseRun(closeCtx, i.run.ID, status, i.engine.now()); err != nil {
		i.logger.ErrorContext(closeCtx, "Failed to close run", "run_id", i.run.ID, "status", status, "error", err)
		return
	}
	i.engine.observer.RunClosed(status)
}
