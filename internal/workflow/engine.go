package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"freight/internal/pkg/errs"

	"github.com/google/uuid"
)

const defaultMailboxSize = 64

// Options configures an Engine. Journal, Registry and Factory are required.
type Options struct {
	Journal     Journal
	Registry    *Registry
	Factory     Factory
	Policy      RetryPolicy
	Observer    Observer
	Logger      *slog.Logger
	MailboxSize int
	Now         func() time.Time
}

// Engine runs one goroutine per live workflow id. Signals for the same id
// are handled strictly in the order they were accepted; different ids run
// independently.
type Engine struct {
	journal     Journal
	registry    *Registry
	factory     Factory
	policy      RetryPolicy
	observer    Observer
	logger      *slog.Logger
	mailboxSize int
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	instances map[string]*instance
	stopped   bool
}

// NewEngine creates an engine. Journal, Registry and Factory are required;
// the other options have defaults.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Journal == nil {
		return nil, errs.NewValueIsRequiredError("Journal")
	}
	if opts.Registry == nil {
		return nil, errs.NewValueIsRequiredError("Registry")
	}
	if opts.Factory == nil {
		return nil, errs.NewValueIsRequiredError("Factory")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = defaultMailboxSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		journal:     opts.Journal,
		registry:    opts.Registry,
		factory:     opts.Factory,
		policy:      opts.Policy,
		observer:    opts.Observer,
		logger:      opts.Logger.With("component", "workflow_engine"),
		mailboxSize: opts.MailboxSize,
		now:         opts.Now,
		ctx:         ctx,
		cancel:      cancel,
		instances:   make(map[string]*instance),
	}, nil
}

// Start opens a run for workflowID and waits until the workflow's Start step
// finished. A failed start closes the run as failed and returns the error.
func (e *Engine) Start(ctx context.Context, workflowID string, input any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode workflow input: %w", err)
	}

	wf, err := e.factory(raw)
	if err != nil {
		return err
	}

	inst, err := e.reserve(workflowID)
	if err != nil {
		return err
	}

	run := Run{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Input:      raw,
		Status:     RunOpen,
		CreatedAt:  e.now(),
	}
	if err = e.journal.StartRun(ctx, run); err != nil {
		e.release(inst)
		return fmt.Errorf("start run: %w", err)
	}
	e.observer.RunStarted()

	inst.bind(run, wf, e.newHistory(run.ID, 1))
	started := e.spawn(inst, inst.bootFresh)

	select {
	case err = <-started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signal delivers a named signal and waits for the workflow to handle it.
// If ctx ends first the signal stays queued and is still processed.
func (e *Engine) Signal(ctx context.Context, workflowID, name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode signal payload: %w", err)
	}

	inst, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	env := envelope{
		signal: Signal{Name: name, Payload: raw},
		reply:  make(chan error, 1),
	}

	select {
	case inst.mailbox <- env:
	case <-inst.done:
		return ErrRunNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err = <-env.reply:
		return err
	case <-inst.done:
		select {
		case err = <-env.reply:
			return err
		default:
			return ErrRunNotFound
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query returns the workflow's snapshot. It never waits for a signal in
// progress.
func (e *Engine) Query(_ context.Context, workflowID string) (any, error) {
	inst, err := e.lookup(workflowID)
	if err != nil {
		return nil, err
	}

	view, ok := inst.view()
	if !ok {
		return nil, ErrRunNotFound
	}
	return view.Query(), nil
}

// Recover re-hosts every open run that has no live instance, replaying its
// journal. It waits until each replay caught up and returns how many runs
// were recovered.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	runs, err := e.journal.OpenRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open runs: %w", err)
	}

	var (
		failures []error
		waiting  []chan error
	)
	for _, run := range runs {
		inst, err := e.reserve(run.WorkflowID)
		if errors.Is(err, ErrAlreadyRunning) {
			continue
		}
		if err != nil {
			failures = append(failures, err)
			break
		}

		events, err := e.journal.Events(ctx, run.ID)
		if err != nil {
			e.release(inst)
			failures = append(failures, fmt.Errorf("load run %s: %w", run.ID, err))
			continue
		}

		wf, err := e.factory(run.Input)
		if err != nil {
			e.release(inst)
			_ = e.journal.CloseRun(ctx, run.ID, RunFailed, e.now())
			failures = append(failures, fmt.Errorf("rebuild run %s: %w", run.ID, err))
			continue
		}

		startup, signals, nextSeq := splitSteps(events)
		inst.bind(run, wf, e.newHistory(run.ID, nextSeq))
		waiting = append(waiting, e.spawn(inst, inst.bootRecovered(startup, signals)))
	}

	recovered := 0
	for _, started := range waiting {
		select {
		case err := <-started:
			if err != nil {
				failures = append(failures, err)
				continue
			}
			recovered++
			e.observer.RunRecovered()
		case <-ctx.Done():
			return recovered, ctx.Err()
		}
	}

	if recovered > 0 {
		e.logger.InfoContext(ctx, "Recovered workflow runs", "count", recovered)
	}
	return recovered, errors.Join(failures...)
}

// Compact purges runs closed longer than retention ago.
func (e *Engine) Compact(ctx context.Context, retention time.Duration) (int64, error) {
	return e.journal.PurgeClosed(ctx, e.now().Add(-retention))
}

// LiveRuns returns the number of hosted workflow ids.
func (e *Engine) LiveRuns() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.instances)
}

// Shutdown stops every instance and waits for their goroutines. Open runs
// stay open in the journal and are picked up by the next Recover.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.InfoContext(ctx, "Workflow engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) newHistory(runID string, nextSeq int64) *history {
	return &history{
		runID:    runID,
		journal:  e.journal,
		registry: e.registry,
		policy:   e.policy,
		observer: e.observer,
		logger:   e.logger.With("run_id", runID),
		now:      e.now,
		nextSeq:  nextSeq,
	}
}

func (e *Engine) reserve(workflowID string) (*instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrEngineStopped
	}
	if _, exists := e.instances[workflowID]; exists {
		return nil, ErrAlreadyRunning
	}

	inst := newInstance(e, workflowID)
	e.instances[workflowID] = inst
	e.observer.LiveRuns(len(e.instances))
	return inst, nil
}

func (e *Engine) release(inst *instance) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.instances[inst.workflowID] == inst {
		delete(e.instances, inst.workflowID)
	}
	e.observer.LiveRuns(len(e.instances))
}

func (e *Engine) lookup(workflowID string) (*instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[workflowID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return inst, nil
}

func (e *Engine) spawn(inst *instance, boot bootFunc) chan error {
	started := make(chan error, 1)
	e.wg.Add(1)
	go inst.loop(e.ctx, boot, started)
	return started
}
