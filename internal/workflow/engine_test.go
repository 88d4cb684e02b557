package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"freight/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tallyInput struct {
	Name        string `json:"name"`
	RotateAfter int    `json:"rotateAfter"`
}

type tallyView struct {
	Seed    int
	Total   int
	Handled int
}

// tally sums doubled numbers sent through "add" signals.
type tally struct {
	input tallyInput

	mu   sync.Mutex
	view tallyView
}

func (t *tally) Start(ctx context.Context, exec workflow.Executor) (workflow.Directive, error) {
	var seed int
	if err := exec.Execute(ctx, "seed", t.input.Name, &seed); err != nil {
		return workflow.Continue, err
	}

	t.mu.Lock()
	t.view.Seed = seed
	t.view.Total = seed
	t.mu.Unlock()
	return workflow.Continue, nil
}

func (t *tally) HandleSignal(ctx context.Context, exec workflow.Executor, s workflow.Signal) (workflow.Directive, error) {
	switch s.Name {
	case "add":
		var n int
		if err := json.Unmarshal(s.Payload, &n); err != nil {
			return workflow.Continue, err
		}

		var doubled int
		if err := exec.Execute(ctx, "double", n, &doubled); err != nil {
			return workflow.Continue, err
		}

		t.mu.Lock()
		t.view.Total += doubled
		t.view.Handled++
		handled := t.view.Handled
		t.mu.Unlock()

		if t.input.RotateAfter > 0 && handled >= t.input.RotateAfter {
			return workflow.ContinueAsNew, nil
		}
		return workflow.Continue, nil
	case "finish":
		return workflow.Complete, nil
	default:
		return workflow.Continue, errors.New("unknown signal " + s.Name)
	}
}

func (t *tally) Query() any {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.view
}

func tallyFactory(input json.RawMessage) (workflow.Workflow, error) {
	var in tallyInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	return &tally{input: in}, nil
}

type fakeActivities struct {
	seedCalls   atomic.Int32
	doubleCalls atomic.Int32
	seedFailure func(call int32) error
}

func (f *fakeActivities) register() *workflow.Registry {
	reg := workflow.NewRegistry()
	workflow.Register(reg, "seed", func(_ context.Context, name string) (int, error) {
		call := f.seedCalls.Add(1)
		if f.seedFailure != nil {
			if err := f.seedFailure(call); err != nil {
				return 0, err
			}
		}
		return len(name), nil
	})
	workflow.Register(reg, "double", func(_ context.Context, n int) (int, error) {
		f.doubleCalls.Add(1)
		return n * 2, nil
	})
	return reg
}

func fastPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{
		StartToCloseTimeout: time.Second,
		MaximumAttempts:     3,
		InitialInterval:     time.Millisecond,
		BackoffCoefficient:  2,
		MaximumInterval:     10 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, journal workflow.Journal, acts *fakeActivities) *workflow.Engine {
	t.Helper()

	engine, err := workflow.NewEngine(workflow.Options{
		Journal:  journal,
		Registry: acts.register(),
		Factory:  tallyFactory,
		Policy:   fastPolicy(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })
	return engine
}

func queryTally(t *testing.T, engine *workflow.Engine, id string) tallyView {
	t.Helper()

	view, err := engine.Query(t.Context(), id)
	require.NoError(t, err)
	return view.(tallyView)
}

func TestEngine_StartSignalQuery(t *testing.T) {
	ctx := t.Context()
	acts := &fakeActivities{}
	engine := newTestEngine(t, workflow.NewMemoryJournal(), acts)

	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "abc"}))
	assert.Equal(t, tallyView{Seed: 3, Total: 3}, queryTally(t, engine, "wf-1"))

	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 5))
	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 1))

	assert.Equal(t, tallyView{Seed: 3, Total: 15, Handled: 2}, queryTally(t, engine, "wf-1"))
	assert.Equal(t, 1, engine.LiveRuns())
}

func TestEngine_SignalsAreHandledOneAtATime(t *testing.T) {
	ctx := t.Context()
	engine := newTestEngine(t, workflow.NewMemoryJournal(), &fakeActivities{})
	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "x"}))

	const senders = 20
	var wg sync.WaitGroup
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, engine.Signal(ctx, "wf-1", "add", 1))
		}()
	}
	wg.Wait()

	view := queryTally(t, engine, "wf-1")
	assert.Equal(t, senders, view.Handled)
	assert.Equal(t, 1+2*senders, view.Total)
}

func TestEngine_DuplicateStartAndUnknownWorkflow(t *testing.T) {
	ctx := t.Context()
	engine := newTestEngine(t, workflow.NewMemoryJournal(), &fakeActivities{})

	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "x"}))
	require.ErrorIs(t, engine.Start(ctx, "wf-1", tallyInput{Name: "x"}), workflow.ErrAlreadyRunning)

	require.ErrorIs(t, engine.Signal(ctx, "missing", "add", 1), workflow.ErrRunNotFound)
	_, err := engine.Query(ctx, "missing")
	require.ErrorIs(t, err, workflow.ErrRunNotFound)
}

func TestEngine_StartFailureClosesRun(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()
	acts := &fakeActivities{seedFailure: func(int32) error {
		return workflow.NewNonRetryableError(errors.New("bad input"))
	}}
	engine := newTestEngine(t, journal, acts)

	err := engine.Start(ctx, "wf-1", tallyInput{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), acts.seedCalls.Load(), "non-retryable errors are not retried")

	runs := journal.Runs("wf-1")
	require.Len(t, runs, 1)
	assert.Equal(t, workflow.RunFailed, runs[0].Status)

	require.Eventually(t, func() bool { return engine.LiveRuns() == 0 }, time.Second, time.Millisecond)
}

func TestEngine_TransientFailuresAreRetried(t *testing.T) {
	ctx := t.Context()
	acts := &fakeActivities{seedFailure: func(call int32) error {
		if call < 3 {
			return errors.New("connection reset")
		}
		return nil
	}}
	engine := newTestEngine(t, workflow.NewMemoryJournal(), acts)

	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "abcd"}))
	assert.Equal(t, int32(3), acts.seedCalls.Load())
	assert.Equal(t, 4, queryTally(t, engine, "wf-1").Seed)
}

func TestEngine_CompleteClosesRun(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()
	engine := newTestEngine(t, journal, &fakeActivities{})

	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "x"}))
	require.NoError(t, engine.Signal(ctx, "wf-1", "finish", nil))

	require.Eventually(t, func() bool {
		runs := journal.Runs("wf-1")
		return len(runs) == 1 && runs[0].Status == workflow.RunCompleted
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return errors.Is(engine.Signal(ctx, "wf-1", "add", 1), workflow.ErrRunNotFound)
	}, time.Second, time.Millisecond)
}

func TestEngine_ContinueAsNewDiscardsHistory(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()
	acts := &fakeActivities{}
	engine := newTestEngine(t, journal, acts)

	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "xy", RotateAfter: 2}))
	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 1))
	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 1))

	require.Eventually(t, func() bool { return len(journal.Runs("wf-1")) == 2 }, time.Second, time.Millisecond)

	runs := journal.Runs("wf-1")
	assert.Equal(t, workflow.RunContinued, runs[0].Status)
	assert.Equal(t, workflow.RunOpen, runs[1].Status)
	assert.JSONEq(t, string(runs[0].Input), string(runs[1].Input))

	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 3))
	assert.Equal(t, tallyView{Seed: 2, Total: 8, Handled: 1}, queryTally(t, engine, "wf-1"))
	assert.Equal(t, int32(2), acts.seedCalls.Load())

	events, err := journal.Events(ctx, runs[1].ID)
	require.NoError(t, err)
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"seed", "add", "double"}, names, "the new run starts with an empty history")
}

func TestEngine_RecoverReplaysWithoutRerunningActivities(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()

	first := &fakeActivities{}
	engine := newTestEngine(t, journal, first)
	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "abc"}))
	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 2))
	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 4))
	require.NoError(t, engine.Shutdown(ctx))

	second := &fakeActivities{}
	restarted := newTestEngine(t, journal, second)
	recovered, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	assert.Equal(t, tallyView{Seed: 3, Total: 15, Handled: 2}, queryTally(t, restarted, "wf-1"))
	assert.Zero(t, second.seedCalls.Load())
	assert.Zero(t, second.doubleCalls.Load())

	require.NoError(t, restarted.Signal(ctx, "wf-1", "add", 1))
	assert.Equal(t, int32(1), second.doubleCalls.Load())
	assert.Equal(t, 17, queryTally(t, restarted, "wf-1").Total)

	again, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, again, "live runs are not recovered twice")
}

func TestEngine_RecoverRestartsRunWithRecordedTransientStartFailure(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()

	run := workflow.Run{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Input:      json.RawMessage(`{"name":"abcde"}`),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, journal.StartRun(ctx, run))
	require.NoError(t, journal.Append(ctx, workflow.Event{
		RunID: "run-1", Seq: 1, Kind: workflow.EventActivity, Name: "seed", Error: "timeout",
	}))

	acts := &fakeActivities{}
	engine := newTestEngine(t, journal, acts)
	recovered, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	assert.Equal(t, 5, queryTally(t, engine, "wf-1").Seed)
	runs := journal.Runs("wf-1")
	require.Len(t, runs, 2)
	assert.Equal(t, workflow.RunContinued, runs[0].Status)
	assert.Equal(t, workflow.RunOpen, runs[1].Status)
}

func TestEngine_RecoverRestartsRunThatDivergedFromJournal(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()

	require.NoError(t, journal.StartRun(ctx, workflow.Run{
		ID: "run-1", WorkflowID: "wf-1", Input: json.RawMessage(`{"name":"x"}`), CreatedAt: time.Now(),
	}))
	require.NoError(t, journal.Append(ctx, workflow.Event{
		RunID: "run-1", Seq: 1, Kind: workflow.EventActivity, Name: "double", Payload: json.RawMessage(`2`),
	}))

	acts := &fakeActivities{}
	engine := newTestEngine(t, journal, acts)
	recovered, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	run, ok := journal.Run("run-1")
	require.True(t, ok)
	assert.Equal(t, workflow.RunContinued, run.Status)

	runs := journal.Runs("wf-1")
	require.Len(t, runs, 2)
	assert.Equal(t, workflow.RunOpen, runs[1].Status)
	assert.Equal(t, tallyView{Seed: 1, Total: 1}, queryTally(t, engine, "wf-1"))
	assert.Equal(t, int32(1), acts.seedCalls.Load())
	assert.Zero(t, acts.doubleCalls.Load())
}

func TestEngine_RecoverRestartsRunWithUnrequestedResults(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()

	require.NoError(t, journal.StartRun(ctx, workflow.Run{
		ID: "run-1", WorkflowID: "wf-1", Input: json.RawMessage(`{"name":"xy"}`), CreatedAt: time.Now(),
	}))
	for _, e := range []workflow.Event{
		{Seq: 1, Kind: workflow.EventActivity, Name: "seed", Payload: json.RawMessage(`2`)},
		{Seq: 2, Kind: workflow.EventActivity, Name: "seed", Payload: json.RawMessage(`2`)},
		{Seq: 3, Kind: workflow.EventSignal, Name: "add", Payload: json.RawMessage(`1`)},
		{Seq: 4, Kind: workflow.EventActivity, Name: "double", Payload: json.RawMessage(`2`)},
	} {
		e.RunID = "run-1"
		require.NoError(t, journal.Append(ctx, e))
	}

	engine := newTestEngine(t, journal, &fakeActivities{})
	recovered, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	require.Len(t, journal.Runs("wf-1"), 2)
	assert.Equal(t, tallyView{Seed: 2, Total: 2}, queryTally(t, engine, "wf-1"))
}

// lossyJournal fails the journal write of one activity result, the way a
// database outage right after the activity ran would.
type lossyJournal struct {
	*workflow.MemoryJournal

	mu       sync.Mutex
	activity string
	lost     bool
}

func (j *lossyJournal) Append(ctx context.Context, event workflow.Event) error {
	j.mu.Lock()
	if !j.lost && event.Kind == workflow.EventActivity && event.Name == j.activity {
		j.lost = true
		j.mu.Unlock()
		return errors.New("connection reset")
	}
	j.mu.Unlock()

	return j.MemoryJournal.Append(ctx, event)
}

func TestEngine_RecoverAfterLostResultKeepsServingSignals(t *testing.T) {
	ctx := t.Context()
	journal := &lossyJournal{MemoryJournal: workflow.NewMemoryJournal(), activity: "double"}

	first := &fakeActivities{}
	engine := newTestEngine(t, journal, first)
	require.NoError(t, engine.Start(ctx, "wf-1", tallyInput{Name: "abc"}))

	err := engine.Signal(ctx, "wf-1", "add", 2)
	require.ErrorContains(t, err, "journal double result")
	require.NoError(t, engine.Signal(ctx, "wf-1", "add", 4))
	assert.Equal(t, int32(2), first.doubleCalls.Load())
	require.NoError(t, engine.Shutdown(ctx))

	second := &fakeActivities{}
	restarted := newTestEngine(t, journal, second)
	recovered, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// The journal no longer describes the first signal, so the workflow is
	// carried over to a new run instead of replaying shifted results.
	assert.Zero(t, second.doubleCalls.Load(), "recorded side effects are not executed again")
	assert.Equal(t, int32(1), second.seedCalls.Load())
	runs := journal.Runs("wf-1")
	require.Len(t, runs, 2)
	assert.Equal(t, workflow.RunContinued, runs[0].Status)
	assert.Equal(t, workflow.RunOpen, runs[1].Status)

	require.NoError(t, restarted.Signal(ctx, "wf-1", "add", 1))
	require.NoError(t, restarted.Signal(ctx, "wf-1", "add", 5))
	assert.Equal(t, tallyView{Seed: 3, Total: 15, Handled: 2}, queryTally(t, restarted, "wf-1"))
	assert.Equal(t, int32(2), second.doubleCalls.Load())

	again, err := restarted.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestEngine_Compact(t *testing.T) {
	ctx := t.Context()
	journal := workflow.NewMemoryJournal()
	engine := newTestEngine(t, journal, &fakeActivities{})

	require.NoError(t, engine.Start(ctx, "done", tallyInput{Name: "x"}))
	require.NoError(t, engine.Signal(ctx, "done", "finish", nil))
	require.NoError(t, engine.Start(ctx, "live", tallyInput{Name: "y"}))

	require.Eventually(t, func() bool {
		runs := journal.Runs("done")
		return len(runs) == 1 && runs[0].Status == workflow.RunCompleted
	}, time.Second, time.Millisecond)

	purged, err := engine.Compact(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Empty(t, journal.Runs("done"))
	assert.Len(t, journal.Runs("live"), 1)
}

func TestEngine_ShutdownRejectsNewRuns(t *testing.T) {
	ctx := t.Context()
	engine := newTestEngine(t, workflow.NewMemoryJournal(), &fakeActivities{})

	require.NoError(t, engine.Shutdown(ctx))
	require.ErrorIs(t, engine.Start(ctx, "wf-1", tallyInput{Name: "x"}), workflow.ErrEngineStopped)
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := workflow.NewEngine(workflow.Options{})
	require.Error(t, err)

	_, err = workflow.NewEngine(workflow.Options{
		Journal:  workflow.NewMemoryJournal(),
		Registry: workflow.NewRegistry(),
		Factory:  tallyFactory,
		Policy:   workflow.RetryPolicy{},
	})
	require.Error(t, err)
}
