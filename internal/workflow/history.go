package workflow

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// history is the Executor handed to a workflow for one run. While a run is
// recovered it serves the recorded results of one step (start or a single
// signal) at a time; afterwards it runs activities for real and journals
// what they return.
type history struct {
	runID    string
	journal  Journal
	registry *Registry
	policy   RetryPolicy
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	recorded []Event
	// strict is set while replaying a step that later journal entries
	// follow. Running out of results there means entries were lost.
	strict   bool
	diverged error
	nextSeq  int64
}

// load queues the recorded results of the next step to replay.
func (h *history) load(results []Event, last bool) {
	h.recorded = results
	h.strict = !last
}

// settle ends the replay of a step and reports whether it matched the
// journal. Results the step never asked for count as a divergence.
func (h *history) settle() error {
	if h.diverged == nil && len(h.recorded) > 0 {
		event := h.recorded[0]
		h.diverged = NewNonRetryableError(fmt.Errorf("%w: recorded %q at seq %d was not requested",
			ErrNondeterminism, event.Name, event.Seq))
	}
	h.recorded = nil
	h.strict = false
	return h.diverged
}

func (h *history) seq() int64 {
	s := h.nextSeq
	h.nextSeq++
	return s
}

// Execute serves a recorded result while replaying and runs the activity
// otherwise.
func (h *history) Execute(ctx context.Context, activity string, input, output any) error {
	if h.diverged != nil {
		return h.diverged
	}
	if len(h.recorded) > 0 {
		return h.replay(activity, output)
	}
	if h.strict {
		h.diverged = NewNonRetryableError(fmt.Errorf("%w: no recorded result for %q",
			ErrNondeterminism, activity))
		return h.diverged
	}

	fn, ok := h.registry.lookup(activity)
	if !ok {
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrUnknownActivity, activity))
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return NewNonRetryableError(fmt.Errorf("encode %s input: %w", activity, err))
	}

	var result json.RawMessage
	runErr := h.policy.Do(ctx, func(attemptCtx context.Context, attempt int) error {
		out, err := fn(attemptCtx, raw)
		h.observer.ActivityAttempt(activity, err)
		if err != nil {
			h.logger.WarnContext(ctx, "Activity attempt failed",
				"activity", activity, "attempt", attempt, "error", err)
			return err
		}
		result = out
		return nil
	})

	// The engine is stopping: leave the call unrecorded so recovery runs it again.
	if runErr != nil && ctx.Err() != nil {
		return runErr
	}

	event := Event{
		RunID:      h.runID,
		Seq:        h.seq(),
		Kind:       EventActivity,
		Name:       activity,
		Payload:    result,
		RecordedAt: h.now(),
	}
	if runErr != nil {
		event.Payload = nil
		event.Error = runErr.Error()
		event.NonRetryable = IsNonRetryable(runErr)
	}

	if err = h.journal.Append(ctx, event); err != nil {
		return fmt.Errorf("journal %s result: %w", activity, err)
	}
	if runErr != nil {
		return runErr
	}

	return decode(activity, result, output)
}

func (h *history) replay(activity string, output any) error {
	event := h.recorded[0]
	if event.Name != activity {
		h.diverged = NewNonRetryableError(fmt.Errorf("%w: recorded %q at seq %d, requested %q",
			ErrNondeterminism, event.Name, event.Seq, activity))
		return h.diverged
	}
	h.recorded = h.recorded[1:]

	if event.Error != "" {
		return &ApplicationError{Message: event.Error, NonRetryable: event.NonRetryable}
	}

	return decode(activity, event.Payload, output)
}

func decode(activity string, payload json.RawMessage, output any) error {
	if output == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, output); err != nil {
		return NewNonRetryableError(fmt.Errorf("decode %s result: %w", activity, err))
	}
	return nil
}

// recordedSignal is a journaled signal with the activity results recorded
// while it was handled.
type recordedSignal struct {
	event   Event
	results []Event
}

// splitSteps groups a run's events by the step that produced them: activity
// results before the first signal belong to the start step, the rest to the
// signal journaled right before them. It also returns the next free sequence
// number.
func splitSteps(events []Event) (startup []Event, signals []recordedSignal, nextSeq int64) {
	ordered := slices.Clone(events)
	slices.SortFunc(ordered, func(a, b Event) int { return cmp.Compare(a.Seq, b.Seq) })

	nextSeq = 1
	for _, e := range ordered {
		switch e.Kind {
		case EventSignal:
			signals = append(signals, recordedSignal{event: e})
		case EventActivity:
			if len(signals) == 0 {
				startup = append(startup, e)
			} else {
				last := &signals[len(signals)-1]
				last.results = append(last.results, e)
			}
		}
		if e.Seq >= nextSeq {
			nextSeq = e.Seq + 1
		}
	}
	return startup, signals, nextSeq
}
