package workflow

import (
	"context"
	"encoding/json"
)

// Directive tells the engine what to do after a workflow step.
type Directive int

const (
	// Continue keeps the run open and waits for the next signal.
	Continue Directive = iota
	// Complete closes the run; the workflow reached its terminal state.
	Complete
	// ContinueAsNew closes the run and starts a fresh one with the same input.
	ContinueAsNew
)

// String returns the directive name.
func (d Directive) String() string {
	switch d {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	case ContinueAsNew:
		return "continue_as_new"
	default:
		return "unknown"
	}
}

// Signal is an external event delivered to a running workflow.
type Signal struct {
	Name    string
	Payload json.RawMessage
}

// Executor runs activities on behalf of a workflow.
type Executor interface {
	// Execute runs the named activity with input and decodes its result into
	// output, which may be nil for activities without a result.
	Execute(ctx context.Context, activity string, input, output any) error
}

// Workflow is a deterministic state machine driven by the engine. Start and
// HandleSignal are never called concurrently; Query may be called at any time
// from other goroutines and must not block on activities.
type Workflow interface {
	Start(ctx context.Context, exec Executor) (Directive, error)
	HandleSignal(ctx context.Context, exec Executor, signal Signal) (Directive, error)
	Query() any
}

// Factory builds a workflow from the input its run was started with.
type Factory func(input json.RawMessage) (Workflow, error)
