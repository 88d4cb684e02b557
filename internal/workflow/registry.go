package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ActivityFunc is the JSON level form of a registered activity.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Registry maps activity names to implementations.
type Registry struct {
	mu         sync.RWMutex
	activities map[string]ActivityFunc
}

// NewRegistry creates an empty activity registry.
func NewRegistry() *Registry {
	return &Registry{activities: make(map[string]ActivityFunc)}
}

// Register adds a typed activity. Input and output travel through JSON so
// that the journal can record them; decoding problems are non-retryable.
// Registering the same name twice panics.
func Register[In, Out any](r *Registry, name string, fn func(context.Context, In) (Out, error)) {
	r.add(name, func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, NewNonRetryableError(fmt.Errorf("decode %s input: %w", name, err))
			}
		}

		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(out)
		if err != nil {
			return nil, NewNonRetryableError(fmt.Errorf("encode %s output: %w", name, err))
		}
		return encoded, nil
	})
}

func (r *Registry) add(name string, fn ActivityFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[name]; exists {
		panic(fmt.Sprintf("workflow: activity %q registered twice", name))
	}
	r.activities[name] = fn
}

func (r *Registry) lookup(name string) (ActivityFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.activities[name]
	return fn, ok
}
