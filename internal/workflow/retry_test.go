package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"freight/internal/pkg/errs"
	"freight/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Do(t *testing.T) {
	transient := errors.New("503 service unavailable")

	testCases := []struct {
		name         string
		failUntil    int
		failWith     error
		wantAttempts int
		wantErr      error
	}{
		{"first_attempt_succeeds", 0, nil, 1, nil},
		{"recovers_after_transient_failures", 2, transient, 3, nil},
		{"gives_up_after_max_attempts", 99, transient, 3, transient},
		{"non_retryable_stops_at_once", 99, workflow.NewNonRetryableError(errors.New("no credentials")), 1, nil},
		{"validation_error_stops_at_once", 99, errs.NewValueIsRequiredError("origin"), 1, errs.ErrValueIsRequired},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			err := fastPolicy().Do(t.Context(), func(_ context.Context, n int) error {
				attempts = n
				if n <= tc.failUntil {
					return tc.failWith
				}
				return nil
			})

			assert.Equal(t, tc.wantAttempts, attempts)
			switch {
			case tc.failWith == nil || tc.failUntil < tc.wantAttempts:
				require.NoError(t, err)
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr)
			default:
				require.Error(t, err)
			}
		})
	}
}

func TestRetryPolicy_AttemptTimeout(t *testing.T) {
	policy := fastPolicy()
	policy.StartToCloseTimeout = 20 * time.Millisecond
	policy.MaximumAttempts = 2

	attempts := 0
	err := policy.Do(t.Context(), func(ctx context.Context, _ int) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, attempts)
}

func TestRetryPolicy_StopsWhenContextEnds(t *testing.T) {
	policy := fastPolicy()
	policy.InitialInterval = time.Hour
	policy.MaximumInterval = time.Hour

	ctx, cancel := context.WithCancel(t.Context())
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context, int) error {
			attempts++
			return errors.New("transient")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry loop ignored context cancellation")
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	require.NoError(t, workflow.DefaultRetryPolicy().Validate())

	p := workflow.DefaultRetryPolicy()
	assert.Equal(t, 30*time.Second, p.StartToCloseTimeout)
	assert.Equal(t, 5, p.MaximumAttempts)
	assert.Equal(t, 5*time.Second, p.InitialInterval)
	assert.InDelta(t, 2.0, p.BackoffCoefficient, 0)

	broken := p
	broken.MaximumAttempts = 0
	require.Error(t, broken.Validate())

	broken = p
	broken.BackoffCoefficient = 0.5
	require.Error(t, broken.Validate())

	broken = p
	broken.MaximumInterval = time.Second
	require.Error(t, broken.Validate())
}
