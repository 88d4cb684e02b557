package workflow

import (
	"context"
	"errors"
	"time"

	"freight/internal/pkg/errs"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds every activity call.
type RetryPolicy struct {
	// StartToCloseTimeout limits a single attempt.
	StartToCloseTimeout time.Duration
	// MaximumAttempts includes the first attempt.
	MaximumAttempts int
	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration
	// BackoffCoefficient multiplies the wait after every retry.
	BackoffCoefficient float64
	// MaximumInterval caps the wait between attempts.
	MaximumInterval time.Duration
}

// DefaultRetryPolicy: 30s per attempt, 5 attempts, 5s initial wait doubling
// each time.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		StartToCloseTimeout: 30 * time.Second,
		MaximumAttempts:     5,
		InitialInterval:     5 * time.Second,
		BackoffCoefficient:  2,
		MaximumInterval:     5 * time.Minute,
	}
}

// Validate rejects policies that could not make progress.
func (p RetryPolicy) Validate() error {
	if p.StartToCloseTimeout <= 0 {
		return errs.NewValueIsInvalidError("StartToCloseTimeout")
	}
	if p.MaximumAttempts < 1 {
		return errs.NewValueIsOutOfRangeError("MaximumAttempts", p.MaximumAttempts, 1, "unbounded")
	}
	if p.InitialInterval <= 0 {
		return errs.NewValueIsInvalidError("InitialInterval")
	}
	if p.BackoffCoefficient < 1 {
		return errs.NewValueIsOutOfRangeError("BackoffCoefficient", p.BackoffCoefficient, 1, "unbounded")
	}
	if p.MaximumInterval < p.InitialInterval {
		return errs.NewValueIsInvalidErrorWithCause(
			"MaximumInterval", errors.New("must not be shorter than InitialInterval"))
	}
	return nil
}

// Do calls attempt until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. Each attempt gets its own timeout. The
// error of the last attempt is returned, or ctx.Err() when ctx ends while
// waiting between attempts.
func (p RetryPolicy) Do(ctx context.Context, attempt func(ctx context.Context, n int) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.BackoffCoefficient
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaximumInterval
	b.MaxElapsedTime = 0
	b.Reset()

	retries := uint64(0)
	if p.MaximumAttempts > 1 {
		retries = uint64(p.MaximumAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	n := 0
	return backoff.Retry(func() error {
		n++
		attemptCtx, cancel := context.WithTimeout(ctx, p.StartToCloseTimeout)
		defer cancel()

		err := attempt(attemptCtx, n)
		if err == nil {
			return nil
		}
		if IsNonRetryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
