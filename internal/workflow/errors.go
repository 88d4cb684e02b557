package workflow

import (
	"errors"

	"freight/internal/pkg/errs"
)

var (
	ErrRunNotFound     = errors.New("workflow run not found")
	ErrAlreadyRunning  = errors.New("workflow is already running")
	ErrEngineStopped   = errors.New("workflow engine is stopped")
	ErrNondeterminism  = errors.New("workflow replay diverged from journal")
	ErrUnknownActivity = errors.New("activity is not registered")
)

// ApplicationError is an activity failure with an explicit retry
// classification. Errors replayed from the journal are also surfaced as
// ApplicationError since only their message and classification survive.
type ApplicationError struct {
	Message      string
	NonRetryable bool
	Err          error
}

// NewNonRetryableError marks err so that the retry policy gives up at once.
func NewNonRetryableError(err error) *ApplicationError {
	return &ApplicationError{Message: err.Error(), NonRetryable: true, Err: err}
}

func (e *ApplicationError) Error() string {
	return e.Message
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// IsNonRetryable reports whether err must not be retried: explicitly marked
// application errors and input validation failures.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable {
		return true
	}

	return errs.IsValidation(err)
}
