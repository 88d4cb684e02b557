package ports

import "context"

// RouteLookup computes the driving time between two free-form addresses.
//
// Implementations return errors that the activity layer can classify:
// errs validation errors and workflow.ApplicationError with NonRetryable set
// are never retried, anything else is treated as transient.
type RouteLookup interface {
	RouteDurationSeconds(ctx context.Context, origin, destination string) (int64, error)
}
