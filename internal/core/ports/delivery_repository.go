// Package ports defines the contracts between the freight application core
// and its infrastructure: persistence, routing, message composition and
// SMS dispatch.
package ports

import (
	"context"

	"freight/internal/core/domain/model/delivery"
	"freight/internal/core/domain/model/kernel"
)

// DeliveryRepository persists the mirror of each delivery. The lifecycle
// coordinator is the only writer. Listing goes through the read-side
// queries instead.
type DeliveryRepository interface {
	// Create inserts the delivery unless a record with the same id exists,
	// and returns whatever is stored afterwards. Calling it again for an
	// existing id is a no-op that returns the stored record unchanged.
	Create(ctx context.Context, d *delivery.Delivery) (*delivery.Delivery, error)

	// Get returns the stored delivery or an errs.ObjectNotFoundError.
	Get(ctx context.Context, id kernel.UUID) (*delivery.Delivery, error)

	// UpdateLocation overwrites currentLocation and
	// currentRouteDurationSeconds and returns the updated record.
	UpdateLocation(ctx context.Context, id kernel.UUID, location string, routeDurationSeconds int64) (*delivery.Delivery, error)

	// UpdateStatus overwrites the status and, when notified is non-nil, the
	// notified flag.
	UpdateStatus(ctx context.Context, id kernel.UUID, status delivery.Status, notified *bool) error
}
