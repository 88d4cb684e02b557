// Package commands contains the operations that change delivery state.
// Every command is validated when it is constructed; handlers hand the
// change to the delivery's lifecycle coordinator, which owns all writes.
package commands

import (
	"context"

	"freight/internal/core/application/lifecycle"
	"freight/internal/core/domain/model/delivery"
)

// Coordinator ports used by the command handlers. *lifecycle.Client
// implements all of them.
type (
	// DeliveryStarter starts the coordinator of a new delivery.
	DeliveryStarter interface {
		StartDelivery(ctx context.Context, input lifecycle.Input) (delivery.Snapshot, error)
	}

	// LocationUpdater forwards a reported position to a running coordinator.
	LocationUpdater interface {
		UpdateLocation(ctx context.Context, id, location string) error
	}

	// DeliveryCompleter asks a running coordinator to finish its delivery.
	DeliveryCompleter interface {
		MarkDelivered(ctx context.Context, id string) error
	}
)
