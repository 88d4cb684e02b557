package queries

import (
	"context"
	"errors"

	"freight/internal/core/domain/model/delivery"
	"freight/internal/core/domain/model/kernel"
	"freight/internal/workflow"
)

type (
	// LiveDeliveryReader queries a running coordinator.
	LiveDeliveryReader interface {
		GetDelivery(ctx context.Context, id string) (delivery.Snapshot, error)
	}

	// StoredDeliveryReader reads the persisted mirror.
	StoredDeliveryReader interface {
		Get(ctx context.Context, id kernel.UUID) (*delivery.Delivery, error)
	}
)

// GetDeliveryQueryHandler answers from the live coordinator and falls back
// to the deliveries table once the coordinator has finished.
type GetDeliveryQueryHandler struct {
	live   LiveDeliveryReader
	stored StoredDeliveryReader
}

// NewGetDeliveryQueryHandler creates a handler that asks the live coordinator
// first and falls back to the store.
func NewGetDeliveryQueryHandler(live LiveDeliveryReader, stored StoredDeliveryReader) GetDeliveryQueryHandler {
	return GetDeliveryQueryHandler{live: live, stored: stored}
}

// Handle returns the delivery snapshot or an errs.ObjectNotFoundError when
// the id is unknown to both sources.
func (h GetDeliveryQueryHandler) Handle(ctx context.Context, query GetDeliveryQuery) (delivery.Snapshot, error) {
	if err := query.Validate(); err != nil {
		return delivery.Snapshot{}, err
	}

	snapshot, err := h.live.GetDelivery(ctx, query.DeliveryID().String())
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, workflow.ErrRunNotFound) {
		return delivery.Snapshot{}, err
	}

	stored, err := h.stored.Get(ctx, query.DeliveryID())
	if err != nil {
		return delivery.Snapshot{}, err
	}
	return stored.Snapshot(), nil
}
