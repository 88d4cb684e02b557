package commands

import (
	"context"
	"errors"

	"freight/internal/core/domain/model/delivery"
	"freight/internal/core/domain/model/kernel"
	"freight/internal/workflow"
)

// DeliveryReader reads the stored mirror of a delivery.
type DeliveryReader interface {
	Get(ctx context.Context, id kernel.UUID) (*delivery.Delivery, error)
}

// MarkDeliveredCommandHandler completes a delivery. Completing an already
// delivered delivery is a no-op, also after its coordinator has finished.
//
// Example:
//
//	handler := NewMarkDeliveredCommandHandler(client, deliveryRepo)
//	cmd, _ := NewMarkDeliveredCommand(deliveryID)
//	if err := handler.Handle(ctx, cmd); err != nil {
//	    return err
//	}
type MarkDeliveredCommandHandler struct {
	completer DeliveryCompleter
	reader    DeliveryReader
}

// NewMarkDeliveredCommandHandler creates a handler that completes a
// delivery through its coordinator.
func NewMarkDeliveredCommandHandler(completer DeliveryCompleter, reader DeliveryReader) MarkDeliveredCommandHandler {
	return MarkDeliveredCommandHandler{completer: completer, reader: reader}
}

// Handle signals markDelivered. A delivery whose coordinator already ended
// is looked up in the store so repeated calls stay idempotent.
func (h MarkDeliveredCommandHandler) Handle(ctx context.Context, cmd MarkDeliveredCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	err := h.completer.MarkDelivered(ctx, cmd.DeliveryID().String())
	if !errors.Is(err, workflow.ErrRunNotFound) {
		return err
	}

	// No live coordinator: fine if the stored record says it is done.
	stored, getErr := h.reader.Get(ctx, cmd.DeliveryID())
	if getErr != nil {
		return errors.Join(err, getErr)
	}
	if stored.IsDelivered() {
		return nil
	}
	return err
}
