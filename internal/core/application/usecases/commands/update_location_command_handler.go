package commands

import "context"

// UpdateLocationCommandHandler signals the delivery's coordinator and waits
// until the update was handled: the route is recalculated, the position is
// stored and a delay notification went out if one was due.
type UpdateLocationCommandHandler struct {
	updater LocationUpdater
}

// NewUpdateLocationCommandHandler creates a handler that forwards location
// updates to the coordinator.
func NewUpdateLocationCommandHandler(updater LocationUpdater) UpdateLocationCommandHandler {
	return UpdateLocationCommandHandler{updater: updater}
}

// Handle returns workflow.ErrRunNotFound when the delivery has no running
// coordinator, e.g. because it was already delivered.
func (h UpdateLocationCommandHandler) Handle(ctx context.Context, cmd UpdateLocationCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	return h.updater.UpdateLocation(ctx, cmd.DeliveryID().String(), cmd.Location().String())
}
