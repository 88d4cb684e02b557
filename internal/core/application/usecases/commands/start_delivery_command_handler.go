package commands

import (
	"context"

	"freight/internal/core/application/lifecycle"
	"freight/internal/core/domain/model/delivery"
)

// StartDeliveryCommandHandler starts the lifecycle coordinator of a new
// delivery. The coordinator computes the initial route, stores the record
// and only then reports back, so the returned snapshot is already persisted.
//
// Example:
//
//	handler := NewStartDeliveryCommandHandler(client)
//	created, err := handler.Handle(ctx, cmd)
//	if errors.Is(err, workflow.ErrAlreadyRunning) {
//	    return echo.NewHTTPError(http.StatusConflict, err.Error())
//	}
type StartDeliveryCommandHandler struct {
	starter DeliveryStarter
}

// NewStartDeliveryCommandHandler creates a handler that starts a coordinator
// per delivery.
func NewStartDeliveryCommandHandler(starter DeliveryStarter) StartDeliveryCommandHandler {
	return StartDeliveryCommandHandler{starter: starter}
}

// Handle returns the delivery as the coordinator stored it.
func (h StartDeliveryCommandHandler) Handle(ctx context.Context, cmd StartDeliveryCommand) (delivery.Snapshot, error) {
	if err := cmd.Validate(); err != nil {
		return delivery.Snapshot{}, err
	}

	return h.starter.StartDelivery(ctx, lifecycle.Input{
		ID:                  cmd.DeliveryID().String(),
		Name:                cmd.Name(),
		Origin:              cmd.Origin().String(),
		Destination:         cmd.Destination().String(),
		ContactPhone:        cmd.ContactPhone().String(),
		NotifyThresholdSecs: cmd.NotifyThresholdSecs(),
	})
}
