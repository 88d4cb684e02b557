package http

import "freight/internal/core/domain/model/delivery"

// CreateDeliveryRequest is the body of POST /api/v1/deliveries. Length and
// format rules beyond presence are enforced by the command constructor.
// Leaving notifyThresholdSecs out selects the configured default; an
// explicit value must be positive.
type CreateDeliveryRequest struct {
	Name                string `json:"name" validate:"required"`
	Origin              string `json:"origin" validate:"required"`
	Destination         string `json:"destination" validate:"required"`
	ContactPhone        string `json:"contactPhone" validate:"required"`
	NotifyThresholdSecs *int64 `json:"notifyThresholdSecs" validate:"omitempty,gt=0"`
}

// UpdateLocationRequest is the body of PATCH /api/v1/deliveries/:id/location.
type UpdateLocationRequest struct {
	Location string `json:"location" validate:"required"`
}

type CreateDeliveryResponse struct {
	Success    bool              `json:"success"`
	WorkflowID string            `json:"workflowId"`
	Delivery   delivery.Snapshot `json:"delivery"`
}

type DeliveryResponse struct {
	Success  bool              `json:"success"`
	Delivery delivery.Snapshot `json:"delivery"`
}

type DeliveriesResponse struct {
	Success    bool                `json:"success"`
	Deliveries []delivery.Snapshot `json:"deliveries"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
