package lifecycle

import (
	"context"
	"fmt"

	"freight/internal/core/domain/model/delivery"
	"freight/internal/pkg/errs"
)

// Runtime is the part of the workflow engine the client needs.
type Runtime interface {
	Start(ctx context.Context, workflowID string, input any) error
	Signal(ctx context.Context, workflowID, name string, payload any) error
	Query(ctx context.Context, workflowID string) (any, error)
}

// Client is the typed entry point to coordinators. Delivery ids are used as
// workflow ids.
type Client struct {
	runtime  Runtime
	defaults Defaults
}

// NewClient creates a client that starts and signals coordinators on
// runtime.
func NewClient(runtime Runtime, defaults Defaults) (*Client, error) {
	if runtime == nil {
		return nil, errs.NewValueIsRequiredError("runtime")
	}
	return &Client{runtime: runtime, defaults: defaults}, nil
}

// StartDelivery starts a coordinator and returns the delivery as created.
// It returns once the startup sequence has finished.
func (c *Client) StartDelivery(ctx context.Context, input Input) (delivery.Snapshot, error) {
	input = c.defaults.apply(input)
	if err := input.Validate(); err != nil {
		return delivery.Snapshot{}, err
	}

	if err := c.runtime.Start(ctx, input.ID, input); err != nil {
		return delivery.Snapshot{}, err
	}
	return c.GetDelivery(ctx, input.ID)
}

// UpdateLocation signals a new location and waits until it is handled.
func (c *Client) UpdateLocation(ctx context.Context, id, location string) error {
	return c.runtime.Signal(ctx, id, SignalUpdateLocation, location)
}

// MarkDelivered signals completion and waits until it is handled.
func (c *Client) MarkDelivered(ctx context.Context, id string) error {
	return c.runtime.Signal(ctx, id, SignalMarkDelivered, struct{}{})
}

// GetDelivery returns the live coordinator's snapshot.
func (c *Client) GetDelivery(ctx context.Context, id string) (delivery.Snapshot, error) {
	result, err := c.runtime.Query(ctx, id)
	if err != nil {
		return delivery.Snapshot{}, err
	}

	snapshot, ok := result.(delivery.Snapshot)
	if !ok {
		return delivery.Snapshot{}, fmt.Errorf("unexpected query result %T for %s", result, id)
	}
	return snapshot, nil
}
