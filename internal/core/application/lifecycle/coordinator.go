package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"freight/internal/core/application/activities"
	"freight/internal/core/domain/model/delivery"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"
)

// Coordinator drives one delivery through its lifecycle. The engine calls
// Start and HandleSignal from a single goroutine; Query may run concurrently
// and only reads the mirror under mu.
type Coordinator struct {
	input Input

	// locationUpdates counts updateLocation signals this run handled
	// successfully.
	locationUpdates int

	mu     sync.RWMutex
	mirror *delivery.Delivery
}

var _ workflow.Workflow = (*Coordinator)(nil)

// NewCoordinator creates a coordinator for input. The mirror stays empty
// until Start has stored the delivery.
func NewCoordinator(input Input) *Coordinator {
	return &Coordinator{input: input}
}

// Start computes the initial route, stores the delivery and adopts the
// stored record as the mirror. On a rotated run the record already exists,
// so the stored baseline and notification state win over the fresh values.
func (c *Coordinator) Start(ctx context.Context, exec workflow.Executor) (workflow.Directive, error) {
	var route activities.CalculateRouteOutput
	if err := exec.Execute(ctx, activities.CalculateRouteName, activities.CalculateRouteInput{
		Origin:      c.input.Origin,
		Destination: c.input.Destination,
	}, &route); err != nil {
		return workflow.Continue, fmt.Errorf("initial route: %w", err)
	}

	now, err := currentTime(ctx, exec)
	if err != nil {
		return workflow.Continue, err
	}

	var stored delivery.Snapshot
	if err = exec.Execute(ctx, activities.CreateDeliveryName, activities.CreateDeliveryInput{
		ID:                          c.input.ID,
		Name:                        c.input.Name,
		Origin:                      c.input.Origin,
		Destination:                 c.input.Destination,
		ContactPhone:                c.input.ContactPhone,
		Status:                      delivery.OnRoute,
		OriginalEtaEpochSecs:        now + route.RouteDurationSeconds,
		CurrentRouteDurationSeconds: route.RouteDurationSeconds,
	}, &stored); err != nil {
		return workflow.Continue, fmt.Errorf("create delivery: %w", err)
	}

	mirror, err := delivery.RestoreDelivery(stored)
	if err != nil {
		return workflow.Continue, workflow.NewNonRetryableError(err)
	}

	c.mu.Lock()
	c.mirror = mirror
	c.mu.Unlock()

	if mirror.IsDelivered() {
		return workflow.Complete, nil
	}
	return workflow.Continue, nil
}

// HandleSignal applies an updateLocation or markDelivered signal.
func (c *Coordinator) HandleSignal(
	ctx context.Context,
	exec workflow.Executor,
	signal workflow.Signal,
) (workflow.Directive, error) {
	switch signal.Name {
	case SignalUpdateLocation:
		var location string
		if err := json.Unmarshal(signal.Payload, &location); err != nil {
			return workflow.Continue, errs.NewValueIsInvalidErrorWithCause("location", err)
		}
		return c.updateLocation(ctx, exec, location)
	case SignalMarkDelivered:
		return c.markDelivered(ctx, exec)
	default:
		return workflow.Continue, errs.NewValueIsInvalidErrorWithCause(
			"signal", fmt.Errorf("unknown signal %q", signal.Name))
	}
}

// Query returns the current snapshot of the mirror.
func (c *Coordinator) Query() any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.mirror == nil {
		return delivery.Snapshot{}
	}
	return c.mirror.Snapshot()
}

func (c *Coordinator) updateLocation(
	ctx context.Context,
	exec workflow.Executor,
	location string,
) (workflow.Directive, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return workflow.Continue, errs.NewValueIsRequiredError("location")
	}
	if c.snapshot().Status.IsTerminal() {
		return workflow.Continue, delivery.ErrDeliveryIsCompleted
	}

	var route activities.CalculateRouteOutput
	if err := exec.Execute(ctx, activities.CalculateRouteName, activities.CalculateRouteInput{
		Origin:      location,
		Destination: c.input.Destination,
	}, &route); err != nil {
		return workflow.Continue, fmt.Errorf("route from %s: %w", location, err)
	}

	var persisted delivery.Snapshot
	if err := exec.Execute(ctx, activities.UpdateLocationName, activities.UpdateLocationInput{
		ID:                   c.input.ID,
		Location:             location,
		RouteDurationSeconds: route.RouteDurationSeconds,
	}, &persisted); err != nil {
		return workflow.Continue, fmt.Errorf("persist location: %w", err)
	}

	if err := c.mutate(func(d *delivery.Delivery) error {
		return d.RecordLocation(location, route.RouteDurationSeconds, persisted.UpdatedAt)
	}); err != nil {
		return workflow.Continue, err
	}

	if route.RouteDurationSeconds <= ArrivalThresholdSeconds {
		return c.complete(ctx, exec)
	}

	if err := c.notifyIfDelayed(ctx, exec); err != nil {
		return workflow.Continue, err
	}

	c.locationUpdates++
	if c.locationUpdates >= c.input.RotationCeiling {
		return workflow.ContinueAsNew, nil
	}
	return workflow.Continue, nil
}

// notifyIfDelayed sends the delay notification when it is due. The mirror
// is only marked notified after the SMS went out and the status was stored.
func (c *Coordinator) notifyIfDelayed(ctx context.Context, exec workflow.Executor) error {
	now, err := currentTime(ctx, exec)
	if err != nil {
		return err
	}

	c.mu.RLock()
	due := c.mirror.ShouldNotifyDelay(now, c.input.NotifyThresholdSecs)
	delay := c.mirror.DelaySeconds(now)
	c.mu.RUnlock()
	if !due {
		return nil
	}

	var composed activities.ComposeDelayMessageOutput
	if err = exec.Execute(ctx, activities.ComposeDelayMessageName, activities.ComposeDelayMessageInput{
		DelayMinutes: delayMinutes(delay),
		Origin:       c.input.Origin,
		Destination:  c.input.Destination,
	}, &composed); err != nil {
		return fmt.Errorf("compose delay message: %w", err)
	}

	if err = exec.Execute(ctx, activities.SendNotificationName, activities.SendNotificationInput{
		ID:           c.input.ID,
		ContactPhone: c.input.ContactPhone,
		Message:      composed.Message,
	}, nil); err != nil {
		return fmt.Errorf("send delay notification: %w", err)
	}

	notified := true
	if err = exec.Execute(ctx, activities.UpdateStatusName, activities.UpdateStatusInput{
		ID:       c.input.ID,
		Status:   delivery.Delayed,
		Notified: &notified,
	}, nil); err != nil {
		return fmt.Errorf("persist delayed status: %w", err)
	}

	return c.mutate(func(d *delivery.Delivery) error {
		return d.NotifyDelay(time.Unix(now, 0).UTC())
	})
}

func (c *Coordinator) markDelivered(ctx context.Context, exec workflow.Executor) (workflow.Directive, error) {
	if c.snapshot().Status.IsTerminal() {
		return workflow.Complete, nil
	}
	return c.complete(ctx, exec)
}

// complete stores the Delivered status, keeping the notified flag, and ends
// the run.
func (c *Coordinator) complete(ctx context.Context, exec workflow.Executor) (workflow.Directive, error) {
	now, err := currentTime(ctx, exec)
	if err != nil {
		return workflow.Continue, err
	}

	notified := c.snapshot().Notified
	if err = exec.Execute(ctx, activities.UpdateStatusName, activities.UpdateStatusInput{
		ID:       c.input.ID,
		Status:   delivery.Delivered,
		Notified: &notified,
	}, nil); err != nil {
		return workflow.Continue, fmt.Errorf("persist delivered status: %w", err)
	}

	if err = c.mutate(func(d *delivery.Delivery) error {
		return d.Complete(time.Unix(now, 0).UTC())
	}); err != nil {
		return workflow.Continue, err
	}
	return workflow.Complete, nil
}

func (c *Coordinator) snapshot() delivery.Snapshot {
	return c.Query().(delivery.Snapshot)
}

func (c *Coordinator) mutate(fn func(d *delivery.Delivery) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return fn(c.mirror)
}

func currentTime(ctx context.Context, exec workflow.Executor) (int64, error) {
	var out activities.CurrentTimeOutput
	if err := exec.Execute(ctx, activities.CurrentTimeName, struct{}{}, &out); err != nil {
		return 0, fmt.Errorf("current time: %w", err)
	}
	return out.EpochSecs, nil
}

// delayMinutes rounds a delay to the nearest whole minute.
func delayMinutes(delaySecs int64) int64 {
	return (delaySecs + 30) / 60
}
