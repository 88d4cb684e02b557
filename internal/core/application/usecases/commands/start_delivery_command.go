package commands

import (
	"errors"
	"strings"

	"freight/internal/core/domain/model/kernel"
	"freight/internal/pkg/errs"
	"freight/internal/pkg/guard"
)

var ErrStartDeliveryCommandIsNotConstructed = errors.New(
	"StartDeliveryCommand must be created via NewStartDeliveryCommand constructor",
)

// StartDeliveryCommand represents a request to register a new delivery and
// start tracking it.
//
// Example:
//
//	cmd, err := NewStartDeliveryCommand(
//	    kernel.NewUUID(), "Pallets", "Origin City 12345", "Dest City 67890", "+1 415 555 0100", 0,
//	)
//	if err != nil {
//	    return fmt.Errorf("invalid delivery data: %w", err)
//	}
//
//	handler := NewStartDeliveryCommandHandler(client)
//	created, err := handler.Handle(ctx, cmd)
//	if err != nil {
//	    return fmt.Errorf("failed to start delivery: %w", err)
//	}
//	fmt.Printf("Delivery %s is %s\n", created.ID, created.Status)
type StartDeliveryCommand struct { //nolint:recvcheck //using for validation
	deliveryID          kernel.UUID
	name                string
	origin              kernel.Address
	destination         kernel.Address
	contactPhone        kernel.Phone
	notifyThresholdSecs int64

	guard guard.ConstructorGuard
}

// NewStartDeliveryCommand validates every field up front: addresses must be
// between kernel.MinAddressLength and kernel.MaxAddressLength characters,
// the phone must normalize to E.164 and the threshold must not be negative.
// A zero threshold selects the configured default.
func NewStartDeliveryCommand(
	deliveryID kernel.UUID,
	name, origin, destination, contactPhone string,
	notifyThresholdSecs int64,
) (StartDeliveryCommand, error) {
	cmd := StartDeliveryCommand{
		guard: guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		cmd.setDeliveryID(deliveryID),
		cmd.setName(name),
		cmd.setRoute(origin, destination),
		cmd.setContactPhone(contactPhone),
		cmd.setNotifyThreshold(notifyThresholdSecs),
	); err != nil {
		return StartDeliveryCommand{}, err
	}

	return cmd, nil
}

// Validate ensures the command was created through the constructor.
func (c StartDeliveryCommand) Validate() error {
	return c.guard.Validate(ErrStartDeliveryCommandIsNotConstructed)
}

// DeliveryID returns the id the coordinator runs under.
func (c StartDeliveryCommand) DeliveryID() kernel.UUID { return c.deliveryID }

// Name returns the shipment name.
func (c StartDeliveryCommand) Name() string { return c.name }

// Origin returns the validated pickup address.
func (c StartDeliveryCommand) Origin() kernel.Address { return c.origin }

// Destination returns the validated drop-off address.
func (c StartDeliveryCommand) Destination() kernel.Address { return c.destination }

// ContactPhone returns the normalized phone.
func (c StartDeliveryCommand) ContactPhone() kernel.Phone { return c.contactPhone }

// NotifyThresholdSecs returns the delay threshold, zero for the default.
func (c StartDeliveryCommand) NotifyThresholdSecs() int64 { return c.notifyThresholdSecs }

func (c *StartDeliveryCommand) setDeliveryID(id kernel.UUID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	c.deliveryID = id
	return nil
}

func (c *StartDeliveryCommand) setName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.NewValueIsRequiredError("name")
	}

	c.name = name
	return nil
}

func (c *StartDeliveryCommand) setRoute(origin, destination string) error {
	from, fromErr := kernel.NewAddress("origin", origin)
	to, toErr := kernel.NewAddress("destination", destination)
	if err := errors.Join(fromErr, toErr); err != nil {
		return err
	}

	c.origin = from
	c.destination = to
	return nil
}

func (c *StartDeliveryCommand) setContactPhone(raw string) error {
	phone, err := kernel.NewPhone(raw)
	if err != nil {
		return err
	}

	c.contactPhone = phone
	return nil
}

func (c *StartDeliveryCommand) setNotifyThreshold(secs int64) error {
	if secs < 0 {
		return errs.NewValueIsOutOfRangeError("notifyThresholdSecs", secs, 0, "unbounded")
	}

	c.notifyThresholdSecs = secs
	return nil
}
