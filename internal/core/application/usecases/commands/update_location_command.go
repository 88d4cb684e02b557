package commands

import (
	"errors"

	"freight/internal/core/domain/model/kernel"
	"freight/internal/pkg/guard"
)

var ErrUpdateLocationCommandIsNotConstructed = errors.New(
	"UpdateLocationCommand must be created via NewUpdateLocationCommand constructor",
)

// UpdateLocationCommand reports the current position of a delivery.
// The location obeys the same length rules as origin and destination since
// it becomes the origin of the next route lookup.
//
// Example:
//
//	cmd, err := NewUpdateLocationCommand(deliveryID, "Midpoint City, CA")
//	if err != nil {
//	    return err
//	}
//	err = NewUpdateLocationCommandHandler(client).Handle(ctx, cmd)
type UpdateLocationCommand struct { //nolint:recvcheck //using for validation
	deliveryID kernel.UUID
	location   kernel.Address

	guard guard.ConstructorGuard
}

// NewUpdateLocationCommand creates a command after validating location as an
// address.
func NewUpdateLocationCommand(deliveryID kernel.UUID, location string) (UpdateLocationCommand, error) {
	cmd := UpdateLocationCommand{
		guard: guard.NewConstructorGuard(),
	}

	if err := errors.Join(
		cmd.setDeliveryID(deliveryID),
		cmd.setLocation(location),
	); err != nil {
		return UpdateLocationCommand{}, err
	}

	return cmd, nil
}

// Validate ensures the command was created through the constructor.
func (c UpdateLocationCommand) Validate() error {
	return c.guard.Validate(ErrUpdateLocationCommandIsNotConstructed)
}

// DeliveryID returns the delivery being moved.
func (c UpdateLocationCommand) DeliveryID() kernel.UUID {
	return c.deliveryID
}

// Location returns the reported location.
func (c UpdateLocationCommand) Location() kernel.Address {
	return c.location
}

func (c *UpdateLocationCommand) setDeliveryID(id kernel.UUID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	c.deliveryID = id
	return nil
}

func (c *UpdateLocationCommand) setLocation(raw string) error {
	location, err := kernel.NewAddress("location", raw)
	if err != nil {
		return err
	}

	c.location = location
	return nil
}
