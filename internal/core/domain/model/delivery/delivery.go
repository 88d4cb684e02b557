package delivery

import (
	"errors"
	"time"

	"freight/internal/core/domain/model/kernel"
	"freight/internal/pkg/errs"
)

var (
	// ErrDeliveryIsNotConstructed is returned when a Delivery was not created
	// through NewDelivery or RestoreDelivery.
	ErrDeliveryIsNotConstructed = errors.New("Delivery must be created via NewDelivery or RestoreDelivery")

	// ErrDeliveryIsCompleted is returned by mutations attempted after the
	// delivery reached Delivered.
	ErrDeliveryIsCompleted = errors.New("delivery is already delivered")

	// ErrAlreadyNotified is returned by NotifyDelay when the recipient was
	// told about a delay before.
	ErrAlreadyNotified = errors.New("delay notification was already sent")
)

// Delivery is the aggregate root of a single freight shipment.
//
// Delivery follows these invariants:
//   - id, name, origin, destination, contact phone and createdAt never change
//   - originalEtaEpochSecs is the baseline against which delays are measured
//     and is never overwritten
//   - notified is set once, together with the Delayed status
//   - Delivered is terminal
//
// Fields are private; state changes go through RecordLocation, NotifyDelay
// and Complete.
type Delivery struct {
	id           kernel.UUID
	name         string
	origin       string
	destination  string
	contactPhone string

	status Status

	// originalEtaEpochSecs is creation time plus the first route duration.
	originalEtaEpochSecs int64

	// currentRouteDurationSeconds is the route duration from currentLocation.
	currentRouteDurationSeconds int64

	currentLocation string
	notified        bool

	createdAt time.Time
	updatedAt time.Time

	isConstructed bool
}

// NewDelivery creates an ON_ROUTE delivery positioned at its origin.
//
// Parameters:
//   - id: delivery identifier, also the lifecycle workflow id
//   - name: human readable label (required)
//   - origin, destination: validated addresses
//   - contactPhone: recipient of delay notifications
//   - originalEtaEpochSecs: creation time plus the initial route duration
//   - routeDurationSeconds: initial route duration, must not be negative
//   - now: creation timestamp
//
// Example:
//
//	origin, _ := kernel.NewAddress("origin", "Origin City 12345")
//	dest, _ := kernel.NewAddress("destination", "Destination City 67890")
//	phone, _ := kernel.NewPhone("+14155550100")
//	d, err := delivery.NewDelivery(kernel.NewUUID(), "Pallets", origin, dest, phone,
//	    1_700_003_600, 3600, time.Unix(1_700_000_000, 0))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(d.Status(), d.CurrentLocation()) // ON_ROUTE Origin City 12345
func NewDelivery(
	id kernel.UUID,
	name string,
	origin, destination kernel.Address,
	contactPhone kernel.Phone,
	originalEtaEpochSecs, routeDurationSeconds int64,
	now time.Time,
) (*Delivery, error) {
	d := &Delivery{
		status:        OnRoute,
		notified:      false,
		createdAt:     now,
		updatedAt:     now,
		isConstructed: true,
	}

	if err := errors.Join(
		d.setID(id),
		d.setName(name),
		d.setRoute(origin, destination),
		d.setContactPhone(contactPhone),
		d.setOriginalEta(originalEtaEpochSecs),
		d.setRouteDuration(routeDurationSeconds),
	); err != nil {
		return nil, err
	}

	return d, nil
}

// RestoreDelivery rebuilds a Delivery from a snapshot previously produced by
// Snapshot, typically read back from storage or from the activity journal.
// Only the identifier and status are checked: a stored record is trusted.
func RestoreDelivery(s Snapshot) (*Delivery, error) {
	id, err := kernel.UUIDFromString(s.ID)
	if err != nil {
		return nil, err
	}
	if err = s.Status.Validate(); err != nil {
		return nil, err
	}

	return &Delivery{
		id:                          id,
		name:                        s.Name,
		origin:                      s.Origin,
		destination:                 s.Destination,
		contactPhone:                s.ContactPhone,
		status:                      s.Status,
		originalEtaEpochSecs:        s.OriginalEtaEpochSecs,
		currentRouteDurationSeconds: s.CurrentRouteDurationSeconds,
		currentLocation:             s.CurrentLocation,
		notified:                    s.Notified,
		createdAt:                   s.CreatedAt,
		updatedAt:                   s.UpdatedAt,
		isConstructed:               true,
	}, nil
}

// Validate ensures the Delivery was built by NewDelivery or RestoreDelivery.
func (d *Delivery) Validate() error {
	if d == nil || !d.isConstructed {
		return ErrDeliveryIsNotConstructed
	}
	return nil
}

// ID returns the delivery id, which is also the workflow id.
func (d *Delivery) ID() kernel.UUID { return d.id }

// Name returns the shipment name.
func (d *Delivery) Name() string { return d.name }

// Origin returns the pickup address.
func (d *Delivery) Origin() string { return d.origin }

// Destination returns the drop-off address.
func (d *Delivery) Destination() string { return d.destination }

// ContactPhone returns the E.164 number delay notices go to.
func (d *Delivery) ContactPhone() string { return d.contactPhone }

// Status returns the lifecycle status.
func (d *Delivery) Status() Status { return d.status }

// OriginalEtaEpochSecs returns the baseline ETA fixed at creation.
func (d *Delivery) OriginalEtaEpochSecs() int64 { return d.originalEtaEpochSecs }

// CurrentRouteDurationSeconds returns the latest remaining driving time.
func (d *Delivery) CurrentRouteDurationSeconds() int64 { return d.currentRouteDurationSeconds }

// CurrentLocation returns the last reported location.
func (d *Delivery) CurrentLocation() string { return d.currentLocation }

// Notified reports whether the delay notice went out.
func (d *Delivery) Notified() bool { return d.notified }

// CreatedAt returns the creation time.
func (d *Delivery) CreatedAt() time.Time { return d.createdAt }

// UpdatedAt returns the time of the last change.
func (d *Delivery) UpdatedAt() time.Time { return d.updatedAt }

// IsDelivered reports whether the delivery reached its terminal status.
func (d *Delivery) IsDelivered() bool {
	return d.status.IsTerminal()
}

// DelaySeconds returns how far the projected arrival (now plus the current
// route duration) is behind the original ETA. Negative means ahead of
// schedule.
//
// Example:
//
//	// created at 1_700_000_000 with a 3600s route: ETA 1_700_003_600
//	// at 1_700_000_400 the route is 5200s: 1_700_005_600 - 1_700_003_600
//	d.DelaySeconds(1_700_000_400) // 2000
func (d *Delivery) DelaySeconds(nowEpochSecs int64) int64 {
	return nowEpochSecs + d.currentRouteDurationSeconds - d.originalEtaEpochSecs
}

// ShouldNotifyDelay reports whether a delay notification is due: the delay
// exceeds thresholdSecs, nobody was notified yet and the delivery is still
// active.
func (d *Delivery) ShouldNotifyDelay(nowEpochSecs, thresholdSecs int64) bool {
	return !d.notified &&
		!d.IsDelivered() &&
		d.DelaySeconds(nowEpochSecs) > thresholdSecs
}

// RecordLocation stores a new reported position together with the route
// duration computed from it. The baseline ETA is left untouched.
//
// Returns ErrDeliveryIsCompleted once the delivery is Delivered, and an
// out of range error for a negative duration.
func (d *Delivery) RecordLocation(location string, routeDurationSeconds int64, at time.Time) error {
	if d.IsDelivered() {
		return ErrDeliveryIsCompleted
	}
	if location == "" {
		return errs.NewValueIsRequiredError("location")
	}
	if err := d.setRouteDuration(routeDurationSeconds); err != nil {
		return err
	}

	d.currentLocation = location
	d.updatedAt = at
	return nil
}

// NotifyDelay records that the recipient was told about a delay and moves
// the delivery to Delayed. It is the only way notified becomes true.
//
// Example:
//
//	if d.ShouldNotifyDelay(now, threshold) {
//	    // send the SMS, persist, then:
//	    if err := d.NotifyDelay(at); err != nil {
//	        return err
//	    }
//	}
func (d *Delivery) NotifyDelay(at time.Time) error {
	if d.notified {
		return ErrAlreadyNotified
	}

	status, err := d.status.Delay()
	if err != nil {
		return err
	}

	d.status = status
	d.notified = true
	d.updatedAt = at
	return nil
}

// Complete moves the delivery to Delivered. The notified flag is preserved.
func (d *Delivery) Complete(at time.Time) error {
	if d.IsDelivered() {
		return ErrDeliveryIsCompleted
	}

	status, err := d.status.Deliver()
	if err != nil {
		return err
	}

	d.status = status
	d.updatedAt = at
	return nil
}

// Snapshot returns a detached copy of the aggregate state.
func (d *Delivery) Snapshot() Snapshot {
	return Snapshot{
		ID:                          d.id.String(),
		Name:                        d.name,
		Origin:                      d.origin,
		Destination:                 d.destination,
		ContactPhone:                d.contactPhone,
		Status:                      d.status,
		OriginalEtaEpochSecs:        d.originalEtaEpochSecs,
		CurrentRouteDurationSeconds: d.currentRouteDurationSeconds,
		CurrentLocation:             d.currentLocation,
		Notified:                    d.notified,
		CreatedAt:                   d.createdAt,
		UpdatedAt:                   d.updatedAt,
	}
}

func (d *Delivery) setID(id kernel.UUID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	d.id = id
	return nil
}

func (d *Delivery) setName(name string) error {
	if name == "" {
		return errs.NewValueIsRequiredError("name")
	}
	d.name = name
	return nil
}

func (d *Delivery) setRoute(origin, destination kernel.Address) error {
	if err := errors.Join(origin.Validate(), destination.Validate()); err != nil {
		return err
	}
	d.origin = origin.String()
	d.destination = destination.String()
	d.currentLocation = origin.String()
	return nil
}

func (d *Delivery) setContactPhone(phone kernel.Phone) error {
	if err := phone.Validate(); err != nil {
		return err
	}
	d.contactPhone = phone.String()
	return nil
}

func (d *Delivery) setOriginalEta(eta int64) error {
	if eta <= 0 {
		return errs.NewValueIsInvalidError("originalEtaEpochSecs")
	}
	d.originalEtaEpochSecs = eta
	return nil
}

func (d *Delivery) setRouteDuration(seconds int64) error {
	if seconds < 0 {
		return errs.NewValueIsOutOfRangeError("routeDurationSeconds", seconds, 0, "unbounded")
	}
	d.currentRouteDurationSeconds = seconds
	return nil
}
