package delivery

import (
	"fmt"

	"freight/internal/pkg/errs"
)

// Status is the position of a delivery in its lifecycle.
//
// The zero value Unknown is never persisted; it marks a Status that was not
// parsed or assigned.
type Status int

const (
	Unknown Status = iota
	OnRoute
	Delayed
	Delivered
)

var statusNames = map[Status]string{
	Unknown:   "UNKNOWN",
	OnRoute:   "ON_ROUTE",
	Delayed:   "DELAYED",
	Delivered: "DELIVERED",
}

// ParseStatus converts the wire form ("ON_ROUTE", "DELAYED", "DELIVERED")
// into a Status.
//
// Example:
//
//	s, err := delivery.ParseStatus("DELAYED")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(s == delivery.Delayed) // true
func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if status != Unknown && name == s {
			return status, nil
		}
	}
	return Unknown, errs.NewValueIsInvalidErrorWithCause("status", fmt.Errorf("unknown status %q", s))
}

// String returns the wire form of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[Unknown]
}

// Validate rejects Unknown and out of range values.
func (s Status) Validate() error {
	if s <= Unknown || s > Delivered {
		return errs.NewValueIsOutOfRangeError("status", int(s), int(OnRoute), int(Delivered))
	}
	return nil
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == Delivered
}

// Delay moves an active delivery to Delayed.
//
// Valid transitions:
//   - OnRoute -> Delayed
//   - Delayed -> Delayed
//
// Delivered and Unknown are rejected.
func (s Status) Delay() (Status, error) {
	if s != OnRoute && s != Delayed {
		return Unknown, errs.NewValueIsInvalidErrorWithCause(
			"status",
			fmt.Errorf("%s is not a valid status to delay", s),
		)
	}
	return Delayed, nil
}

// Deliver moves an active delivery to the terminal Delivered status.
//
// Valid transitions:
//   - OnRoute -> Delivered
//   - Delayed -> Delivered
//
// Completing an already delivered shipment is an error here; callers that
// want idempotent completion check IsTerminal first.
func (s Status) Deliver() (Status, error) {
	if s != OnRoute && s != Delayed {
		return Unknown, errs.NewValueIsInvalidErrorWithCause(
			"status",
			fmt.Errorf("%s is not a valid status to deliver", s),
		)
	}
	return Delivered, nil
}

// MarshalText encodes the status by name so journals and JSON responses do
// not depend on the numeric order of the constants.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	if string(text) == statusNames[Unknown] {
		*s = Unknown
		return nil
	}

	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
