package lifecycle

import (
	"encoding/json"
	"errors"
	"strings"

	"freight/internal/core/domain/model/kernel"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"
)

const (
	// ArrivalThresholdSeconds is the remaining route duration at or below
	// which a location update counts as arrival.
	ArrivalThresholdSeconds int64 = 60

	// DefaultRotationCeiling is the number of location updates one run
	// handles before it continues as new.
	DefaultRotationCeiling = 100

	// DefaultNotifyThresholdSecs is the delay that triggers a notification
	// when a delivery does not specify its own.
	DefaultNotifyThresholdSecs int64 = 1800
)

// Signal names accepted by the coordinator.
const (
	SignalUpdateLocation = "updateLocation"
	SignalMarkDelivered  = "markDelivered"
)

// Input is what a coordinator run is started with. It is journaled as is and
// carried unchanged into every rotated run.
type Input struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Origin              string `json:"origin"`
	Destination         string `json:"destination"`
	ContactPhone        string `json:"contactPhone"`
	NotifyThresholdSecs int64  `json:"notifyThresholdSecs"`
	RotationCeiling     int    `json:"rotationCeiling"`
}

// Defaults fill the Input fields a caller left at zero.
type Defaults struct {
	NotifyThresholdSecs int64
	RotationCeiling     int
}

func (d Defaults) apply(in Input) Input {
	if in.NotifyThresholdSecs == 0 {
		in.NotifyThresholdSecs = d.NotifyThresholdSecs
	}
	if in.NotifyThresholdSecs == 0 {
		in.NotifyThresholdSecs = DefaultNotifyThresholdSecs
	}
	if in.RotationCeiling == 0 {
		in.RotationCeiling = d.RotationCeiling
	}
	if in.RotationCeiling == 0 {
		in.RotationCeiling = DefaultRotationCeiling
	}
	return in
}

// Validate checks the fields the coordinator itself relies on. Addresses
// and the phone number are validated by the createDelivery activity.
func (in Input) Validate() error {
	var errList []error

	if _, err := kernel.UUIDFromString(in.ID); err != nil {
		errList = append(errList, err)
	}
	if strings.TrimSpace(in.Name) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("name"))
	}
	if strings.TrimSpace(in.Origin) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("origin"))
	}
	if strings.TrimSpace(in.Destination) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("destination"))
	}
	if strings.TrimSpace(in.ContactPhone) == "" {
		errList = append(errList, errs.NewValueIsRequiredError("contactPhone"))
	}
	if in.NotifyThresholdSecs < 0 {
		errList = append(errList, errs.NewValueIsOutOfRangeError("notifyThresholdSecs", in.NotifyThresholdSecs, 0, "unbounded"))
	}
	if in.RotationCeiling < 1 {
		errList = append(errList, errs.NewValueIsOutOfRangeError("rotationCeiling", in.RotationCeiling, 1, "unbounded"))
	}

	return errors.Join(errList...)
}

// NewFactory returns the workflow.Factory the engine uses to build a
// coordinator from a journaled Input.
func NewFactory(defaults Defaults) workflow.Factory {
	return func(raw json.RawMessage) (workflow.Workflow, error) {
		var in Input
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, workflow.NewNonRetryableError(errs.NewValueIsInvalidErrorWithCause("input", err))
		}

		in = defaults.apply(in)
		if err := in.Validate(); err != nil {
			return nil, err
		}

		return NewCoordinator(in), nil
	}
}
