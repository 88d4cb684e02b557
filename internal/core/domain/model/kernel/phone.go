package kernel

import (
	"errors"
	"regexp"

	"freight/internal/pkg/errs"
	"freight/internal/pkg/guard"
)

var (
	// ErrPhoneIsNotConstructed is returned by Validate for a zero Phone.
	ErrPhoneIsNotConstructed = errs.NewValueIsRequiredError("Phone must be created via NewPhone")

	phoneNoise = regexp.MustCompile(`[^\d+]`)
	e164       = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// Phone is a contact number in E.164 form, the format SMS providers expect.
type Phone struct {
	value string
	guard guard.ConstructorGuard
}

// NewPhone strips every character other than digits and '+' and then
// requires E.164.
//
// Example:
//
//	p, err := kernel.NewPhone("+1 (415) 555-0100")
//	// p.String() == "+14155550100"
func NewPhone(raw string) (Phone, error) {
	if raw == "" {
		return Phone{}, errs.NewValueIsRequiredError("contactPhone")
	}

	normalized := phoneNoise.ReplaceAllString(raw, "")
	if !e164.MatchString(normalized) {
		return Phone{}, errs.NewValueIsInvalidErrorWithCause(
			"contactPhone",
			errors.New("phone number must be in E.164 format, e.g. +14155550100"),
		)
	}

	return Phone{value: normalized, guard: guard.NewConstructorGuard()}, nil
}

// String returns the number in E.164 form.
func (p Phone) String() string {
	return p.value
}

// Validate reports whether the phone was built by NewPhone.
func (p Phone) Validate() error {
	return p.guard.Validate(ErrPhoneIsNotConstructed)
}
