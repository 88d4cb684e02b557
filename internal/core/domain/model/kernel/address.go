package kernel

import (
	"strings"
	"unicode/utf8"

	"freight/internal/pkg/errs"
	"freight/internal/pkg/guard"
)

const (
	// MinAddressLength is the shortest free-form address the routing
	// provider reliably geocodes.
	MinAddressLength = 10
	// MaxAddressLength bounds what is stored and sent to the routing provider.
	MaxAddressLength = 500
)

// ErrAddressIsNotConstructed is returned by Validate for a zero Address.
var ErrAddressIsNotConstructed = errs.NewValueIsRequiredError("Address must be created via NewAddress")

// Address is a free-form postal address or place description, as accepted by
// the routing provider ("1600 Amphitheatre Pkwy, Mountain View, CA").
// Surrounding whitespace is trimmed; the length is counted in runes.
type Address struct {
	value string
	guard guard.ConstructorGuard
}

// NewAddress validates and trims a free-form address. paramName is used in
// the returned error so callers can tell origin from destination.
//
// Example:
//
//	origin, err := kernel.NewAddress("origin", "  221B Baker Street, London ")
//	// origin.String() == "221B Baker Street, London"
func NewAddress(paramName, value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Address{}, errs.NewValueIsRequiredError(paramName)
	}

	length := utf8.RuneCountInString(trimmed)
	if length < MinAddressLength || length > MaxAddressLength {
		return Address{}, errs.NewValueIsOutOfRangeError(paramName+" length", length, MinAddressLength, MaxAddressLength)
	}

	return Address{value: trimmed, guard: guard.NewConstructorGuard()}, nil
}

// String returns the trimmed address.
func (a Address) String() string {
	return a.value
}

// Validate reports whether the address was built by NewAddress.
func (a Address) Validate() error {
	return a.guard.Validate(ErrAddressIsNotConstructed)
}
