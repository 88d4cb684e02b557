// Package guard detects structs that bypassed their constructor.
package guard

import "errors"

// ErrDefaultConstructorGuard is returned by Validate when the caller does not
// supply its own error.
var ErrDefaultConstructorGuard = errors.New("object must be created via its constructor")

// ConstructorGuard is embedded into value objects, commands and queries. Its
// zero value reports "not constructed", so a struct literal that skipped the
// constructor fails Validate.
//
// Example:
//
//	type UpdateLocationCommand struct {
//	    deliveryID kernel.UUID
//	    location   string
//	    guard      guard.ConstructorGuard
//	}
//
//	func (c UpdateLocationCommand) Validate() error {
//	    return c.guard.Validate(ErrUpdateLocationCommandIsNotConstructed)
//	}
type ConstructorGuard struct {
	isConstructed bool
}

// NewConstructorGuard marks the owning struct as constructed.
func NewConstructorGuard() ConstructorGuard {
	return ConstructorGuard{isConstructed: true}
}

// Validate returns validationError (or ErrDefaultConstructorGuard when it is
// nil) if the guard was never constructed.
func (g ConstructorGuard) Validate(validationError error) error {
	if g.isConstructed {
		return nil
	}
	if validationError == nil {
		return ErrDefaultConstructorGuard
	}
	return validationError
}
