// Package kernel holds the value objects shared by the freight domain:
// identifiers, postal addresses and contact phone numbers.
//
// Every value object is immutable, validated by its constructor and carries
// a guard so that a zero value is rejected by Validate.
package kernel
