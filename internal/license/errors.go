package license

import "errors"

// Sentinel errors returned by the lifecycle and renewal engines. Transport
// layers map these onto API error responses; none of them carry internal
// storage detail.
var (
	// ErrNotFound is returned when a key does not match any extant record.
	// Absence is an expected outcome of lookups, never a fatal condition.
	ErrNotFound = errors.New("license not found")

	// ErrDuplicateKey is returned when the store rejects a generated key
	// under the unique constraint. Callers retry generation.
	ErrDuplicateKey = errors.New("license key already exists")

	// ErrAlreadyAssigned is returned on self-redemption of a license owned
	// by a different user.
	ErrAlreadyAssigned = errors.New("license already assigned to another user")

	// ErrInactive is returned when a deactivated license is presented for
	// redemption.
	ErrInactive = errors.New("license has been deactivated")

	// ErrExpired is returned when an expired license is presented for
	// redemption.
	ErrExpired = errors.New("license has expired")
)
