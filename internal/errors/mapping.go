package errors

import (
	"errors"

	"github.com/Impto-dev/license-bot/internal/backup"
	"github.com/Impto-dev/license-bot/internal/license"
)

// FromDomain maps engine and backup sentinel errors to API responses.
// Anything unrecognized is a storage or internal failure and collapses to
// the generic internal error.
func FromDomain(err error) *APIError {
	switch {
	case errors.Is(err, license.ErrNotFound):
		return ErrLicenseNotFound
	case errors.Is(err, license.ErrDuplicateKey):
		return ErrDuplicateKey
	case errors.Is(err, license.ErrAlreadyAssigned):
		return ErrAlreadyAssigned
	case errors.Is(err, license.ErrInactive):
		return ErrLicenseInactive
	case errors.Is(err, license.ErrExpired):
		return ErrLicenseExpired
	case errors.Is(err, backup.ErrSnapshotNotFound):
		return ErrSnapshotNotFound
	default:
		return ErrInternalServer
	}
}
