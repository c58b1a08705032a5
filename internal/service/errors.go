package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrUnauthorized means a missing, unknown or stale credential
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDeviceNotFound means the addressed device was never registered
	ErrDeviceNotFound = errors.New("device not found")
	// ErrValidation wraps a malformed request; the wrapped text is safe to show
	ErrValidation = errors.New("validation failed")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// deviceLookupError translates a repository miss into ErrDeviceNotFound
func deviceLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDeviceNotFound
	}
	return err
}
