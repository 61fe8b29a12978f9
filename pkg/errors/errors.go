package errors

import (
	"errors"
	"fmt"
)

// Sentinels for domain errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation error")
	ErrUnavailable = errors.New("service unavailable")

	// ErrDuplicateCall reports a second non-ended call for the same handle.
	ErrDuplicateCall = fmt.Errorf("duplicate call: %w", ErrConflict)
	// ErrInvalidTransition reports a state change the call lifecycle does not allow.
	ErrInvalidTransition = fmt.Errorf("invalid transition: %w", ErrConflict)
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
