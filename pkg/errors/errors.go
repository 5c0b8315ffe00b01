package errors

import (
	"errors"
	"fmt"
)

// Standard errors
var (
	// ErrNotFound is returned when a record that must exist is not found.
	// Absence of an optional record (e.g. no state saved for an agent yet)
	// is reported as a nil result instead, not as this error.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidArgument is returned when the input is malformed, including
	// vectors whose length does not match the configured dimension.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIO is returned when the backing storage fails.
	ErrIO = errors.New("storage i/o error")

	// ErrInternal is returned for unclassified failures.
	ErrInternal = errors.New("internal error")

	// ErrOutOfMemory is returned when an allocation limit is exceeded.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrConflict is returned when a state save is rejected because the
	// caller's expected version is stale.
	ErrConflict = errors.New("version conflict")

	// ErrChecksumMismatch is returned when state data fails checksum
	// validation after a load or decompress. Corruption is surfaced, never
	// silently repaired.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrInternal)
)

// Wrap wraps an error with additional context
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience function that wraps errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target, and if so, sets
// target to that error value and returns true. Otherwise, it returns false.
// This is a convenience function that wraps errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
