package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the ShopSphere auth client
var (
	// Session errors
	ErrNoSession = errors.New("no active session")

	// Authentication errors
	ErrAuthExpired = errors.New("authentication expired")
	ErrAuthInvalid = errors.New("authentication invalid")

	// Authorization errors
	ErrAccessDenied = errors.New("access denied")

	// Transport errors
	ErrTransient = errors.New("transient network error")

	// Input errors
	ErrValidation = errors.New("validation failed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
