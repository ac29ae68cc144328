// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common pipeline errors.
var (
	// File decoding errors.
	ErrInvalidFile   = errors.New("invalid file")
	ErrUnknownFormat = errors.New("no format handler recognizes this file")

	// Classification errors.
	ErrNotImplemented   = errors.New("not implemented")
	ErrBalanceViolation = errors.New("transaction does not balance")
	ErrBadDates         = errors.New("transaction date outside configured period")
	ErrUnrecognized     = errors.New("segment not recognized by any rule")

	// Oracle errors. A failed rate, VAT, stock or account lookup is fatal
	// for the run; the pipeline never substitutes a guessed value.
	ErrOracleFailure = errors.New("oracle lookup failed")

	// Process errors.
	ErrProcessNotFound = errors.New("process not found")
	ErrNotWaiting      = errors.New("process is not waiting for an answer")
	ErrCrashed         = errors.New("process has crashed")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user. Its
// UserMessage is the structured message surface of the module boundary;
// the wrapped error stays internal.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// InvalidFile wraps a file-level decode failure. The whole file is rejected;
// no partial decode is ever returned.
func InvalidFile(filename, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidFile, filename, reason)
}

// NotImplemented flags a recognized-but-unsupported format variant or asset
// code. Surfaced verbatim rather than approximated.
func NotImplemented(what string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, what)
}
