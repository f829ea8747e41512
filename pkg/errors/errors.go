package errors

import (
	"errors"
	"fmt"
)

// Generic errors

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a dependency is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Event pipeline errors

var (
	// ErrSchema indicates a malformed inbound payload. Rejected at the boundary, never retried.
	ErrSchema = errors.New("schema error")

	// ErrInvariantViolation indicates a programming bug (e.g. a second position for one event).
	// It aborts the offending event only.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrInvalidTransition indicates an illegal lifecycle transition
	ErrInvalidTransition = fmt.Errorf("%w: invalid lifecycle transition", ErrInvariantViolation)

	// ErrPositionExists indicates a position was already opened for the event
	ErrPositionExists = fmt.Errorf("%w: position already exists for event", ErrInvariantViolation)

	// ErrNotConfirmed indicates a position open was attempted without confirmation
	ErrNotConfirmed = fmt.Errorf("%w: event not confirmed", ErrInvariantViolation)

	// ErrPriceUnavailable indicates the price feed has no usable quote
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrNoPendingConfirmation indicates a confirmation arrived for an event nobody waits on
	ErrNoPendingConfirmation = errors.New("no pending confirmation")
)

// SchemaError describes which field of an inbound payload failed validation.
// errors.Is(err, ErrSchema) holds for every SchemaError.
type SchemaError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error: field '%s': %s", e.Field, e.Reason)
}

// Unwrap ties SchemaError to ErrSchema
func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// NewSchemaError creates a new schema error
func NewSchemaError(field, reason string) *SchemaError {
	return &SchemaError{Field: field, Reason: reason}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
