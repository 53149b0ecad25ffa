// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Sentinel errors for all error conditions
// - The MalformedInputError type raised by the series engine
// - Error category checking functions
// - Error to HTTP status mapping
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound      = errors.New("not found")
	ErrUnknownKind   = errors.New("unknown dataset kind")
	ErrUnknownSeries = errors.New("unknown series")

	// Validation errors
	ErrMalformedInput = errors.New("malformed input")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingField   = errors.New("missing required field")

	// Source errors
	ErrSourceUnavailable = errors.New("tick source unavailable")
	ErrTimeout           = errors.New("timeout")

	// Persistence errors
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// State errors
	ErrClosed     = errors.New("closed")
	ErrNotRunning = errors.New("not running")
	ErrRunning    = errors.New("already running")

	ErrInternal = errors.New("internal error")
)

// ============================================================================
// MalformedInputError
// ============================================================================

// MalformedInputError reports a tick batch that cannot be folded into a
// series: a timestamp that goes backwards or a rate that is not an integer.
type MalformedInputError struct {
	// Index is the position of the offending tick within its batch, -1 if
	// the error was raised while decoding a source row.
	Index     int
	Timestamp int64
	Previous  int64
	Reason    string
}

func (e *MalformedInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed input at ts=%d: %s", e.Timestamp, e.Reason)
	}
	return fmt.Sprintf("malformed input at tick %d (ts=%d, previous=%d): %s",
		e.Index, e.Timestamp, e.Previous, e.Reason)
}

// Unwrap makes errors.Is(err, ErrMalformedInput) work.
func (e *MalformedInputError) Unwrap() error {
	return ErrMalformedInput
}

// NewOutOfOrder creates a MalformedInputError for a decreasing timestamp.
func NewOutOfOrder(index int, ts, previous int64) *MalformedInputError {
	return &MalformedInputError{
		Index:     index,
		Timestamp: ts,
		Previous:  previous,
		Reason:    "timestamp decreases",
	}
}

// NewBadRate creates a MalformedInputError for a rate that does not parse.
func NewBadRate(ts int64, raw string) *MalformedInputError {
	return &MalformedInputError{
		Index:     -1,
		Timestamp: ts,
		Reason:    fmt.Sprintf("rate %q is not an integer", raw),
	}
}

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrUnknownSeries)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMalformedInput) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsMalformed returns true if err was caused by malformed tick input.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// IsRetriable returns true if the error is potentially retriable.
// Retrying is left to the caller; the next refresh cycle does it anyway.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrSourceUnavailable)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// HTTPStatus maps an error to the status code the delivery layer returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case Is(err, ErrMalformedInput):
		return http.StatusUnprocessableEntity
	case IsValidation(err):
		return http.StatusBadRequest
	case IsRetriable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Unavailable marks err as a source availability failure while keeping
// the original cause in the chain.
func Unavailable(err error, source string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", source, ErrSourceUnavailable, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

// Unwrap returns all collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
