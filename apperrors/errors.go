// Package apperrors holds the error kinds shared by the evaluation and
// dispatch pipeline.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout marks an upstream call that ran past its deadline.
var ErrTimeout = errors.New("upstream call timed out")

// ValidationError is a missing or malformed client input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError with a formatted message.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ClassificationError wraps any failure to obtain a valid classification.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	if e == nil || e.Err == nil {
		return "classification failed"
	}
	return "classification failed: " + e.Err.Error()
}
func (e *ClassificationError) Unwrap() error { return e.Err }

// ExtractionError is a failed description of a single image.
type ExtractionError struct {
	Index int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("image %d description failed: %v", e.Index, e.Err)
}
func (e *ExtractionError) Unwrap() error { return e.Err }

// ExternalServiceError is a failed executor call. Body holds the upstream reply, if any.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	msg := e.Service + " call failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}
func (e *ExternalServiceError) Unwrap() error { return e.Err }

// External builds an ExternalServiceError around err.
func External(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: timeoutAware(err)}
}

// Classification wraps err as a ClassificationError.
func Classification(err error) error {
	if err == nil {
		return nil
	}
	return &ClassificationError{Err: timeoutAware(err)}
}

// timeoutAware adds ErrTimeout to the chain when err is a deadline expiry.
func timeoutAware(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// IsTimeout reports whether err carries a deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Kind returns the short label used in the HTTP error envelope.
func Kind(err error) string {
	var (
		verr *ValidationError
		cerr *ClassificationError
		xerr *ExternalServiceError
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case IsTimeout(err):
		return "timeout"
	case errors.As(err, &cerr):
		return "classification"
	case errors.As(err, &xerr):
		return "external_service"
	default:
		return "internal"
	}
}
