package task

import (
	"errors"
	"fmt"
)

// ErrorClass distinguishes failures that are worth retrying from those
// that are not.
type ErrorClass string

const (
	// ErrorClassTransient marks failures that may resolve on retry,
	// such as network timeouts or rate limits.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent marks failures that retrying cannot fix,
	// such as a malformed payload or an unregistered kind.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error is a classified task execution failure.
type Error struct {
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s task error: %v", e.Class, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable task error.
func Transient(err error) *Error {
	return &Error{Class: ErrorClassTransient, Err: err}
}

// Permanent wraps err as a non-retryable task error.
func Permanent(err error) *Error {
	return &Error{Class: ErrorClassPermanent, Err: err}
}

// Transientf wraps a formatted message as a retryable task error.
func Transientf(format string, args ...any) *Error {
	return Transient(fmt.Errorf(format, args...))
}

// Permanentf wraps a formatted message as a non-retryable task error.
func Permanentf(format string, args ...any) *Error {
	return Permanent(fmt.Errorf(format, args...))
}

// Classify returns the error class of err. Unclassified errors are
// treated as transient, matching the retry-by-default posture for
// failures from the LLM endpoint.
func Classify(err error) ErrorClass {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return ErrorClassTransient
}

// AsError coerces err into a classified *Error, wrapping unclassified
// errors as transient.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return Transient(err)
}
