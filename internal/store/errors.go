package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrTaskNotFound is returned when the requested task id does not
	// exist in the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidState is returned when an operation is not permitted in
	// the task's current status, e.g. removing a running task without
	// force or claiming a task that is no longer pending.
	ErrInvalidState = errors.New("operation not permitted in current task state")

	// ErrDuplicateID is returned when creating a task whose id already
	// exists. Task ids are unique for the life of the store.
	ErrDuplicateID = errors.New("task id already exists")
)

// IsNotFound reports whether err is a task-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsInvalidState reports whether err is an invalid-state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// Error is returned for persistence-layer failures (disk or lock
// errors), distinct from ErrTaskNotFound. It is fatal to the current
// operation and always surfaced to the caller.
type Error struct {
	Operation string // the store operation that failed (e.g. "create", "claim")
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("store %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a store Error for the given operation.
func NewError(operation, message string, err error) *Error {
	return &Error{Operation: operation, Message: message, Err: err}
}

// IsStoreError reports whether err is a persistence-layer failure.
func IsStoreError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
