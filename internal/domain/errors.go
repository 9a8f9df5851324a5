package domain

import "fmt"

// Error types for consistent error handling across the tracker.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnrecognizedFrequency indicates a recurrence rule outside the known set.
type ErrUnrecognizedFrequency struct {
	Frequency Frequency
}

func (e *ErrUnrecognizedFrequency) Error() string {
	return fmt.Sprintf("unrecognized frequency: %q", e.Frequency)
}

// ErrPersistence indicates a read or write against the user store failed.
type ErrPersistence struct {
	Op  string
	Err error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("persistence error [%s]: %v", e.Op, e.Err)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// ErrVersionConflict indicates the document changed between read and write.
type ErrVersionConflict struct {
	UserID   string
	Expected int64
}

func (e *ErrVersionConflict) Error() string {
	return fmt.Sprintf("version conflict for user %s (expected version %d)", e.UserID, e.Expected)
}

// ErrRolloverFailed wraps the cause of an aborted rollover. Nothing was committed.
type ErrRolloverFailed struct {
	UserID string
	Err    error
}

func (e *ErrRolloverFailed) Error() string {
	return fmt.Sprintf("rollover failed for user %s: %v", e.UserID, e.Err)
}

func (e *ErrRolloverFailed) Unwrap() error {
	return e.Err
}

// ErrAlreadyRolledOver indicates the month was already closed for this user.
type ErrAlreadyRolledOver struct {
	UserID string
	Month  string
}

func (e *ErrAlreadyRolledOver) Error() string {
	return fmt.Sprintf("month %s already rolled over for user %s", e.Month, e.UserID)
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrConflict indicates a resource already exists.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrUnauthorized indicates an invalid or missing token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}
