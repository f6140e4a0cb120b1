package dispatch

import "errors"

var (
	// ErrNotFound is returned when an order, driver or customer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow, or when the order changed concurrently.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAssignmentConflict is returned when the chosen driver could not take
	// the order, typically because its capacity was reached concurrently.
	ErrAssignmentConflict = errors.New("assignment conflict")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation error")
	// ErrDuplicate is returned by stores on a unique key violation.
	ErrDuplicate = errors.New("duplicate key")
)
