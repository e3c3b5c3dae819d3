package shared

import "errors"

var (
	// ErrNotFound indicates the referenced order, parent or company is absent.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor lacks role or company standing for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition indicates the target status is unreachable from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent-write loss or duplicate unique constraint.
	ErrConflict = errors.New("conflict")
)
