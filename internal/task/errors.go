package task

import "errors"

var (
	// ErrUnknownType is returned when no handler is registered for a task type.
	ErrUnknownType = errors.New("unknown task type")

	// ErrInvalidTask is returned when an envelope cannot be decoded.
	ErrInvalidTask = errors.New("invalid task")
)
