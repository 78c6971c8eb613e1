package store

import "errors"

var (
	// ErrNotFound is returned when the ledger has no target with the given id.
	ErrNotFound = errors.New("target not found")

	// ErrMissingID is returned when a target without an id is upserted.
	ErrMissingID = errors.New("target id is required")

	// ErrInvalidTransition is returned when a status change would violate
	// the target state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)
