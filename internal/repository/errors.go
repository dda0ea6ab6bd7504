package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyProcessed is returned when enqueueing for an email that is
	// missing or already processed.
	ErrAlreadyProcessed = errors.New("email missing or already processed")
	// ErrNotPending is returned when updating an entry in a terminal status.
	ErrNotPending = errors.New("action is not pending")
)
