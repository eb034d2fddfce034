package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when no dataset has been persisted yet.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
