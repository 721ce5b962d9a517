package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidID is returned for IDs that cannot be used as keys.
	ErrInvalidID = errors.New("invalid record id")
)
