package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a create-only row already exists,
	// either by address or by its (id, owner) pair.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrParentMissing is returned when a row references a collection
	// that is not mirrored.
	ErrParentMissing = errors.New("parent collection not mirrored")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
