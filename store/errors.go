package store

import "errors"

var (
	// ErrNotFound is returned when no entry exists for a key.
	ErrNotFound = errors.New("store: not found")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("store: closed")

	// ErrCorrupted is returned when persisted content cannot be decoded or
	// fails checksum verification.
	ErrCorrupted = errors.New("store: corrupted")
)
