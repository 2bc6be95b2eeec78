package pebble

import "errors"

var (
	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("kv-store: database is closed")

	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("kv-store: key not found")

	// ErrIteratorInvalid is returned when reading from an un-positioned
	// or exhausted iterator.
	ErrIteratorInvalid = errors.New("kv-store: iterator is not valid")

	// ErrBatchDone is returned when using a batch after commit or close.
	ErrBatchDone = errors.New("kv-store: batch already committed or closed")
)
