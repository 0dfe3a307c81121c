package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrConflict = errors.New("version conflict")
)

// Record is a stored value together with its version. Versions start at 1
// and grow by one on every successful Put.
type Record struct {
	Value   []byte
	Version int64
}

// KV is a durable key-value store with versioned writes.
type KV interface {
	// Get returns ErrNotFound when key has never been written.
	Get(ctx context.Context, key string) (Record, error)

	// Put replaces the value of key in full if its current version equals
	// expect (0 means the key must not exist yet) and returns the new version.
	// A mismatch returns ErrConflict and leaves the stored value untouched.
	Put(ctx context.Context, key string, value []byte, expect int64) (int64, error)
}
