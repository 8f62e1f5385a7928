package out

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Persistence implementations for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// Persistence is an opaque key to byte-blob store. Keys are computed by the
// storage layer and may contain slashes.
type Persistence interface {
	// Read returns the bytes stored under key, or ErrKeyNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores data under key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes key, or returns ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
