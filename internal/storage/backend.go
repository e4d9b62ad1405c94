package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no object exists at a key.
var ErrNotFound = errors.New("key not found")

// Backend stores document content addressed by key. Metadata lives in the
// database; backends only ever see opaque bytes.
type Backend interface {
	// Put stores data at the given key, replacing any existing object.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves data from the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at the given key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// Copy copies an object from srcKey to dstKey.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// GetInfo returns metadata for a single object.
	GetInfo(ctx context.Context, key string) (*ObjectInfo, error)
}

// ObjectInfo provides metadata about stored objects.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified string
}
