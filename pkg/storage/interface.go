package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get and URL for a missing key.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Storage is a flat key/object store. Keys use "/" as separator on every
// backend.
type Storage interface {
	// Put stores r under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the object. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) (bool, error)

	// List returns the objects under prefix, oldest key first.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// URL returns a location the object can be downloaded from. S3 returns
	// a presigned URL valid for expires; local storage returns a file URL.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}
