package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo describes a stored object.
type FileInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
}

// Store is an object store driver.
type Store interface {
	Upload(ctx context.Context, path string, r io.Reader) error

	// Download returns the object body. The caller closes it.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	URL(ctx context.Context, path string) (string, error)
	List(ctx context.Context, prefix string) ([]FileInfo, error)

	// Probe verifies the backing location is reachable.
	Probe(ctx context.Context) error
}
