// Package archive stores opaque objects by slash-separated path, on the
// local filesystem or in an S3 bucket. The cache persists entries here.
package archive

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read and Delete when nothing is stored at the path.
var ErrNotFound = errors.New("archive: object not found")

// Storage is an object store for persisted cache entries.
type Storage interface {
	// Write replaces the object at path.
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	// List returns every path under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
	// DeleteMany removes paths and reports how many were removed. Missing
	// paths are skipped.
	DeleteMany(ctx context.Context, paths []string) (int, error)
}
