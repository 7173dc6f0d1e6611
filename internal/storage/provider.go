// Package storage defines blob storage for capture artifacts and the
// uploader that maps artifacts onto key namespaces.
package storage

import (
	"context"
	"fmt"
	"io"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	URI  string
	Size int64
}

// BlobStore is the minimal object store used by the uploader and reporter.
// StatObject returns an error wrapping audit.ErrNotFound for missing paths.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
	StatObject(ctx context.Context, path string) (ObjectInfo, error)
}

// Discard accepts writes without storing anything. Used for dry runs.
type Discard struct{}

// PutObject drains r and returns a discard:// URI.
func (Discard) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", fmt.Errorf("drain reader: %w", err)
	}
	return "discard://" + path, nil
}

// StatObject always reports the object as missing.
func (Discard) StatObject(_ context.Context, path string) (ObjectInfo, error) {
	return ObjectInfo{}, NotFound(path)
}
