// Package storage provides scratch file handling and durable object storage.
// It defines the Scratch and ObjectStore ports and implementations for local
// disk, Google Cloud Storage and S3.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrUploadFailed is returned when an object cannot be written to the store.
var ErrUploadFailed = errors.New("storage: upload failed")

// Scratch defines the interface for short-lived local files used while an
// item is being processed. Every path handed out must be released with
// CleanupTemp by the caller.
type Scratch interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// TempPath reserves an empty temporary file with the given extension
	// and returns its path, for tools that write their own output.
	TempPath(ctx context.Context, name, ext string) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error
}

// ObjectStore uploads objects to durable storage.
type ObjectStore interface {
	// Upload writes data under key and returns the object's public URL.
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
}
