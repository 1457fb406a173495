// Package storage provides local artifact writes and optional durable publishing.
// Local writes are atomic so concurrent readers never observe a partial file;
// publishing pushes finished videos to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrS3NotConfigured is returned when publishing is attempted
// without an object store configured.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// Publisher uploads finished artifacts to durable storage.
type Publisher interface {
	// Publish uploads data under key and returns the object's URL.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
