package task

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a workspace has no status document yet.
// Callers treat it as "pending or unknown", not as a failure.
var ErrNotFound = errors.New("status not found")

// StatusStore persists the latest Record of a task.
// Each task has a single writer (its pipeline run) and any number of readers.
type StatusStore interface {
	// Write replaces the status document held in dir.
	Write(ctx context.Context, dir string, rec Record) error

	// Read returns the status document held in dir.
	// Returns ErrNotFound if nothing was written yet.
	Read(ctx context.Context, dir string) (Record, error)
}
