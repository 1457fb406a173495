// Package id provides unique identifier generation for tasks.
package id

import "github.com/google/uuid"

// Generate creates a new unique task ID.
// The ID doubles as the workspace directory name.
func Generate() string {
	return uuid.NewString()
}

// Valid reports whether s has the shape of a generated task ID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}
