package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/maauso/clipgen-api/internal/storage"
)

// StatusFileName is the status document kept in every task workspace.
const StatusFileName = "status.json"

// Compile-time check that FileStore implements StatusStore.
var _ StatusStore = (*FileStore)(nil)

// FileStore keeps the status document as status.json inside the task directory.
// Writes go through a temp file and a rename, so readers never observe a partial document.
type FileStore struct{}

// NewFileStore creates a filesystem-backed status store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Write serializes rec to <dir>/status.json.
func (s *FileStore) Write(ctx context.Context, dir string, rec Record) error {
	if rec.Status == "" {
		rec.Status = rec.StatusText()
	}
	if err := storage.WriteJSON(ctx, filepath.Join(dir, StatusFileName), rec); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// Read loads <dir>/status.json.
func (s *FileStore) Read(ctx context.Context, dir string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	data, err := os.ReadFile(filepath.Join(dir, StatusFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read status: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode status: %w", err)
	}
	return rec, nil
}
