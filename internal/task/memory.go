package task

import (
	"context"
	"sync"
)

// Compile-time check that MemoryStore implements StatusStore.
var _ StatusStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory StatusStore keyed by task directory.
// It records every write so tests can assert on the stage sequence.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  map[string]Record
	history map[string][]Record
}

// NewMemoryStore creates an empty in-memory status store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:  make(map[string]Record),
		history: make(map[string][]Record),
	}
}

// Write stores a copy of rec for dir.
func (s *MemoryStore) Write(ctx context.Context, dir string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Status == "" {
		rec.Status = rec.StatusText()
	}
	rec = cloneRecord(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[dir] = rec
	s.history[dir] = append(s.history[dir], rec)
	return nil
}

// Read returns a copy of the latest record for dir.
func (s *MemoryStore) Read(_ context.Context, dir string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.latest[dir]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Stages returns the stages written for dir, in order.
func (s *MemoryStore) Stages(dir string) []Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stages := make([]Stage, 0, len(s.history[dir]))
	for _, rec := range s.history[dir] {
		stages = append(stages, rec.Stage)
	}
	return stages
}

func cloneRecord(rec Record) Record {
	if rec.Error != nil {
		f := *rec.Error
		rec.Error = &f
	}
	return rec
}
