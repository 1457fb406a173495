// Package cleanup reclaims task workspaces: immediately after a download,
// on explicit deletion, and periodically once they exceed the retention age.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"time"
)

// Default retry budget for Reclaimer.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 500 * time.Millisecond
)

// Reclaimer deletes directory trees, tolerating files that are briefly held open.
type Reclaimer struct {
	attempts  int
	backoff   time.Duration
	removeAll func(string) error
	remove    func(string) error
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger
}

// ReclaimerOption configures a Reclaimer.
type ReclaimerOption func(*Reclaimer)

// WithAttempts sets how many whole-tree deletes are tried.
func WithAttempts(n int) ReclaimerOption {
	return func(r *Reclaimer) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithBackoff sets the wait between attempts.
func WithBackoff(d time.Duration) ReclaimerOption {
	return func(r *Reclaimer) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

// WithRemoveFuncs replaces os.RemoveAll and os.Remove.
func WithRemoveFuncs(removeAll, remove func(string) error) ReclaimerOption {
	return func(r *Reclaimer) {
		if removeAll != nil {
			r.removeAll = removeAll
		}
		if remove != nil {
			r.remove = remove
		}
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) ReclaimerOption {
	return func(r *Reclaimer) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithReclaimerLogger sets the logger.
func WithReclaimerLogger(logger *slog.Logger) ReclaimerOption {
	return func(r *Reclaimer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReclaimer creates a Reclaimer with DefaultAttempts and DefaultBackoff.
func NewReclaimer(opts ...ReclaimerOption) *Reclaimer {
	r := &Reclaimer{
		attempts:  DefaultAttempts,
		backoff:   DefaultBackoff,
		removeAll: os.RemoveAll,
		remove:    os.Remove,
		sleep:     sleepContext,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reclaimer")
	return r
}

// Reclaim removes path and everything below it.
// On a lock error it deletes whatever individual files it can, waits and
// retries. It reports false when the tree could not be fully removed;
// remnants are left for a later sweep.
func (r *Reclaimer) Reclaim(ctx context.Context, path string) bool {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err := r.removeAll(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return true
		}
		if !isLockError(err) {
			r.logger.Error("Failed to remove directory", "path", path, "error", err)
			return false
		}

		r.logger.Warn("Directory is locked, removing files individually",
			"path", path, "attempt", attempt, "max_attempts", r.attempts, "error", err)
		r.removeUnlocked(path)

		if attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, r.backoff); err != nil {
			r.logger.Warn("Reclaim interrupted", "path", path, "error", err)
			return false
		}
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return true
	}
	r.logger.Error("Could not reclaim directory, leaving remnants", "path", path, "attempts", r.attempts)
	return false
}

// removeUnlocked deletes the tree bottom-up, skipping entries that refuse removal.
func (r *Reclaimer) removeUnlocked(root string) {
	var paths []string
	_ = filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		paths = append(paths, path)
		return nil
	})

	// WalkDir yields parents before children.
	slices.Reverse(paths)
	for _, p := range paths {
		err := r.remove(p)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if isLockError(err) {
			r.logger.Warn("File is locked", "path", p)
		}
	}
}

func isLockError(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
