package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/clipgen-api/internal/task"
	"github.com/maauso/clipgen-api/internal/workspace"
)

// DirReclaimer removes a directory tree and reports whether it is gone.
type DirReclaimer interface {
	Reclaim(ctx context.Context, path string) bool
}

// Lister enumerates task workspaces under the root.
type Lister interface {
	List(ctx context.Context) ([]workspace.Entry, error)
}

// InFlightChecker reports whether a task is queued or running in this process.
type InFlightChecker interface {
	InFlight(taskID string) bool
}

// Sweeper reclaims task workspaces older than a retention age.
// Tasks that are still in flight are never swept.
type Sweeper struct {
	lister    Lister
	reclaimer DirReclaimer
	inFlight  InFlightChecker
	store     task.StatusStore
	logger    *slog.Logger
	now       func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithInFlight sets the checker consulted before reclaiming a workspace.
func WithInFlight(c InFlightChecker) SweeperOption {
	return func(s *Sweeper) { s.inFlight = c }
}

// WithStatusStore sets the store Recover reads and rewrites.
func WithStatusStore(store task.StatusStore) SweeperOption {
	return func(s *Sweeper) { s.store = store }
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a Sweeper over the workspaces returned by lister.
func NewSweeper(lister Lister, reclaimer DirReclaimer, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		lister:    lister,
		reclaimer: reclaimer,
		store:     task.NewFileStore(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sweeper")
	return s
}

// Sweep reclaims every workspace whose age exceeds maxAge and returns how many
// were removed. Workspaces that fail to reclaim stay for the next sweep.
func (s *Sweeper) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("maxAge must be positive")
	}

	entries, err := s.lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list workspaces: %w", err)
	}

	now := s.now()
	reclaimed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		if e.Age(now) <= maxAge {
			continue
		}
		if s.inFlight != nil && s.inFlight.InFlight(e.TaskID) {
			s.logger.Debug("Skipping in-flight workspace", "task_id", e.TaskID)
			continue
		}
		if s.reclaimer.Reclaim(ctx, e.Dir) {
			reclaimed++
			s.logger.Info("Reclaimed workspace", "task_id", e.TaskID, "age", e.Age(now).Round(time.Second))
		} else {
			s.logger.Warn("Workspace reclaim deferred", "task_id", e.TaskID)
		}
	}
	return reclaimed, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.Sweep(ctx, maxAge)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Periodic sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("Periodic sweep finished", "reclaimed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Recover marks tasks left unfinished by a previous process as abandoned.
// It must run before new work is dispatched. Returns the number of tasks marked.
func (s *Sweeper) Recover(ctx context.Context) (int, error) {
	entries, err := s.lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list workspaces: %w", err)
	}

	marked := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		if s.inFlight != nil && s.inFlight.InFlight(e.TaskID) {
			continue
		}

		rec, err := s.store.Read(ctx, e.Dir)
		if err != nil && !errors.Is(err, task.ErrNotFound) {
			s.logger.Warn("Unreadable status, skipping", "task_id", e.TaskID, "error", err)
			continue
		}
		if rec.IsTerminal() {
			continue
		}

		last := rec.Stage
		if last == "" {
			last = task.StageQueued
		}
		abandoned := task.Record{
			TaskID: e.TaskID,
			Stage:  task.StageError,
			Error: &task.Failure{
				Kind:    task.KindAbandoned,
				Message: fmt.Sprintf("task abandoned at stage %q", last),
			},
			UpdatedAt: s.now().UTC(),
		}
		abandoned.Status = abandoned.StatusText()

		if err := s.store.Write(ctx, e.Dir, abandoned); err != nil {
			s.logger.Error("Failed to mark task abandoned", "task_id", e.TaskID, "error", err)
			continue
		}
		marked++
		s.logger.Warn("Marked orphaned task as abandoned", "task_id", e.TaskID, "stage", last)
	}
	return marked, nil
}
