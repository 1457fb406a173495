// Package dispatch accepts generation requests and runs them on a bounded
// worker pool. Submission is synchronous up to the Queued status write; the
// pipeline itself runs later on one of the workers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipgen-api/internal/task"
	"github.com/maauso/clipgen-api/internal/task/id"
	"github.com/maauso/clipgen-api/internal/workspace"
)

var (
	// ErrInvalidRequest is returned for a missing topic or an out-of-range scene count.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrQueueFull is returned when every worker is busy and the queue is at capacity.
	ErrQueueFull = errors.New("submission queue is full")
	// ErrStopped is returned once the dispatcher has shut down.
	ErrStopped = errors.New("dispatcher stopped")
)

// Defaults for Config.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 16
	DefaultMaxScenes = 6
)

// Runner executes the pipeline for one task.
type Runner interface {
	Run(ctx context.Context, t *task.Task, ws workspace.Workspace) error
	Fail(ctx context.Context, t *task.Task, ws workspace.Workspace, kind task.ErrorKind, msg string) error
}

// Workspaces allocates task workspaces.
type Workspaces interface {
	Create(ctx context.Context, taskID string) (workspace.Workspace, error)
}

// DirReclaimer removes a directory tree.
type DirReclaimer interface {
	Reclaim(ctx context.Context, path string) bool
}

// Config bounds the dispatcher.
type Config struct {
	Workers     int
	QueueSize   int
	MaxScenes   int
	TaskTimeout time.Duration // 0 disables the per-task deadline
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Workers       int `json:"workers"`
	QueueCapacity int `json:"queue_capacity"`
	Queued        int `json:"queued"`
	Running       int `json:"running"`
}

type job struct {
	task *task.Task
	ws   workspace.Workspace
}

// handle tracks an accepted task until it finishes.
// done is closed once no worker will touch the task workspace again.
type handle struct {
	job       job
	cancel    context.CancelFunc
	cancelled bool
	running   bool
	done      chan struct{}
}

// Dispatcher owns every accepted task until its pipeline run ends.
type Dispatcher struct {
	cfg        Config
	runner     Runner
	workspaces Workspaces
	store      task.StatusStore
	reclaimer  DirReclaimer
	logger     *slog.Logger
	newID      func() string

	queue chan job

	mu      sync.Mutex
	handles map[string]*handle
	stopped bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithIDGenerator replaces id.Generate.
func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		if gen != nil {
			d.newID = gen
		}
	}
}

// New creates a Dispatcher. Call Start to begin running tasks.
func New(cfg Config, runner Runner, workspaces Workspaces, store task.StatusStore, reclaimer DirReclaimer, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxScenes <= 0 {
		cfg.MaxScenes = DefaultMaxScenes
	}

	d := &Dispatcher{
		cfg:        cfg,
		runner:     runner,
		workspaces: workspaces,
		store:      store,
		reclaimer:  reclaimer,
		logger:     slog.Default(),
		newID:      id.Generate,
		queue:      make(chan job, cfg.QueueSize),
		handles:    make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// MaxScenes returns the accepted upper bound for num_scenes.
func (d *Dispatcher) MaxScenes() int {
	return d.cfg.MaxScenes
}

// Submit validates the request, creates the task workspace, records the task
// as Queued and enqueues it. The returned ID is observable by pollers as soon
// as Submit returns.
func (d *Dispatcher) Submit(ctx context.Context, topic string, numScenes int) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if numScenes < 1 || numScenes > d.cfg.MaxScenes {
		return "", fmt.Errorf("%w: num_scenes must be between 1 and %d", ErrInvalidRequest, d.cfg.MaxScenes)
	}

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return "", ErrStopped
	}

	t := task.New(d.newID(), strings.TrimSpace(topic), numScenes)
	logger := d.logger.With(slog.String("task_id", t.ID))

	ws, err := d.workspaces.Create(ctx, t.ID)
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := d.store.Write(ctx, ws.Dir, t.Record()); err != nil {
		d.discard(ctx, ws)
		return "", fmt.Errorf("record queued status: %w", err)
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.discard(ctx, ws)
		return "", ErrStopped
	}
	j := job{task: t, ws: ws}
	d.handles[t.ID] = &handle{job: j, done: make(chan struct{})}
	select {
	case d.queue <- j:
		d.mu.Unlock()
	default:
		delete(d.handles, t.ID)
		d.mu.Unlock()
		d.discard(ctx, ws)
		logger.Warn("Submission rejected, queue full", "capacity", d.cfg.QueueSize)
		return "", ErrQueueFull
	}

	logger.Info("Task queued", "topic", t.Topic, "num_scenes", numScenes)
	return t.ID, nil
}

// Start runs the worker pool until ctx is cancelled. Running tasks are
// cancelled with ctx; tasks still queued stay Queued on disk and are marked
// abandoned by the next start-up recovery.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting workers", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	err := g.Wait()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.logger.Info("Workers stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.execute(ctx, j)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, j job) {
	taskID := j.task.ID
	defer d.release(taskID)

	var runCtx context.Context
	var cancel context.CancelFunc
	if d.cfg.TaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.cfg.TaskTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	d.mu.Lock()
	h := d.handles[taskID]
	cancelled := h == nil || h.cancelled
	if !cancelled {
		h.cancel = cancel
		h.running = true
	}
	d.mu.Unlock()

	if cancelled {
		// Cancel already recorded the outcome.
		d.logger.Info("Skipping cancelled task", "task_id", taskID)
		return
	}

	start := time.Now()
	if err := d.runner.Run(runCtx, j.task, j.ws); err != nil {
		d.logger.Warn("Task failed", "task_id", taskID, "duration", time.Since(start).Round(time.Millisecond), "error", err)
		return
	}
	d.logger.Info("Task completed", "task_id", taskID, "duration", time.Since(start).Round(time.Millisecond))
}

func (d *Dispatcher) release(taskID string) {
	d.mu.Lock()
	h, ok := d.handles[taskID]
	delete(d.handles, taskID)
	d.mu.Unlock()
	if ok {
		close(h.done)
	}
}

func (d *Dispatcher) discard(ctx context.Context, ws workspace.Workspace) {
	if d.reclaimer == nil {
		return
	}
	if !d.reclaimer.Reclaim(context.WithoutCancel(ctx), ws.Dir) {
		d.logger.Warn("Could not remove rejected workspace", "task_id", ws.TaskID)
	}
}

// Cancel stops a running task, or marks a queued one so it is recorded as
// cancelled instead of running. It reports whether the task was in flight.
//
// The returned channel is closed once the task's pipeline has returned, after
// which nothing writes to the workspace and it is safe to remove. A queued
// task is recorded as cancelled before Cancel returns and never starts, so
// its channel is already closed.
func (d *Dispatcher) Cancel(taskID string) (<-chan struct{}, bool) {
	d.mu.Lock()
	h, ok := d.handles[taskID]
	if !ok {
		d.mu.Unlock()
		return nil, false
	}
	if h.running {
		h.cancelled = true
		h.cancel()
		done := h.done
		d.mu.Unlock()
		return done, true
	}
	first := !h.cancelled
	h.cancelled = true
	j := h.job
	d.mu.Unlock()

	if first {
		if err := d.runner.Fail(context.Background(), j.task, j.ws, task.KindCancelled, "task cancelled"); err != nil {
			d.logger.Error("Failed to record cancelled task", "task_id", taskID, "error", err)
		}
	}
	return closedChan, true
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// InFlight reports whether taskID is queued or running.
func (d *Dispatcher) InFlight(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handles[taskID]
	return ok
}

// Stats returns current queue and worker usage.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{Workers: d.cfg.Workers, QueueCapacity: d.cfg.QueueSize}
	for _, h := range d.handles {
		if h.running {
			s.Running++
		} else {
			s.Queued++
		}
	}
	return s
}
