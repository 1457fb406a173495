package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/clipgen-api/internal/dispatch"
	"github.com/maauso/clipgen-api/internal/task"
	"github.com/maauso/clipgen-api/internal/task/id"
	"github.com/maauso/clipgen-api/internal/workspace"
)

// DefaultRetention is the workspace age POST /cleanup sweeps beyond.
const DefaultRetention = 24 * time.Hour

// Tasks submits and supervises pipeline runs.
type Tasks interface {
	Submit(ctx context.Context, topic string, numScenes int) (string, error)
	// Cancel stops taskID. The channel closes once its workspace is no longer written.
	Cancel(taskID string) (<-chan struct{}, bool)
	Stats() dispatch.Stats
}

// Workspaces resolves existing task workspaces.
type Workspaces interface {
	Open(ctx context.Context, taskID string) (workspace.Workspace, error)
}

// Sweeper reclaims workspaces older than a retention age.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// DirReclaimer removes a directory tree and reports whether it is gone.
type DirReclaimer interface {
	Reclaim(ctx context.Context, path string) bool
}

// Dependencies groups the collaborators the handlers delegate to.
type Dependencies struct {
	Tasks      Tasks
	Workspaces Workspaces
	Store      task.StatusStore
	Sweeper    Sweeper
	Reclaimer  DirReclaimer
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	tasks      Tasks
	workspaces Workspaces
	store      task.StatusStore
	sweeper    Sweeper
	reclaimer  DirReclaimer
	validator  *validator.Validate
	logger     *slog.Logger
	retention  time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithRetention sets the age beyond which POST /cleanup reclaims workspaces.
func WithRetention(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.retention = d
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Dependencies, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	store := deps.Store
	if store == nil {
		store = task.NewFileStore()
	}
	h := &Handlers{
		tasks:      deps.Tasks,
		workspaces: deps.Workspaces,
		store:      store,
		sweeper:    deps.Sweeper,
		reclaimer:  deps.Reclaimer,
		validator:  validator.New(),
		logger:     logger.With("component", "http"),
		retention:  DefaultRetention,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// Memory handles GET /memory requests.
func (h *Handlers) Memory(w http.ResponseWriter, _ *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	writeJSON(w, http.StatusOK, MemoryResponse{
		AllocBytes:      ms.Alloc,
		TotalAllocBytes: ms.TotalAlloc,
		SysBytes:        ms.Sys,
		HeapObjects:     ms.HeapObjects,
		NumGC:           ms.NumGC,
		Goroutines:      runtime.NumGoroutine(),
		Dispatcher:      h.tasks.Stats(),
	})
}

// GenerateClip handles POST /generate_clip requests.
func (h *Handlers) GenerateClip(w http.ResponseWriter, r *http.Request) {
	var req GenerateClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	taskID, err := h.tasks.Submit(r.Context(), req.Topic, req.NumScenes)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, dispatch.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "too many tasks in progress, retry later", "QUEUE_FULL")
		case errors.Is(err, dispatch.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, "server is shutting down", "SHUTTING_DOWN")
		default:
			h.logger.Error("failed to submit task",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create task", "TASK_CREATION_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, GenerateClipResponse{TaskID: taskID})
}

// Progress handles GET /progress/{task_id} requests.
func (h *Handlers) Progress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	ws, ok := h.openWorkspace(w, r, taskID)
	if !ok {
		return
	}

	rec, err := h.store.Read(r.Context(), ws.Dir)
	if errors.Is(err, task.ErrNotFound) {
		// Workspace allocated, first status write not visible yet.
		writeJSON(w, http.StatusOK, ProgressResponse{
			State:  string(task.StatePending),
			Status: "Task queued",
		})
		return
	}
	if err != nil {
		h.logger.Error("failed to read task status",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read task status", "STATUS_READ_FAILED")
		return
	}

	resp := ProgressResponse{
		State:     string(rec.State()),
		Status:    rec.StatusText(),
		Stage:     string(rec.Stage),
		ErrorKind: string(rec.ErrorKind()),
		VideoURL:  rec.VideoURL,
	}
	if rec.State() == task.StateSuccess {
		resp.DownloadURL = "/download/" + taskID
	}
	writeJSON(w, http.StatusOK, resp)
}

// Download handles GET /download/{task_id} requests.
// A complete download reclaims the task workspace; if that fails the
// retention sweeper removes it later.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	ws, ok := h.openWorkspace(w, r, taskID)
	if !ok {
		return
	}

	rec, err := h.store.Read(r.Context(), ws.Dir)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "task not completed", "TASK_NOT_READY")
		return
	}
	if err != nil {
		h.logger.Error("failed to read task status",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read task status", "STATUS_READ_FAILED")
		return
	}
	if rec.Stage != task.StageDone {
		writeError(w, http.StatusBadRequest, "task not completed or failed", "TASK_NOT_READY")
		return
	}

	outputFile := rec.OutputFile
	if outputFile == "" {
		outputFile = ws.OutputFile()
	}

	status, err := h.serveVideo(w, r, outputFile, rec.OutputDigest)
	if err != nil {
		h.logger.Error("video file missing",
			slog.String("task_id", taskID),
			slog.String("path", outputFile),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "video file not found", "OUTPUT_MISSING")
		return
	}
	if status != http.StatusOK {
		return
	}

	if h.reclaimer.Reclaim(context.WithoutCancel(r.Context()), ws.Dir) {
		h.logger.Info("workspace reclaimed after download", slog.String("task_id", taskID))
	} else {
		h.logger.Info("deferred cleanup after download", slog.String("task_id", taskID))
	}
}

// serveVideo streams path and returns the status written. The file is
// closed before returning so the caller can remove it.
func (h *Handlers) serveVideo(w http.ResponseWriter, r *http.Request, path, digest string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s: %w", path, fs.ErrInvalid)
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", workspace.OutputFileName))
	if digest != "" {
		w.Header().Set("ETag", `"`+digest+`"`)
	}

	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	http.ServeContent(ww, r, workspace.OutputFileName, info.ModTime(), f)
	return statusOf(ww), nil
}

// Cleanup handles POST /cleanup requests.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.Sweep(r.Context(), h.retention)
	if err != nil {
		h.logger.Error("retention sweep failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cleanup failed", "CLEANUP_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, CleanupResponse{
		Message:   fmt.Sprintf("Cleaned up %d old temporary directories", n),
		Reclaimed: n,
	})
}

// DeleteTask handles DELETE /tasks/{task_id} requests. An in-flight task is
// cancelled, and its workspace is removed only after the run has stopped.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")

	ws, ok := h.openWorkspace(w, r, taskID)
	if !ok {
		return
	}

	done, cancelled := h.tasks.Cancel(taskID)
	if cancelled {
		select {
		case <-done:
		case <-r.Context().Done():
			h.logger.Warn("client gone before task stopped, workspace kept",
				slog.String("task_id", taskID),
			)
			return
		}
	}

	if !h.reclaimer.Reclaim(context.WithoutCancel(r.Context()), ws.Dir) {
		h.logger.Warn("workspace delete deferred", slog.String("task_id", taskID))
		writeError(w, http.StatusInternalServerError, "workspace could not be fully removed", "DELETE_FAILED")
		return
	}

	h.logger.Info("workspace deleted",
		slog.String("task_id", taskID),
		slog.Bool("cancelled", cancelled),
	)
	writeJSON(w, http.StatusOK, DeleteTaskResponse{TaskID: taskID, Cancelled: cancelled})
}

// openWorkspace resolves taskID, writing a 404 when it is malformed or unknown.
// Only ids this service issues can address a workspace.
func (h *Handlers) openWorkspace(w http.ResponseWriter, r *http.Request, taskID string) (workspace.Workspace, bool) {
	if !id.Valid(taskID) {
		writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return workspace.Workspace{}, false
	}

	ws, err := h.workspaces.Open(r.Context(), taskID)
	if err == nil {
		return ws, true
	}
	if errors.Is(err, workspace.ErrNotFound) || errors.Is(err, workspace.ErrInvalidTaskID) {
		writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return workspace.Workspace{}, false
	}
	h.logger.Error("failed to open workspace",
		slog.String("task_id", taskID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to open task", "TASK_FETCH_FAILED")
	return workspace.Workspace{}, false
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
