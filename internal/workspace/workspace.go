// Package workspace owns the per-task directory tree under the workspace root.
//
// Each task gets <root>/<task_id>/ holding Audio/, images/, status.json,
// manifest.json and the final output_movie.mp4. The package only builds
// paths and directories; it never interprets the files.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Names of the files and directories inside a task workspace.
const (
	AudioDirName     = "Audio"
	ImagesDirName    = "images"
	StatusFileName   = "status.json"
	ManifestFileName = "manifest.json"
	OutputFileName   = "output_movie.mp4"
)

var (
	// ErrInvalidTaskID is returned for IDs that cannot name a directory under the root.
	ErrInvalidTaskID = errors.New("invalid task id")
	// ErrNotFound is returned when a task has no workspace on disk.
	ErrNotFound = errors.New("workspace not found")
)

// Workspace is the resolved directory layout of one task.
type Workspace struct {
	TaskID    string
	Dir       string
	AudioDir  string
	ImagesDir string
}

// StatusFile returns the path of the task's status document.
func (w Workspace) StatusFile() string { return filepath.Join(w.Dir, StatusFileName) }

// ManifestFile returns the path of the scene asset manifest.
func (w Workspace) ManifestFile() string { return filepath.Join(w.Dir, ManifestFileName) }

// OutputFile returns the path the composed video is written to.
func (w Workspace) OutputFile() string { return filepath.Join(w.Dir, OutputFileName) }

// Entry is a task directory found under the root.
type Entry struct {
	TaskID  string
	Dir     string
	ModTime time.Time
}

// Age returns how long ago the directory was last modified.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.ModTime)
}

// Manager allocates and resolves task workspaces under a root directory.
type Manager struct {
	root string
}

// NewManager creates a workspace manager rooted at root.
// The root directory itself is created lazily.
func NewManager(root string) (*Manager, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace root is empty")
	}
	return &Manager{root: filepath.Clean(trimmed)}, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// Create makes the task directory and its Audio and images subdirectories.
// Directories that already exist are not an error.
func (m *Manager) Create(ctx context.Context, taskID string) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	ws, err := m.Path(taskID)
	if err != nil {
		return Workspace{}, err
	}

	for _, dir := range []string{ws.AudioDir, ws.ImagesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Workspace{}, fmt.Errorf("create workspace for task %q: %w", taskID, err)
		}
	}
	return ws, nil
}

// Path resolves the workspace of taskID without touching the filesystem.
func (m *Manager) Path(taskID string) (Workspace, error) {
	if err := validateTaskID(taskID); err != nil {
		return Workspace{}, err
	}
	dir := filepath.Join(m.root, taskID)
	return Workspace{
		TaskID:    taskID,
		Dir:       dir,
		AudioDir:  filepath.Join(dir, AudioDirName),
		ImagesDir: filepath.Join(dir, ImagesDirName),
	}, nil
}

// Open resolves the workspace of taskID and checks that it exists.
func (m *Manager) Open(ctx context.Context, taskID string) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	ws, err := m.Path(taskID)
	if err != nil {
		return Workspace{}, err
	}

	info, err := os.Stat(ws.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Workspace{}, ErrNotFound
		}
		return Workspace{}, fmt.Errorf("open workspace for task %q: %w", taskID, err)
	}
	if !info.IsDir() {
		return Workspace{}, fmt.Errorf("workspace path for task %q is not a directory", taskID)
	}
	return ws, nil
}

// Exists reports whether taskID has a workspace directory.
func (m *Manager) Exists(taskID string) bool {
	_, err := m.Open(context.Background(), taskID)
	return err == nil
}

// List enumerates the immediate child directories of the root, oldest first.
// A missing root yields an empty list.
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(m.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace root: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info by a concurrent reclaim.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read workspace entry info %q: %w", de.Name(), err)
		}
		entries = append(entries, Entry{
			TaskID:  de.Name(),
			Dir:     filepath.Join(m.root, de.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.Before(entries[j].ModTime)
	})
	return entries, nil
}

func validateTaskID(taskID string) error {
	trimmed := strings.TrimSpace(taskID)
	if trimmed == "" || trimmed != taskID {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}
	if strings.ContainsAny(trimmed, `/\`) {
		return fmt.Errorf("%w: %q must not contain path separators", ErrInvalidTaskID, taskID)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, taskID)
	}
	return nil
}
