package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "task")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Audio"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Audio", "scene0.mp3"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "scene0.png"), []byte("i"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output_movie.mp4"), []byte("v"), 0o600))
	return dir
}

func noSleep(calls *int) func(context.Context, time.Duration) error {
	return func(context.Context, time.Duration) error {
		*calls++
		return nil
	}
}

func TestReclaimer_RemovesTree(t *testing.T) {
	dir := makeTree(t)

	ok := NewReclaimer().Reclaim(context.Background(), dir)

	assert.True(t, ok)
	assert.NoDirExists(t, dir)
}

func TestReclaimer_MissingDirectory(t *testing.T) {
	ok := NewReclaimer().Reclaim(context.Background(), filepath.Join(t.TempDir(), "gone"))
	assert.True(t, ok)
}

func TestReclaimer_LockedFileExhaustsAttempts(t *testing.T) {
	dir := makeTree(t)
	locked := filepath.Join(dir, "output_movie.mp4")

	removeAllCalls, sleeps := 0, 0
	removeAll := func(string) error {
		removeAllCalls++
		return &fs.PathError{Op: "unlinkat", Path: locked, Err: fs.ErrPermission}
	}
	remove := func(p string) error {
		if p == locked {
			return &fs.PathError{Op: "remove", Path: p, Err: syscall.EBUSY}
		}
		return os.Remove(p)
	}

	r := NewReclaimer(
		WithAttempts(3),
		WithBackoff(time.Hour),
		WithRemoveFuncs(removeAll, remove),
		WithSleep(noSleep(&sleeps)),
	)

	ok := r.Reclaim(context.Background(), dir)

	assert.False(t, ok)
	assert.Equal(t, 3, removeAllCalls)
	assert.Equal(t, 2, sleeps)
	// Unlocked files were removed individually.
	assert.FileExists(t, locked)
	assert.NoFileExists(t, filepath.Join(dir, "Audio", "scene0.mp3"))
	assert.NoDirExists(t, filepath.Join(dir, "images"))
}

func TestReclaimer_SucceedsAfterLockReleased(t *testing.T) {
	dir := makeTree(t)

	calls, sleeps := 0, 0
	removeAll := func(p string) error {
		calls++
		if calls == 1 {
			return &fs.PathError{Op: "unlinkat", Path: p, Err: syscall.EBUSY}
		}
		return os.RemoveAll(p)
	}
	lockedOnce := func(p string) error {
		if filepath.Base(p) == "output_movie.mp4" {
			return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrPermission}
		}
		return os.Remove(p)
	}

	r := NewReclaimer(WithRemoveFuncs(removeAll, lockedOnce), WithSleep(noSleep(&sleeps)))

	assert.True(t, r.Reclaim(context.Background(), dir))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, sleeps)
	assert.NoDirExists(t, dir)
}

func TestReclaimer_NonLockErrorFailsImmediately(t *testing.T) {
	calls, sleeps := 0, 0
	removeAll := func(string) error {
		calls++
		return errors.New("disk on fire")
	}

	r := NewReclaimer(WithRemoveFuncs(removeAll, nil), WithSleep(noSleep(&sleeps)))

	assert.False(t, r.Reclaim(context.Background(), t.TempDir()))
	assert.Equal(t, 1, calls)
	assert.Zero(t, sleeps)
}

func TestReclaimer_CancelledWhileWaiting(t *testing.T) {
	dir := makeTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	removeAll := func(p string) error {
		calls++
		return &fs.PathError{Op: "unlinkat", Path: p, Err: fs.ErrPermission}
	}
	remove := func(string) error { return fs.ErrPermission }

	r := NewReclaimer(WithRemoveFuncs(removeAll, remove), WithBackoff(time.Minute))

	assert.False(t, r.Reclaim(ctx, dir))
	assert.Equal(t, 1, calls)
}
