package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/clipgen-api/internal/scene"
)

// Static errors for media operations.
var (
	// ErrNoVideoPaths is returned when no video paths are provided for joining.
	ErrNoVideoPaths = errors.New("no video paths provided")
	// ErrInvalidDuration is returned when duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// DefaultFPS is the frame rate of rendered clips.
const DefaultFPS = 24

// Compile-time check that FFmpegCompositor implements Compositor.
var _ Compositor = (*FFmpegCompositor)(nil)

// FFmpegCompositor implements Compositor using the ffmpeg and ffprobe CLIs.
type FFmpegCompositor struct {
	ffmpegPath  string
	ffprobePath string
	fps         int
	logger      *slog.Logger
}

// CompositorOption configures an FFmpegCompositor.
type CompositorOption func(*FFmpegCompositor)

// WithFFprobePath sets the ffprobe binary. Defaults to "ffprobe".
func WithFFprobePath(path string) CompositorOption {
	return func(c *FFmpegCompositor) {
		if path != "" {
			c.ffprobePath = path
		}
	}
}

// WithFPS sets the output frame rate.
func WithFPS(fps int) CompositorOption {
	return func(c *FFmpegCompositor) {
		if fps > 0 {
			c.fps = fps
		}
	}
}

// WithLogger sets the logger used for skipped scenes.
func WithLogger(logger *slog.Logger) CompositorOption {
	return func(c *FFmpegCompositor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewFFmpegCompositor creates a new FFmpegCompositor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegCompositor(ffmpegPath string, opts ...CompositorOption) *FFmpegCompositor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	c := &FFmpegCompositor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
		fps:         DefaultFPS,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "compositor")
	return c
}

// Compose renders one still-image clip per valid scene, lasting as long as its
// narration, and concatenates the clips into output.
func (c *FFmpegCompositor) Compose(ctx context.Context, assets []scene.Asset, output string) error {
	pairs, skipped := SelectPairs(assets)
	for _, s := range skipped {
		c.logger.Warn("Skipping scene", "scene", s.SceneID, "reason", s.Reason)
	}
	if len(pairs) == 0 {
		return ErrNoValidClips
	}

	clipDir, err := os.MkdirTemp(filepath.Dir(output), ".clips-*")
	if err != nil {
		return fmt.Errorf("create clip dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(clipDir) }()

	clips := make([]string, 0, len(pairs))
	for _, p := range pairs {
		duration, err := c.MediaDuration(ctx, p.AudioPath)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Warn("Skipping scene with unreadable audio", "scene", p.SceneID, "error", err)
			continue
		}

		clip := filepath.Join(clipDir, p.SceneID+".mp4")
		if err := c.RenderStillClip(ctx, p.ImagePath, p.AudioPath, duration, clip); err != nil {
			return fmt.Errorf("render %s: %w", p.SceneID, err)
		}
		clips = append(clips, clip)
	}
	if len(clips) == 0 {
		return ErrNoValidClips
	}

	c.logger.Debug("Joining clips", "clips", len(clips), "skipped", len(pairs)-len(clips)+len(skipped))
	if err := c.JoinVideos(ctx, clips, output); err != nil {
		_ = os.Remove(output)
		return err
	}
	return nil
}

// RenderStillClip encodes image as a video of the given duration with audio as its soundtrack.
func (c *FFmpegCompositor) RenderStillClip(ctx context.Context, imagePath, audioPath string, duration float64, output string) error {
	if duration <= 0 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidDuration, duration)
	}

	fps := strconv.Itoa(c.fps)
	args := []string{
		"-y",
		"-loop", "1", // Loop the input image
		"-framerate", fps,
		"-i", imagePath,
		"-i", audioPath,
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		// libx264 with yuv420p needs even dimensions
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p",
		"-r", fps,
		"-c:v", "libx264",
		"-preset", "fast",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		output,
	}
	return c.runFFmpeg(ctx, args)
}

// JoinVideos concatenates multiple video files into a single output file.
// It first attempts a fast copy (no re-encoding) and falls back to re-encoding
// with libx264/aac if the copy fails.
func (c *FFmpegCompositor) JoinVideos(ctx context.Context, videoPaths []string, output string) error {
	if len(videoPaths) == 0 {
		return ErrNoVideoPaths
	}

	if len(videoPaths) == 1 {
		return copyFile(videoPaths[0], output)
	}

	listFile, err := createConcatList(filepath.Dir(output), videoPaths)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	err = c.joinWithCopy(ctx, listFile, output)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	c.logger.Debug("Stream copy failed, re-encoding", "error", err)
	return c.joinWithReencode(ctx, listFile, output)
}

func (c *FFmpegCompositor) joinWithCopy(ctx context.Context, listFile, output string) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0", // Allow absolute paths
		"-i", listFile,
		"-c", "copy",
		output,
	}
	return c.runFFmpeg(ctx, args)
}

func (c *FFmpegCompositor) joinWithReencode(ctx context.Context, listFile, output string) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-r", strconv.Itoa(c.fps),
		"-c:a", "aac",
		"-b:a", "128k",
		output,
	}
	return c.runFFmpeg(ctx, args)
}

// createConcatList writes the ffmpeg concat demuxer input listing videoPaths.
func createConcatList(dir string, videoPaths []string) (string, error) {
	f, err := os.CreateTemp(dir, ".concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range videoPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Name(), nil
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src) // #nosec G304 - src is a clip rendered by this package
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	if err := os.WriteFile(dst, input, 0o600); err != nil {
		return fmt.Errorf("write destination file: %w", err)
	}
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (c *FFmpegCompositor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// MediaDuration returns the duration in seconds of a media file, read with ffprobe.
func (c *FFmpegCompositor) MediaDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%w: got %.2f", ErrInvalidDuration, duration)
	}
	return duration, nil
}
