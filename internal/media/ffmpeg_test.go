package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maauso/clipgen-api/internal/scene"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestImage creates a solid color PNG using ffmpeg.
func createTestImage(t *testing.T, path string, width, height int) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=red:s=%dx%d:d=1", width, height),
		"-frames:v", "1",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test image: %v\noutput: %s", err, output)
	}
}

// createTestAudio creates a sine tone MP3 of the given duration using ffmpeg.
func createTestAudio(t *testing.T, path string, duration float64) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=440:duration=%.1f", duration),
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test audio: %v\noutput: %s", err, output)
	}
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, color string) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=64x64:d=%.1f", color, duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegCompositor(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewFFmpegCompositor("")
		if c.ffmpegPath != "ffmpeg" || c.ffprobePath != "ffprobe" {
			t.Errorf("unexpected default paths %q %q", c.ffmpegPath, c.ffprobePath)
		}
		if c.fps != DefaultFPS {
			t.Errorf("expected fps %d, got %d", DefaultFPS, c.fps)
		}
	})

	t.Run("custom", func(t *testing.T) {
		c := NewFFmpegCompositor("/usr/local/bin/ffmpeg", WithFFprobePath("/usr/local/bin/ffprobe"), WithFPS(30))
		if c.ffmpegPath != "/usr/local/bin/ffmpeg" || c.ffprobePath != "/usr/local/bin/ffprobe" {
			t.Errorf("unexpected paths %q %q", c.ffmpegPath, c.ffprobePath)
		}
		if c.fps != 30 {
			t.Errorf("expected fps 30, got %d", c.fps)
		}
	})
}

func TestCompose_ZeroPairs(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "output_movie.mp4")

	// No ffmpeg needed: pairing fails before any command runs.
	c := NewFFmpegCompositor(filepath.Join(dir, "no-ffmpeg"))
	err := c.Compose(context.Background(), []scene.Asset{
		{SceneID: "scene0", ImagePath: filepath.Join(dir, "images", "scene0.png"), AudioPath: filepath.Join(dir, "Audio", "scene0.mp3")},
	}, output)

	if !errors.Is(err, ErrNoValidClips) {
		t.Fatalf("expected ErrNoValidClips, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("no output file should exist")
	}
}

func TestCompose_SkipsSceneMissingImage(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	audio := filepath.Join(dir, "Audio")
	for _, d := range []string{images, audio} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	var assets []scene.Asset
	for i := 0; i < 3; i++ {
		id := scene.SceneID(i)
		a := scene.Asset{
			Index:     i,
			SceneID:   id,
			ImagePath: filepath.Join(images, id+".png"),
			AudioPath: filepath.Join(audio, id+".mp3"),
		}
		createTestAudio(t, a.AudioPath, 1.0)
		if i != 1 {
			createTestImage(t, a.ImagePath, 64, 64)
		}
		assets = append(assets, a)
	}

	output := filepath.Join(dir, "output_movie.mp4")
	c := NewFFmpegCompositor("")
	if err := c.Compose(context.Background(), assets, output); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	// Two one-second clips.
	duration := getVideoDuration(t, output)
	if duration < 1.8 || duration > 2.4 {
		t.Errorf("expected ~2s video built from 2 scenes, got %.2fs", duration)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("temporary entry left behind: %s", e.Name())
		}
	}
}

func TestJoinVideos(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	c := NewFFmpegCompositor("")

	t.Run("join multiple videos", func(t *testing.T) {
		video1 := filepath.Join(tmpDir, "video1.mp4")
		video2 := filepath.Join(tmpDir, "video2.mp4")
		output := filepath.Join(tmpDir, "joined.mp4")

		createTestVideo(t, video1, 0.5, "red")
		createTestVideo(t, video2, 0.5, "blue")

		if err := c.JoinVideos(context.Background(), []string{video1, video2}, output); err != nil {
			t.Fatalf("JoinVideos failed: %v", err)
		}

		info, err := os.Stat(output)
		if err != nil {
			t.Fatalf("output file was not created: %v", err)
		}
		if info.Size() == 0 {
			t.Error("output file is empty")
		}

		duration := getVideoDuration(t, output)
		if duration < 0.9 || duration > 1.1 {
			t.Errorf("expected joined video duration ~1.0s, got %.2f", duration)
		}
	})

	t.Run("single video", func(t *testing.T) {
		video := filepath.Join(tmpDir, "single.mp4")
		output := filepath.Join(tmpDir, "single_out.mp4")

		createTestVideo(t, video, 0.5, "green")

		if err := c.JoinVideos(context.Background(), []string{video}, output); err != nil {
			t.Fatalf("JoinVideos with single video failed: %v", err)
		}
		if _, err := os.Stat(output); os.IsNotExist(err) {
			t.Error("output file was not created")
		}
	})

	t.Run("empty video list", func(t *testing.T) {
		err := c.JoinVideos(context.Background(), []string{}, filepath.Join(tmpDir, "empty.mp4"))
		if !errors.Is(err, ErrNoVideoPaths) {
			t.Errorf("expected ErrNoVideoPaths, got %v", err)
		}
	})

	t.Run("non-existent video", func(t *testing.T) {
		err := c.JoinVideos(context.Background(), []string{"/nonexistent/video.mp4"}, filepath.Join(tmpDir, "out.mp4"))
		if err == nil {
			t.Error("expected error for non-existent video, got nil")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		video1 := filepath.Join(tmpDir, "cancel1.mp4")
		video2 := filepath.Join(tmpDir, "cancel2.mp4")
		output := filepath.Join(tmpDir, "cancelled.mp4")

		createTestVideo(t, video1, 0.5, "red")
		createTestVideo(t, video2, 0.5, "blue")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := c.JoinVideos(ctx, []string{video1, video2}, output); err == nil {
			t.Error("expected error for cancelled context, got nil")
		}
	})
}

func TestRenderStillClip_InvalidDuration(t *testing.T) {
	c := NewFFmpegCompositor("")
	err := c.RenderStillClip(context.Background(), "a.png", "a.mp3", 0, "out.mp4")
	if !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestMediaDuration(t *testing.T) {
	skipIfNoFFmpeg(t)

	path := filepath.Join(t.TempDir(), "tone.mp3")
	createTestAudio(t, path, 1.5)

	d, err := NewFFmpegCompositor("").MediaDuration(context.Background(), path)
	if err != nil {
		t.Fatalf("MediaDuration failed: %v", err)
	}
	if d < 1.4 || d > 1.7 {
		t.Errorf("expected ~1.5s, got %.2f", d)
	}
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.mp4", "-c", "copy", "output.mp4"},
		Stderr: "Error opening input file",
		Err:    fmt.Errorf("exit status 1"),
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "exit status 1") {
		t.Error("Error() should contain underlying error")
	}
	if !strings.Contains(errStr, "Error opening input file") {
		t.Error("Error() should contain stderr")
	}

	unwrapped := err.Unwrap()
	if unwrapped == nil || unwrapped.Error() != "exit status 1" {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}

func getVideoDuration(t *testing.T, path string) float64 {
	t.Helper()

	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("ffprobe failed: %v", err)
	}

	var duration float64
	if _, err := fmt.Sscanf(string(output), "%f", &duration); err != nil {
		t.Fatalf("failed to parse duration: %s", output)
	}

	return duration
}
