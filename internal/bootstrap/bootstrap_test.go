package bootstrap

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipgen-api/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkspaceRoot:     filepath.Join(t.TempDir(), "temp"),
		MaxScenes:         6,
		Workers:           1,
		QueueSize:         4,
		TaskTimeout:       time.Minute,
		Retention:         time.Hour,
		ReclaimAttempts:   2,
		ReclaimBackoff:    time.Millisecond,
		OpenRouterAPIKey:  "or-key",
		OpenRouterBaseURL: "http://localhost:1",
		OpenRouterModel:   "test-model",
		TogetherAPIKey:    "tg-key",
		TogetherBaseURL:   "http://localhost:1",
		TogetherModel:     "test-image-model",
		ImageWidth:        512,
		ImageHeight:       512,
		TTSCommand:        "gtts-cli",
		TTSLang:           "en",
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		VideoFPS:          24,
	}
}

func TestNewDependencies(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(cfg, logger)
	require.NoError(t, err)

	assert.NotNil(t, deps.Dispatcher)
	assert.NotNil(t, deps.Sweeper)
	assert.NotNil(t, deps.Handlers)
	assert.Equal(t, cfg.WorkspaceRoot, deps.Workspaces.Root())
	assert.Equal(t, 6, deps.Dispatcher.MaxScenes())
}

func TestNewDependencies_WithS3(t *testing.T) {
	cfg := testConfig(t)
	cfg.S3Bucket = "bucket"
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.AWSAccessKeyID = "key"
	cfg.AWSSecretAccessKey = "secret"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(cfg, logger)
	require.NoError(t, err)
	assert.NotNil(t, deps.Dispatcher)
}

func TestNewDependencies_BadPromptsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.PromptsFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewDependencies(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
