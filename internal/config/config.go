// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrOpenRouterAPIKeyRequired is returned when OPENROUTER_API_KEY is not set.
	ErrOpenRouterAPIKeyRequired = errors.New("config: OPENROUTER_API_KEY is required")
	// ErrTogetherAPIKeyRequired is returned when TOGETHER_API_KEY is not set.
	ErrTogetherAPIKeyRequired = errors.New("config: TOGETHER_API_KEY is required")
	// ErrInvalidValue is returned when a setting is outside its accepted range.
	ErrInvalidValue = errors.New("config: invalid value")
)

// DefaultEnvFile is loaded before reading the environment, when present.
const DefaultEnvFile = ".env"

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Task settings
	WorkspaceRoot string        `env:"WORKSPACE_ROOT, default=temp" json:"workspace_root"`
	MaxScenes     int           `env:"MAX_SCENES, default=6" json:"max_scenes"`
	Workers       int           `env:"WORKERS, default=2" json:"workers"`
	QueueSize     int           `env:"QUEUE_SIZE, default=16" json:"queue_size"`
	TaskTimeout   time.Duration `env:"TASK_TIMEOUT, default=30m" json:"task_timeout"`

	// Retention settings
	Retention       time.Duration `env:"RETENTION, default=24h" json:"retention"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL, default=1h" json:"sweep_interval"`
	ReclaimAttempts int           `env:"RECLAIM_ATTEMPTS, default=3" json:"reclaim_attempts"`
	ReclaimBackoff  time.Duration `env:"RECLAIM_BACKOFF, default=500ms" json:"reclaim_backoff"`

	// Scene generator settings
	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY, required" json:"-"` // Masked in JSON
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL, default=https://openrouter.ai/api/v1" json:"openrouter_base_url"`
	OpenRouterModel   string `env:"OPENROUTER_MODEL, default=qwen/qwen3-1.7b:free" json:"openrouter_model"`
	PromptsFile       string `env:"PROMPTS_FILE" json:"prompts_file,omitempty"`

	// Image generator settings
	TogetherAPIKey  string `env:"TOGETHER_API_KEY, required" json:"-"` // Masked in JSON
	TogetherBaseURL string `env:"TOGETHER_BASE_URL, default=https://api.together.xyz/v1" json:"together_base_url"`
	TogetherModel   string `env:"TOGETHER_MODEL, default=black-forest-labs/FLUX.1-schnell-Free" json:"together_model"`
	ImageWidth      int    `env:"IMAGE_WIDTH, default=1024" json:"image_width"`
	ImageHeight     int    `env:"IMAGE_HEIGHT, default=1024" json:"image_height"`

	// Speech and video settings
	TTSCommand  string `env:"TTS_COMMAND, default=gtts-cli" json:"tts_command"`
	TTSLang     string `env:"TTS_LANG, default=en" json:"tts_lang"`
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	VideoFPS    int    `env:"VIDEO_FPS, default=24" json:"video_fps"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=videos" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads DefaultEnvFile, if present, and then the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	return LoadWithEnvFile(DefaultEnvFile)
}

// LoadWithEnvFile is Load with a custom .env path. An empty path skips the file.
func LoadWithEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
			return nil, ErrOpenRouterAPIKeyRequired
		}
		if strings.Contains(err.Error(), "TOGETHER_API_KEY") {
			return nil, ErrTogetherAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and in range.
func (c *Config) Validate() error {
	if c.OpenRouterAPIKey == "" {
		return ErrOpenRouterAPIKeyRequired
	}
	if c.TogetherAPIKey == "" {
		return ErrTogetherAPIKeyRequired
	}

	switch {
	case c.MaxScenes < 1:
		return fmt.Errorf("%w: MAX_SCENES must be at least 1", ErrInvalidValue)
	case c.Workers < 1:
		return fmt.Errorf("%w: WORKERS must be at least 1", ErrInvalidValue)
	case c.QueueSize < 0:
		return fmt.Errorf("%w: QUEUE_SIZE must not be negative", ErrInvalidValue)
	case c.Retention <= 0:
		return fmt.Errorf("%w: RETENTION must be positive", ErrInvalidValue)
	case c.ReclaimAttempts < 1:
		return fmt.Errorf("%w: RECLAIM_ATTEMPTS must be at least 1", ErrInvalidValue)
	case c.TaskTimeout < 0 || c.SweepInterval < 0 || c.ReclaimBackoff < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidValue)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, WorkspaceRoot: %s, MaxScenes: %d, Workers: %d, QueueSize: %d, TaskTimeout: %s, Retention: %s, SweepInterval: %s, OpenRouterModel: %s, TogetherModel: %s, TTSCommand: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.WorkspaceRoot,
		c.MaxScenes,
		c.Workers,
		c.QueueSize,
		c.TaskTimeout,
		c.Retention,
		c.SweepInterval,
		c.OpenRouterModel,
		c.TogetherModel,
		c.TTSCommand,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
