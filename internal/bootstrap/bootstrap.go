// Package bootstrap provides dependency initialization for the clip generation API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/clipgen-api/internal/cleanup"
	"github.com/maauso/clipgen-api/internal/config"
	"github.com/maauso/clipgen-api/internal/dispatch"
	"github.com/maauso/clipgen-api/internal/media"
	"github.com/maauso/clipgen-api/internal/openrouter"
	"github.com/maauso/clipgen-api/internal/pipeline"
	"github.com/maauso/clipgen-api/internal/prompt"
	"github.com/maauso/clipgen-api/internal/scene"
	"github.com/maauso/clipgen-api/internal/server"
	"github.com/maauso/clipgen-api/internal/storage"
	"github.com/maauso/clipgen-api/internal/task"
	"github.com/maauso/clipgen-api/internal/together"
	"github.com/maauso/clipgen-api/internal/tts"
	"github.com/maauso/clipgen-api/internal/workspace"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Workspaces *workspace.Manager
	Store      task.StatusStore
	Reclaimer  *cleanup.Reclaimer
	Sweeper    *cleanup.Sweeper
	Dispatcher *dispatch.Dispatcher
	Handlers   *server.Handlers
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	workspaces, err := workspace.NewManager(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("create workspace manager: %w", err)
	}
	store := task.NewFileStore()

	prompts, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	// Initialize external generators
	llm, err := openrouter.NewClient(cfg.OpenRouterAPIKey,
		openrouter.WithBaseURL(cfg.OpenRouterBaseURL),
		openrouter.WithModel(cfg.OpenRouterModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create OpenRouter client: %w", err)
	}

	imageOpts := together.DefaultImageOptions()
	imageOpts.Width = cfg.ImageWidth
	imageOpts.Height = cfg.ImageHeight
	images, err := together.NewClient(cfg.TogetherAPIKey,
		together.WithBaseURL(cfg.TogetherBaseURL),
		together.WithModel(cfg.TogetherModel),
		together.WithImageOptions(imageOpts),
	)
	if err != nil {
		return nil, fmt.Errorf("create Together client: %w", err)
	}

	speech := tts.NewCommandSynthesizer(cfg.TTSCommand, cfg.TTSLang)
	compositor := media.NewFFmpegCompositor(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithFPS(cfg.VideoFPS),
		media.WithLogger(logger),
	)

	driverOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	publisher, err := initPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		driverOpts = append(driverOpts, pipeline.WithPublisher(publisher))
	}

	driver := pipeline.NewDriver(
		store,
		scene.NewLLMGenerator(llm, prompts),
		images,
		speech,
		compositor,
		driverOpts...,
	)

	reclaimer := cleanup.NewReclaimer(
		cleanup.WithAttempts(cfg.ReclaimAttempts),
		cleanup.WithBackoff(cfg.ReclaimBackoff),
		cleanup.WithReclaimerLogger(logger),
	)

	dispatcher := dispatch.New(
		dispatch.Config{
			Workers:     cfg.Workers,
			QueueSize:   cfg.QueueSize,
			MaxScenes:   cfg.MaxScenes,
			TaskTimeout: cfg.TaskTimeout,
		},
		driver,
		workspaces,
		store,
		reclaimer,
		dispatch.WithLogger(logger),
	)

	sweeper := cleanup.NewSweeper(workspaces, reclaimer,
		cleanup.WithInFlight(dispatcher),
		cleanup.WithStatusStore(store),
		cleanup.WithSweeperLogger(logger),
	)

	handlers := server.NewHandlers(server.Dependencies{
		Tasks:      dispatcher,
		Workspaces: workspaces,
		Store:      store,
		Sweeper:    sweeper,
		Reclaimer:  reclaimer,
	}, logger, server.WithRetention(cfg.Retention))

	return &Dependencies{
		Workspaces: workspaces,
		Store:      store,
		Reclaimer:  reclaimer,
		Sweeper:    sweeper,
		Dispatcher: dispatcher,
		Handlers:   handlers,
	}, nil
}

// initPublisher returns the S3 publisher when S3 is configured, nil otherwise.
func initPublisher(cfg *config.Config, logger *slog.Logger) (storage.Publisher, error) {
	if !cfg.S3Enabled() {
		logger.Info("S3 publishing disabled, videos served from workspace only")
		return nil, nil
	}

	publisher, err := storage.NewS3Publisher(storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Prefix:          cfg.S3Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 publisher: %w", err)
	}
	logger.Info("S3 publishing configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return publisher, nil
}
