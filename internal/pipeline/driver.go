// Package pipeline runs one task through scene generation, per-scene asset
// generation and video composition, persisting every stage change.
//
// Failures never escape as panics or unrecorded errors: every outcome ends
// in the status store as Done or Error with a machine-readable kind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/maauso/clipgen-api/internal/media"
	"github.com/maauso/clipgen-api/internal/scene"
	"github.com/maauso/clipgen-api/internal/storage"
	"github.com/maauso/clipgen-api/internal/task"
	"github.com/maauso/clipgen-api/internal/workspace"
)

// Fixed failure messages.
const (
	MsgVideoCreationFailed = "Video creation failed"
	MsgNoValidClips        = "No valid video clips created"
	MsgNoScenes            = "No scenes generated"
)

// SceneGenerator returns the raw language model reply for a topic.
type SceneGenerator interface {
	Generate(ctx context.Context, topic string, count int) (string, error)
}

// ImageGenerator writes <outputDir>/<sceneID>.png and returns its path.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, sceneID, outputDir string) (string, error)
}

// SpeechSynthesizer writes <outputDir>/<sceneID>.mp3 and returns its path.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, sceneID, outputDir string) (string, error)
}

// Driver executes the pipeline for one task at a time per call.
// A Driver is safe for concurrent use by multiple tasks.
type Driver struct {
	store      task.StatusStore
	scenes     SceneGenerator
	images     ImageGenerator
	speech     SpeechSynthesizer
	compositor media.Compositor
	publisher  storage.Publisher
	logger     *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithPublisher uploads finished videos. Publishing failures are logged only.
func WithPublisher(p storage.Publisher) Option {
	return func(d *Driver) { d.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDriver creates a pipeline driver.
func NewDriver(
	store task.StatusStore,
	scenes SceneGenerator,
	images ImageGenerator,
	speech SpeechSynthesizer,
	compositor media.Compositor,
	opts ...Option,
) *Driver {
	d := &Driver{
		store:      store,
		scenes:     scenes,
		images:     images,
		speech:     speech,
		compositor: compositor,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "pipeline")
	return d
}

// stageError carries the failure kind a stage decided on.
type stageError struct {
	kind task.ErrorKind
	msg  string
	err  error
}

func (e *stageError) Error() string { return e.msg }
func (e *stageError) Unwrap() error { return e.err }

func fail(kind task.ErrorKind, msg string, err error) *stageError {
	return &stageError{kind: kind, msg: msg, err: err}
}

// Run drives t from Queued to Done or Error. The outcome is always recorded
// in the status store; the returned error describes a recorded failure, or a
// failure to record.
func (d *Driver) Run(ctx context.Context, t *task.Task, ws workspace.Workspace) (err error) {
	logger := d.logger.With(slog.String("task_id", t.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panicked", "panic", r, "stack", string(debug.Stack()))
			err = d.Fail(ctx, t, ws, task.KindInternal, fmt.Sprintf("internal error: %v", r))
			if err == nil {
				err = fmt.Errorf("pipeline panic: %v", r)
			}
		}
	}()

	logger.Info("Pipeline started", "topic", t.Topic, "num_scenes", t.NumScenes)

	if serr := d.run(ctx, t, ws, logger); serr != nil {
		kind := serr.kind
		// Deadline and cancellation win over whatever the interrupted stage saw.
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			kind, serr.msg = task.KindTimeout, "task timed out"
		case ctx.Err() != nil:
			kind, serr.msg = task.KindCancelled, "task cancelled"
		}
		logger.Warn("Pipeline failed", "stage", t.Stage, "kind", kind, "error", serr.err)
		if werr := d.Fail(ctx, t, ws, kind, serr.msg); werr != nil {
			return werr
		}
		return serr
	}

	logger.Info("Pipeline finished", "output", t.OutputFile, "video_url", t.VideoURL)
	return nil
}

// Fail records t as failed. It is used for tasks that never reach Run, such as
// those cancelled while queued. Writes are not bound to ctx's cancellation.
func (d *Driver) Fail(ctx context.Context, t *task.Task, ws workspace.Workspace, kind task.ErrorKind, msg string) error {
	if t.IsTerminal() {
		return nil
	}
	if err := t.Fail(kind, msg); err != nil {
		return err
	}
	if err := d.store.Write(context.WithoutCancel(ctx), ws.Dir, t.Record()); err != nil {
		d.logger.Error("Failed to record failure", "task_id", t.ID, "error", err)
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (d *Driver) run(ctx context.Context, t *task.Task, ws workspace.Workspace, logger *slog.Logger) *stageError {
	if err := d.advance(ctx, t, ws, task.StageGeneratingScenes); err != nil {
		return err
	}
	scenes, serr := d.generateScenes(ctx, t)
	if serr != nil {
		return serr
	}
	logger.Info("Scenes generated", "count", len(scenes))

	if err := d.advance(ctx, t, ws, task.StageProcessingScenes); err != nil {
		return err
	}
	if serr := d.processScenes(ctx, t, ws, scenes, logger); serr != nil {
		return serr
	}

	if err := d.advance(ctx, t, ws, task.StageCreatingVideo); err != nil {
		return err
	}
	if serr := d.createVideo(ctx, ws); serr != nil {
		return serr
	}

	digest, err := storage.FileDigest(ws.OutputFile())
	if err != nil {
		return fail(task.KindInternal, err.Error(), err)
	}
	d.publish(ctx, t, ws, logger)

	if err := t.Complete(ws.OutputFile(), digest); err != nil {
		return fail(task.KindInternal, err.Error(), err)
	}
	if err := d.store.Write(context.WithoutCancel(ctx), ws.Dir, t.Record()); err != nil {
		return fail(task.KindInternal, err.Error(), err)
	}
	return nil
}

func (d *Driver) advance(ctx context.Context, t *task.Task, ws workspace.Workspace, stage task.Stage) *stageError {
	if err := ctx.Err(); err != nil {
		return fail(task.KindCancelled, err.Error(), err)
	}
	if err := t.Advance(stage); err != nil {
		return fail(task.KindInternal, fmt.Sprintf("advance to %s: %v", stage, err), err)
	}
	if err := d.store.Write(ctx, ws.Dir, t.Record()); err != nil {
		return fail(task.KindInternal, err.Error(), err)
	}
	return nil
}

func (d *Driver) generateScenes(ctx context.Context, t *task.Task) ([]scene.Scene, *stageError) {
	raw, err := d.scenes.Generate(ctx, t.Topic, t.NumScenes)
	if err != nil {
		return nil, fail(task.KindSceneGeneration, err.Error(), err)
	}

	scenes, err := scene.Parse(raw, t.NumScenes)
	switch {
	case errors.Is(err, scene.ErrNoScenes):
		return nil, fail(task.KindUpstreamEmpty, MsgNoScenes, err)
	case err != nil:
		return nil, fail(task.KindUpstreamFormat, err.Error(), err)
	}
	return scenes, nil
}

// processScenes generates assets in scene order and records them in the
// workspace manifest. The first failure aborts the task.
func (d *Driver) processScenes(ctx context.Context, t *task.Task, ws workspace.Workspace, scenes []scene.Scene, logger *slog.Logger) *stageError {
	manifest := scene.Manifest{TaskID: t.ID, Scenes: make([]scene.Asset, 0, len(scenes))}

	for _, s := range scenes {
		if err := ctx.Err(); err != nil {
			return fail(task.KindCancelled, err.Error(), err)
		}

		imagePath, err := d.images.GenerateImage(ctx, s.ImagePrompt, s.ID(), ws.ImagesDir)
		if err != nil {
			return fail(task.KindSceneAsset, fmt.Sprintf("%s image: %v", s.ID(), err), err)
		}
		audioPath, err := d.speech.Synthesize(ctx, s.Text, s.ID(), ws.AudioDir)
		if err != nil {
			return fail(task.KindSceneAsset, fmt.Sprintf("%s audio: %v", s.ID(), err), err)
		}

		manifest.Scenes = append(manifest.Scenes, scene.NewAsset(s, imagePath, audioPath))
		logger.Debug("Scene assets ready", "scene", s.ID())
	}

	if err := scene.WriteManifest(ctx, ws.ManifestFile(), manifest); err != nil {
		return fail(task.KindInternal, err.Error(), err)
	}
	return nil
}

// createVideo composes the scenes listed in the workspace manifest.
func (d *Driver) createVideo(ctx context.Context, ws workspace.Workspace) *stageError {
	manifest, err := scene.ReadManifest(ws.ManifestFile())
	if err != nil {
		return fail(task.KindInternal, err.Error(), err)
	}

	output := ws.OutputFile()
	err = d.compositor.Compose(ctx, manifest.Scenes, output)
	switch {
	case errors.Is(err, media.ErrNoValidClips):
		return fail(task.KindNoValidClips, MsgNoValidClips, err)
	case err != nil:
		return fail(task.KindComposition, err.Error(), err)
	}

	// The compositor can return normally without producing anything.
	info, statErr := os.Stat(output)
	if statErr != nil || info.Size() == 0 {
		if statErr == nil {
			statErr = fs.ErrNotExist
		}
		return fail(task.KindMissingOutput, MsgVideoCreationFailed, statErr)
	}
	return nil
}

func (d *Driver) publish(ctx context.Context, t *task.Task, ws workspace.Workspace, logger *slog.Logger) {
	if d.publisher == nil {
		return
	}
	f, err := os.Open(ws.OutputFile())
	if err != nil {
		logger.Warn("Publish skipped", "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	url, err := d.publisher.Publish(ctx, t.ID+".mp4", f)
	if err != nil {
		logger.Warn("Publish failed, video stays available for local download", "error", err)
		return
	}
	t.VideoURL = url
	logger.Info("Video published", "url", url)
}
