// Package task provides the Task aggregate for clip generation requests.
// It includes the Stage state machine the pipeline walks through, the
// structured failure model, and the status record persisted per workspace.
package task

import (
	"errors"
	"slices"
	"time"
)

// Stage is a named step of the pipeline state machine.
type Stage string

const (
	// StageQueued is written synchronously at submission, before any work runs.
	StageQueued Stage = "Queued"
	// StageGeneratingScenes indicates the language model is producing the scene list.
	StageGeneratingScenes Stage = "Generating scenes"
	// StageProcessingScenes indicates images and narration are being generated per scene.
	StageProcessingScenes Stage = "Processing scenes"
	// StageCreatingVideo indicates the compositor is stitching the final video.
	StageCreatingVideo Stage = "Creating video"
	// StageDone is terminal success; the record carries the output path.
	StageDone Stage = "Done"
	// StageError is terminal failure; the record carries a Failure.
	StageError Stage = "Error"
)

// ErrInvalidTransition is returned when an invalid stage transition is attempted.
var ErrInvalidTransition = errors.New("invalid stage transition")

// validTransitions defines which stage transitions are allowed.
// StageError is reachable from every non-terminal stage.
var validTransitions = map[Stage][]Stage{
	StageQueued:           {StageGeneratingScenes, StageError},
	StageGeneratingScenes: {StageProcessingScenes, StageError},
	StageProcessingScenes: {StageCreatingVideo, StageError},
	StageCreatingVideo:    {StageDone, StageError},
	StageDone:             {},
	StageError:            {},
}

// canTransition checks if a transition from one stage to another is valid.
func canTransition(from, to Stage) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// IsTerminal returns true for Done and Error.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageError
}

// IsValid returns true if s is one of the known stages.
func (s Stage) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// ErrorKind is a machine-readable classification of a task failure.
type ErrorKind string

const (
	// KindSceneGeneration means the scene generator call itself failed.
	KindSceneGeneration ErrorKind = "scene_generation"
	// KindUpstreamFormat means the scene generator output could not be parsed.
	KindUpstreamFormat ErrorKind = "upstream_format"
	// KindUpstreamEmpty means the scene generator returned zero scenes.
	KindUpstreamEmpty ErrorKind = "upstream_empty"
	// KindSceneAsset means an image or narration generation failed.
	KindSceneAsset ErrorKind = "scene_asset"
	// KindComposition means the compositor returned an error.
	KindComposition ErrorKind = "composition"
	// KindNoValidClips means no scene had both an image and an audio file.
	KindNoValidClips ErrorKind = "no_valid_clips"
	// KindMissingOutput means the compositor returned normally but wrote no file.
	KindMissingOutput ErrorKind = "missing_output"
	// KindCancelled means the task was cancelled before finishing.
	KindCancelled ErrorKind = "cancelled"
	// KindTimeout means the task exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindAbandoned means the process running the task went away mid-flight.
	KindAbandoned ErrorKind = "abandoned"
	// KindInternal covers unexpected failures such as recovered panics.
	KindInternal ErrorKind = "internal"
)

// Failure describes why a task ended in StageError.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Task is the unit of work for one generation request.
// A Task is owned by a single pipeline run and is not safe for concurrent mutation.
type Task struct {
	// ID is the opaque identifier, also the workspace directory name.
	ID string
	// Topic is the subject the scenes are generated about.
	Topic string
	// NumScenes is the number of scenes requested.
	NumScenes int
	// Stage is the current lifecycle stage.
	Stage Stage
	// Failure is set only when Stage is StageError.
	Failure *Failure
	// OutputFile is set only when Stage is StageDone.
	OutputFile string
	// OutputDigest is the hex blake3 digest of OutputFile.
	OutputDigest string
	// VideoURL is the published location of the video, if publishing is enabled.
	VideoURL string
	// CreatedAt is when the task was accepted.
	CreatedAt time.Time
	// UpdatedAt is when the stage last changed.
	UpdatedAt time.Time
}

// New creates a Task in StageQueued.
func New(id, topic string, numScenes int) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		Topic:     topic,
		NumScenes: numScenes,
		Stage:     StageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the task to the next stage.
// Returns ErrInvalidTransition if the transition is not allowed.
func (t *Task) Advance(stage Stage) error {
	if stage == StageDone || stage == StageError {
		// Terminal stages carry data; use Complete or Fail.
		return ErrInvalidTransition
	}
	return t.transitionTo(stage)
}

// Complete transitions the task to StageDone with its output file.
func (t *Task) Complete(outputFile, digest string) error {
	if err := t.transitionTo(StageDone); err != nil {
		return err
	}
	t.OutputFile = outputFile
	t.OutputDigest = digest
	return nil
}

// Fail transitions the task to StageError.
func (t *Task) Fail(kind ErrorKind, message string) error {
	if err := t.transitionTo(StageError); err != nil {
		return err
	}
	t.Failure = &Failure{Kind: kind, Message: message}
	return nil
}

// IsTerminal returns true if the task is in a terminal stage.
func (t *Task) IsTerminal() bool {
	return t.Stage.IsTerminal()
}

func (t *Task) transitionTo(stage Stage) error {
	if !canTransition(t.Stage, stage) {
		return ErrInvalidTransition
	}
	t.Stage = stage
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Record returns the persisted form of the task.
func (t *Task) Record() Record {
	rec := Record{
		TaskID:    t.ID,
		Stage:     t.Stage,
		UpdatedAt: t.UpdatedAt,
	}
	if t.Stage == StageDone {
		rec.OutputFile = t.OutputFile
		rec.OutputDigest = t.OutputDigest
		rec.VideoURL = t.VideoURL
	}
	if t.Stage == StageError && t.Failure != nil {
		f := *t.Failure
		rec.Error = &f
	}
	rec.Status = rec.StatusText()
	return rec
}
