package task

import "time"

// State is the coarse progress state exposed to pollers.
type State string

const (
	// StatePending means nothing is known about the task yet.
	StatePending State = "PENDING"
	// StateProgress means the task is queued or running.
	StateProgress State = "PROGRESS"
	// StateSuccess means the video is ready for download.
	StateSuccess State = "SUCCESS"
	// StateFailure means the task ended in error.
	StateFailure State = "FAILURE"
)

// Record is the status document stored as status.json in a task workspace.
// Only the latest write is visible; earlier stages are not retained.
type Record struct {
	TaskID string `json:"task_id"`
	Stage  Stage  `json:"stage"`
	// Status is the human-readable stage, "Error: <message>" on failure.
	Status       string    `json:"status"`
	OutputFile   string    `json:"output_file,omitempty"`
	OutputDigest string    `json:"output_digest,omitempty"`
	VideoURL     string    `json:"video_url,omitempty"`
	Error        *Failure  `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusText renders the record's stage the way clients display it.
func (r Record) StatusText() string {
	if r.Stage == StageError {
		if r.Error != nil && r.Error.Message != "" {
			return "Error: " + r.Error.Message
		}
		return "Error"
	}
	return string(r.Stage)
}

// State maps the stage to the coarse polling state.
func (r Record) State() State {
	switch r.Stage {
	case StageDone:
		return StateSuccess
	case StageError:
		return StateFailure
	case "":
		return StatePending
	default:
		return StateProgress
	}
}

// IsTerminal returns true if the recorded stage is Done or Error.
func (r Record) IsTerminal() bool {
	return r.Stage.IsTerminal()
}

// ErrorKind returns the failure kind, or "" when the task has not failed.
func (r Record) ErrorKind() ErrorKind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}
