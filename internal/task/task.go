package task

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task. Transcription states carry the
// active phase as a suffix, e.g. "transcribing:extracting".
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// transcribingPrefix tags the in-flight transcription states.
const transcribingPrefix = "transcribing:"

// Transcription phases in pipeline order.
const (
	PhaseExtracting   = "extracting"
	PhasePreparing    = "preparing"
	PhaseTranscribing = "transcribing"
	PhaseEmbedding    = "embedding"
	PhaseFinalizing   = "finalizing"
	PhaseComplete     = "complete"
)

// Transcribing builds the status for a transcription phase.
func Transcribing(phase string) Status {
	return Status(transcribingPrefix + phase)
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTranscribing reports whether the status is a transcription phase.
func (s Status) IsTranscribing() bool {
	return strings.HasPrefix(string(s), transcribingPrefix)
}

// Phase returns the phase component of a transcribing status, or "".
func (s Status) Phase() string {
	if !s.IsTranscribing() {
		return ""
	}
	return strings.TrimPrefix(string(s), transcribingPrefix)
}

// Kind distinguishes the two submission shapes.
type Kind string

const (
	KindRemoteFetch     Kind = "remote_fetch"
	KindLocalTranscribe Kind = "local_transcribe"
)

// Task is one unit of work tracked by the Registry. Fields are mutated only
// through Registry methods; callers outside the registry see snapshots.
type Task struct {
	ID     string
	Kind   Kind
	Status Status

	// Submission parameters.
	Source    string // URL for remote_fetch, file path for local_transcribe
	Title     string
	EngineID  string
	ModelID   string
	Language  string
	Style     string
	Format    string // fetch quality preset
	Container string
	Subtitles bool // remote_fetch: also transcribe after download

	// Live progress.
	ProgressPercent  float64
	ProgressMessage  string
	Speed            string
	ETA              string
	EstimatedSeconds float64 // transcription estimate from the speed table

	// Outcome.
	OutputPath   string
	CaptionPath  string
	ErrorMessage string
	Warning      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the task still has a pipeline that may run or is
// running. Terminal tasks are inert.
func (t Task) IsActive() bool {
	return !t.Status.IsTerminal()
}

// ProgressEvent is one transient progress report from an engine or a
// pipeline, forwarded to the presentation layer alongside task snapshots.
type ProgressEvent struct {
	Stage   string
	Percent float64
	Message string
}
