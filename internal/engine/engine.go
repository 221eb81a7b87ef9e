// Package engine defines the speech-engine contract, the registry that
// resolves engines by id, and the chunk planning and merge logic shared by
// long-form transcription strategies.
package engine

import "context"

// Progress is one transcription progress event. Percent is 0-100 within the
// transcribing stage; Stage names the phase so the forwarder can widen it into
// a task status.
type Progress struct {
	Stage   string
	Percent float64
	Message string
}

// ProgressFunc receives progress events. Implementations must be cheap and
// non-blocking; delivery is best-effort.
type ProgressFunc func(Progress)

// TranscribeRequest carries the inputs for one transcription run.
type TranscribeRequest struct {
	AudioPath string
	ModelID   string
	Language  string // ISO 639-1 hint, empty means auto-detect
	Style     string // "word" or "sentence"
	Progress  ProgressFunc
}

// ModelInfo describes one downloadable model of an engine.
type ModelInfo struct {
	ID        string
	Name      string
	SizeLabel string
	Installed bool
	GPUSpeed  float64
	CPUSpeed  float64
}

// Descriptor is a point-in-time snapshot of an engine's identity and
// installation state. It is recomputed on every query because model and GPU
// availability can change between calls.
type Descriptor struct {
	ID           string
	Name         string
	Description  string
	GPURequired  bool
	GPUAvailable bool
	Languages    []string
	Models       []ModelInfo
}

// Engine is the capability contract every speech engine implements.
type Engine interface {
	ID() string
	Name() string
	Description() string

	GPURequired() bool
	GPUAvailable(ctx context.Context) bool

	// Available reports whether both the runtime and at least one model are
	// present on disk.
	Available() (bool, error)
	Models() []ModelInfo
	SpeedMultiplier(modelID string) (gpu, cpu float64)
	Languages() []string

	// Install stages the engine runtime. Idempotent; a no-op for engines that
	// ship built-in.
	Install(ctx context.Context, progress ProgressFunc) error

	// DownloadModel fetches a model if its marker file is absent. Idempotent.
	DownloadModel(ctx context.Context, modelID string, progress ProgressFunc) error

	// Transcribe runs inference over the audio file and returns the path of
	// the subtitle track it produced.
	Transcribe(ctx context.Context, req TranscribeRequest) (string, error)
}

// Report emits a progress event if the sink is set.
func Report(fn ProgressFunc, stage string, percent float64, message string) {
	if fn != nil {
		fn(Progress{Stage: stage, Percent: percent, Message: message})
	}
}
