// Package whisper implements the whisper.cpp-backed transcription engine. It
// is the timestamp-aware workhorse: long inputs are split into overlapping
// chunks, each chunk is transcribed by the external binary, and the segment
// streams are merged into one ordered transcript.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/deps"
	"github.com/olivier-w/zinc/internal/engine"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/media/ffmpeg"
	"github.com/olivier-w/zinc/internal/services"
	"github.com/olivier-w/zinc/internal/subtitle"
)

const (
	engineID = "whisper"

	// Pinned whisper.cpp release fetched by Install.
	runtimeVersion = "v1.7.4"

	binaryName     = "whisper-cli"
	modelURLFormat = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-%s.bin"
	runtimeURL     = "https://github.com/ggml-org/whisper.cpp/releases/download/%s/whisper-bin-x64.zip"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Engine shells out to the whisper.cpp CLI.
type Engine struct {
	cfg    *config.Config
	media  *ffmpeg.Service
	logger *slog.Logger
	run    commandRunner
}

// New constructs the whisper engine.
func New(cfg *config.Config, media *ffmpeg.Service, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		media:  media,
		logger: logging.NewComponentLogger(logger, "whisper"),
		run:    defaultRunner,
	}
}

// WithCommandRunner injects a custom runner for tests.
func (e *Engine) WithCommandRunner(r commandRunner) {
	if e != nil && r != nil {
		e.run = r
	}
}

func (e *Engine) ID() string   { return engineID }
func (e *Engine) Name() string { return "Whisper" }
func (e *Engine) Description() string {
	return "whisper.cpp with word timestamps and broad language support"
}

func (e *Engine) GPURequired() bool { return false }

func (e *Engine) GPUAvailable(ctx context.Context) bool {
	gpu, _ := deps.DetectGPU(ctx)
	return gpu != nil
}

func (e *Engine) Languages() []string {
	return []string{
		"en", "zh", "de", "es", "ru", "ko", "fr", "ja", "pt", "tr", "pl", "ca", "nl", "ar",
		"sv", "it", "id", "hi", "fi", "vi", "he", "uk", "el", "ms", "cs", "ro", "da", "hu",
		"ta", "no", "th", "ur", "hr", "bg", "lt", "la", "mi", "ml", "cy", "sk", "te", "fa",
	}
}

func (e *Engine) Models() []engine.ModelInfo {
	entries := []struct {
		id, name, size string
	}{
		{"tiny", "Tiny", "75 MB"},
		{"base", "Base", "142 MB"},
		{"small", "Small", "466 MB"},
		{"medium", "Medium", "1.5 GB"},
		{"large-v3", "Large v3", "2.9 GB"},
	}
	models := make([]engine.ModelInfo, 0, len(entries))
	for _, entry := range entries {
		gpu, cpu := e.SpeedMultiplier(entry.id)
		models = append(models, engine.ModelInfo{
			ID:        entry.id,
			Name:      entry.name,
			SizeLabel: entry.size,
			Installed: e.modelInstalled(entry.id),
			GPUSpeed:  gpu,
			CPUSpeed:  cpu,
		})
	}
	return models
}

// SpeedMultiplier returns rough realtime factors used for ETA display only.
func (e *Engine) SpeedMultiplier(modelID string) (float64, float64) {
	switch modelID {
	case "tiny":
		return 32, 8
	case "base":
		return 16, 4
	case "small":
		return 6, 2
	case "medium":
		return 2, 0.5
	case "large-v3":
		return 1, 0.2
	default:
		return 16, 4
	}
}

func (e *Engine) Available() (bool, error) {
	if _, err := e.binaryPath(); err != nil {
		return false, nil
	}
	for _, m := range e.Models() {
		if m.Installed {
			return true, nil
		}
	}
	return false, nil
}

// Install stages the pinned whisper.cpp release. A present binary makes this
// a no-op.
func (e *Engine) Install(ctx context.Context, progress engine.ProgressFunc) error {
	if _, err := e.binaryPath(); err == nil {
		engine.Report(progress, "installing", 100, "whisper.cpp already installed")
		return nil
	}
	runtimeDir := filepath.Join(e.cfg.RuntimeDir(), engineID)
	archive := filepath.Join(runtimeDir, "whisper-bin.zip")
	url := fmt.Sprintf(runtimeURL, runtimeVersion)
	if err := engine.DownloadFile(ctx, url, archive, progress, "installing"); err != nil {
		return err
	}
	defer os.Remove(archive)
	if err := engine.ExtractZip(archive, runtimeDir); err != nil {
		return services.Wrap(services.ErrIO, "installing", "whisper", "unpack runtime", err)
	}
	staged := filepath.Join(runtimeDir, binaryName)
	if info, err := os.Stat(staged); err == nil {
		_ = os.Chmod(staged, info.Mode()|0o111)
	}
	engine.Report(progress, "installing", 100, "whisper.cpp installed")
	return nil
}

// DownloadModel fetches the GGML model file unless it already exists on disk.
func (e *Engine) DownloadModel(ctx context.Context, modelID string, progress engine.ProgressFunc) error {
	dest := e.modelPath(modelID)
	if _, err := os.Stat(dest); err == nil {
		engine.Report(progress, "downloading", 100, fmt.Sprintf("Model %s already installed", modelID))
		return nil
	}
	url := fmt.Sprintf(modelURLFormat, modelID)
	if err := engine.DownloadFile(ctx, url, dest, progress, "downloading"); err != nil {
		return err
	}
	engine.Report(progress, "downloading", 100, fmt.Sprintf("Model %s installed", modelID))
	return nil
}

// Transcribe runs chunked inference over the audio file and writes the merged
// transcript as an SRT track next to it.
func (e *Engine) Transcribe(ctx context.Context, req engine.TranscribeRequest) (string, error) {
	modelPath := e.modelPath(req.ModelID)
	if _, err := os.Stat(modelPath); err != nil {
		return "", services.Wrap(services.ErrNotInstalled, "transcribing", "whisper",
			fmt.Sprintf("model %q is not installed; download it first", req.ModelID), nil)
	}
	binary, err := e.binaryPath()
	if err != nil {
		return "", services.Wrap(services.ErrNotInstalled, "transcribing", "whisper",
			"whisper.cpp runtime is not installed", err)
	}

	engine.Report(req.Progress, "preparing", 5, "Loading Whisper model...")

	duration := e.media.ProbeDuration(ctx, req.AudioPath)
	chunks := engine.PlanChunks(duration)

	workDir := filepath.Join(filepath.Dir(req.AudioPath), ".zinc_whisper_chunks")
	if len(chunks) > 1 {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return "", services.Wrap(services.ErrIO, "transcribing", "whisper", "create chunk directory", err)
		}
		defer os.RemoveAll(workDir)
	}

	var merged []subtitle.Segment
	succeeded := 0
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCancelled, "transcribing", "whisper", "transcription cancelled", ctx.Err())
		}
		engine.Report(req.Progress, "transcribing",
			10+80*float64(chunk.Index)/float64(len(chunks)),
			fmt.Sprintf("Processing chunk %d/%d...", chunk.Index+1, len(chunks)))

		segments, err := e.transcribeChunk(ctx, binary, modelPath, req, chunk, workDir, len(chunks) == 1)
		if err != nil {
			if services.IsCancelled(err) {
				return "", err
			}
			// A failed chunk costs its slice of transcript, not the whole run.
			e.logger.Warn("chunk failed, continuing",
				logging.Int("chunk", chunk.Index), logging.Error(err))
			continue
		}
		succeeded++

		offset := int64(chunk.Start * 1000)
		segments = engine.OffsetSegments(segments, offset)
		if chunk.Index == 0 {
			merged = append(merged, segments...)
		} else {
			merged = engine.MergeAtBoundary(merged, segments, offset)
		}
	}
	engine.SortSegments(merged)

	captions := subtitle.SegmentCaptions(merged)
	if len(captions) == 0 || succeeded == 0 {
		return "", services.Wrap(services.ErrEmptyResult, "transcribing", "whisper",
			"transcription produced no text; the audio may be silent, corrupted, or in an unsupported format", nil)
	}

	srtPath := trackPath(req.AudioPath)
	if err := subtitle.WriteTrack(srtPath, captions); err != nil {
		return "", services.Wrap(services.ErrIO, "transcribing", "whisper", "write subtitle track", err)
	}
	engine.Report(req.Progress, "complete", 100, "Transcription complete")
	return srtPath, nil
}

func (e *Engine) transcribeChunk(ctx context.Context, binary, modelPath string, req engine.TranscribeRequest, chunk engine.Chunk, workDir string, whole bool) ([]subtitle.Segment, error) {
	chunkAudio := req.AudioPath
	if !whole {
		chunkAudio = filepath.Join(workDir, fmt.Sprintf("chunk_%03d.wav", chunk.Index))
		if err := e.media.ExtractWindow(ctx, req.AudioPath, chunkAudio, chunk.Start, chunk.Duration); err != nil {
			return nil, err
		}
		defer os.Remove(chunkAudio)
	}

	outPrefix := strings.TrimSuffix(chunkAudio, filepath.Ext(chunkAudio))
	args := []string{
		"-m", modelPath,
		"-f", chunkAudio,
		"-l", languageOrAuto(req.Language),
		"-t", strconv.Itoa(threadCount()),
		"-oj",
		"-of", outPrefix,
		"-np",
	}
	if req.Style == "word" {
		// one word per segment, karaoke-style timing
		args = append(args, "-ml", "1")
	}

	jsonPath := outPrefix + ".json"
	defer os.Remove(jsonPath)
	if err := e.run(ctx, binary, args...); err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrCancelled, "transcribing", "whisper", "inference interrupted", ctx.Err())
		}
		return nil, services.Wrap(services.ErrSubprocess, "transcribing", "whisper", "inference failed", err)
	}
	return parseResultFile(jsonPath)
}

// parseResultFile reads whisper.cpp's JSON output into segments.
func parseResultFile(path string) ([]subtitle.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "transcribing", "whisper", "read inference output", err)
	}
	var result struct {
		Transcription []struct {
			Offsets struct {
				From int64 `json:"from"`
				To   int64 `json:"to"`
			} `json:"offsets"`
			Text string `json:"text"`
		} `json:"transcription"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, services.Wrap(services.ErrSubprocess, "transcribing", "whisper", "unparseable inference output", err)
	}
	segments := make([]subtitle.Segment, 0, len(result.Transcription))
	for _, entry := range result.Transcription {
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		segments = append(segments, subtitle.Segment{
			StartMS: entry.Offsets.From,
			EndMS:   entry.Offsets.To,
			Text:    entry.Text,
		})
	}
	return segments, nil
}

func (e *Engine) binaryPath() (string, error) {
	staged := filepath.Join(e.cfg.RuntimeDir(), engineID, binaryName)
	if _, err := os.Stat(staged); err == nil {
		return staged, nil
	}
	return exec.LookPath(binaryName)
}

func (e *Engine) modelPath(modelID string) string {
	return filepath.Join(e.cfg.ModelsDir(engineID), "ggml-"+modelID+".bin")
}

func (e *Engine) modelInstalled(modelID string) bool {
	_, err := os.Stat(e.modelPath(modelID))
	return err == nil
}

func trackPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".srt"
}

func languageOrAuto(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return "auto"
	}
	return lang
}

func threadCount() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

func defaultRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		lines := strings.Split(strings.TrimSpace(string(output)), "\n")
		tail := lines
		if len(lines) > 3 {
			tail = lines[len(lines)-3:]
		}
		return fmt.Errorf("%w: %s", err, strings.Join(tail, " | "))
	}
	return nil
}
