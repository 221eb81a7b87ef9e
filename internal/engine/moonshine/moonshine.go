// Package moonshine implements the sherpa-onnx Moonshine engine: a
// lightweight, English-only recognizer with a strict per-call context limit.
// Long audio is mandatorily chunked into 30-second windows and the plain-text
// results are stitched together for duration-proportional caption timing.
package moonshine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/engine"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/media/ffmpeg"
	"github.com/olivier-w/zinc/internal/services"
	"github.com/olivier-w/zinc/internal/subtitle"
)

const (
	engineID = "moonshine"

	// Per-call context limit of the Moonshine models. Inputs beyond this are
	// silently truncated by the runtime, so chunking is mandatory.
	chunkDuration = 30.0

	sherpaVersion = "v1.10.41"
	sherpaBinary  = "sherpa-onnx-offline"
	sherpaURL     = "https://github.com/k2-fsa/sherpa-onnx/releases/download/%s/sherpa-onnx-%s-linux-x64-static.tar.bz2"

	modelURLFormat = "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/%s.tar.bz2"
)

type outputRunner func(ctx context.Context, name string, args ...string) (string, error)

// Engine shells out to sherpa-onnx-offline with the Moonshine model set.
type Engine struct {
	cfg    *config.Config
	media  *ffmpeg.Service
	logger *slog.Logger
	run    outputRunner
}

// New constructs the moonshine engine.
func New(cfg *config.Config, media *ffmpeg.Service, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		media:  media,
		logger: logging.NewComponentLogger(logger, "moonshine"),
		run:    defaultOutputRunner,
	}
}

// WithOutputRunner injects a custom runner for tests.
func (e *Engine) WithOutputRunner(r outputRunner) {
	if e != nil && r != nil {
		e.run = r
	}
}

func (e *Engine) ID() string   { return engineID }
func (e *Engine) Name() string { return "Moonshine" }
func (e *Engine) Description() string {
	return "Fast on-device English transcription via sherpa-onnx"
}

func (e *Engine) GPURequired() bool                 { return false }
func (e *Engine) GPUAvailable(context.Context) bool { return false }
func (e *Engine) Languages() []string               { return []string{"en"} }

func (e *Engine) Models() []engine.ModelInfo {
	entries := []struct {
		id, name, size string
	}{
		{"tiny", "Tiny", "125 MB"},
		{"base", "Base", "280 MB"},
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

func (e *Engine) SpeedMultiplier(modelID string) (float64, float64) {
	switch modelID {
	case "tiny":
		return 50, 15
	case "base":
		return 30, 10
	default:
		return 50, 15
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

// Install stages the pinned sherpa-onnx runtime unless the binary is already
// resolvable.
func (e *Engine) Install(ctx context.Context, progress engine.ProgressFunc) error {
	if _, err := e.binaryPath(); err == nil {
		engine.Report(progress, "installing", 100, "sherpa-onnx already installed")
		return nil
	}
	runtimeDir := filepath.Join(e.cfg.RuntimeDir(), "sherpa")
	archive := filepath.Join(runtimeDir, "sherpa-onnx.tar.bz2")
	url := fmt.Sprintf(sherpaURL, sherpaVersion, sherpaVersion)
	if err := engine.DownloadFile(ctx, url, archive, progress, "installing"); err != nil {
		return err
	}
	defer os.Remove(archive)
	if err := engine.ExtractTarBz2(archive, runtimeDir); err != nil {
		return services.Wrap(services.ErrIO, "installing", "moonshine", "unpack runtime", err)
	}
	if staged, err := findBinary(runtimeDir); err == nil {
		_ = os.Chmod(staged, 0o755)
	}
	engine.Report(progress, "installing", 100, "sherpa-onnx installed")
	return nil
}

// DownloadModel fetches and unpacks the model archive unless the tokens
// marker already exists.
func (e *Engine) DownloadModel(ctx context.Context, modelID string, progress engine.ProgressFunc) error {
	if e.modelInstalled(modelID) {
		engine.Report(progress, "downloading", 100, fmt.Sprintf("Model %s already installed", modelID))
		return nil
	}
	dirName := modelDirName(modelID)
	modelsDir := e.cfg.ModelsDir(engineID)
	archive := filepath.Join(modelsDir, dirName+".tar.bz2")
	if err := engine.DownloadFile(ctx, fmt.Sprintf(modelURLFormat, dirName), archive, progress, "downloading"); err != nil {
		return err
	}
	defer os.Remove(archive)
	if err := engine.ExtractTarBz2(archive, modelsDir); err != nil {
		return services.Wrap(services.ErrIO, "downloading", "moonshine", "unpack model", err)
	}
	engine.Report(progress, "downloading", 100, fmt.Sprintf("Model %s installed", modelID))
	return nil
}

// Transcribe runs Moonshine over the audio, chunking anything longer than the
// context limit, and writes a duration-proportional SRT track.
func (e *Engine) Transcribe(ctx context.Context, req engine.TranscribeRequest) (string, error) {
	modelDir := e.modelDir(req.ModelID)
	for _, file := range modelFiles {
		if _, err := os.Stat(filepath.Join(modelDir, file)); err != nil {
			return "", services.Wrap(services.ErrNotInstalled, "transcribing", "moonshine",
				fmt.Sprintf("model file %q not found; download the %s model first", file, req.ModelID), nil)
		}
	}
	binary, err := e.binaryPath()
	if err != nil {
		return "", services.Wrap(services.ErrNotInstalled, "transcribing", "moonshine",
			"sherpa-onnx runtime is not installed", err)
	}

	engine.Report(req.Progress, "preparing", 0, "Loading Moonshine model...")
	duration := e.media.ProbeDuration(ctx, req.AudioPath)

	var transcript string
	if duration > chunkDuration {
		transcript, err = e.transcribeChunked(ctx, binary, modelDir, req, duration)
	} else {
		engine.Report(req.Progress, "transcribing", 10, "Running transcription...")
		transcript, err = e.transcribeFile(ctx, binary, modelDir, req.AudioPath)
	}
	if err != nil {
		return "", err
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", services.Wrap(services.ErrEmptyResult, "transcribing", "moonshine",
			"transcription produced no text; the audio may be silent, corrupted, or in an unsupported format", nil)
	}

	engine.Report(req.Progress, "transcribing", 80, "Generating subtitles...")
	captions := subtitle.SplitProportional(transcript, duration)
	srtPath := strings.TrimSuffix(req.AudioPath, filepath.Ext(req.AudioPath)) + ".srt"
	if err := subtitle.WriteTrack(srtPath, captions); err != nil {
		return "", services.Wrap(services.ErrIO, "transcribing", "moonshine", "write subtitle track", err)
	}
	engine.Report(req.Progress, "complete", 100, "Transcription complete")
	return srtPath, nil
}

func (e *Engine) transcribeChunked(ctx context.Context, binary, modelDir string, req engine.TranscribeRequest, duration float64) (string, error) {
	numChunks := int(duration / chunkDuration)
	if duration > float64(numChunks)*chunkDuration {
		numChunks++
	}

	workDir := filepath.Join(filepath.Dir(req.AudioPath), ".zinc_moonshine_chunks")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrIO, "transcribing", "moonshine", "create chunk directory", err)
	}
	defer os.RemoveAll(workDir)

	var parts []string
	for i := 0; i < numChunks; i++ {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCancelled, "transcribing", "moonshine", "transcription cancelled", ctx.Err())
		}
		engine.Report(req.Progress, "transcribing",
			10+70*float64(i)/float64(numChunks),
			fmt.Sprintf("Processing chunk %d/%d...", i+1, numChunks))

		chunkPath := filepath.Join(workDir, fmt.Sprintf("chunk_%03d.wav", i))
		if err := e.media.ExtractWindow(ctx, req.AudioPath, chunkPath, float64(i)*chunkDuration, chunkDuration); err != nil {
			if services.IsCancelled(err) {
				return "", err
			}
			e.logger.Warn("chunk extraction failed, skipping", logging.Int("chunk", i), logging.Error(err))
			continue
		}
		text, err := e.transcribeFile(ctx, binary, modelDir, chunkPath)
		os.Remove(chunkPath)
		if err != nil {
			if services.IsCancelled(err) {
				return "", err
			}
			e.logger.Warn("chunk transcription failed, skipping", logging.Int("chunk", i), logging.Error(err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (e *Engine) transcribeFile(ctx context.Context, binary, modelDir, audioPath string) (string, error) {
	args := []string{
		"--moonshine-preprocessor=" + filepath.Join(modelDir, "preprocess.onnx"),
		"--moonshine-encoder=" + filepath.Join(modelDir, "encode.int8.onnx"),
		"--moonshine-uncached-decoder=" + filepath.Join(modelDir, "uncached_decode.int8.onnx"),
		"--moonshine-cached-decoder=" + filepath.Join(modelDir, "cached_decode.int8.onnx"),
		"--tokens=" + filepath.Join(modelDir, "tokens.txt"),
		"--num-threads=4",
		audioPath,
	}
	output, err := e.run(ctx, binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCancelled, "transcribing", "moonshine", "inference interrupted", ctx.Err())
		}
		return "", services.Wrap(services.ErrSubprocess, "transcribing", "moonshine", "inference failed", err)
	}
	return parseTextField(output), nil
}

// parseTextField extracts the "text" field from sherpa-onnx's JSON result
// line, tolerating surrounding log output.
func parseTextField(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"text"`) {
			continue
		}
		var result struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &result); err == nil {
			return result.Text
		}
	}
	return ""
}

var modelFiles = []string{
	"preprocess.onnx",
	"encode.int8.onnx",
	"uncached_decode.int8.onnx",
	"cached_decode.int8.onnx",
	"tokens.txt",
}

func modelDirName(modelID string) string {
	switch modelID {
	case "base":
		return "sherpa-onnx-moonshine-base-en-int8"
	default:
		return "sherpa-onnx-moonshine-tiny-en-int8"
	}
}

func (e *Engine) modelDir(modelID string) string {
	return filepath.Join(e.cfg.ModelsDir(engineID), modelDirName(modelID))
}

func (e *Engine) modelInstalled(modelID string) bool {
	_, err := os.Stat(filepath.Join(e.modelDir(modelID), "tokens.txt"))
	return err == nil
}

func (e *Engine) binaryPath() (string, error) {
	if staged, err := findBinary(filepath.Join(e.cfg.RuntimeDir(), "sherpa")); err == nil {
		return staged, nil
	}
	return exec.LookPath(sherpaBinary)
}

// findBinary locates the sherpa binary inside the unpacked release, which
// nests it under a versioned directory.
func findBinary(root string) (string, error) {
	direct := filepath.Join(root, sherpaBinary)
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}
	matches, _ := filepath.Glob(filepath.Join(root, "*", "bin", sherpaBinary))
	if len(matches) > 0 {
		return matches[0], nil
	}
	matches, _ = filepath.Glob(filepath.Join(root, "*", sherpaBinary))
	if len(matches) > 0 {
		return matches[0], nil
	}
	return "", os.ErrNotExist
}

func defaultOutputRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		lines := strings.Split(strings.TrimSpace(string(output)), "\n")
		first := ""
		if len(lines) > 0 {
			first = lines[0]
		}
		return "", fmt.Errorf("%w: %s", err, first)
	}
	return string(output), nil
}
