// Package parakeet implements the NeMo Parakeet TDT engine, delegated to a
// Python helper running sherpa-onnx. The helper emits token and timestamp
// arrays as JSON, which are grouped into timed captions here.
package parakeet

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/deps"
	"github.com/olivier-w/zinc/internal/engine"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/media/ffmpeg"
	"github.com/olivier-w/zinc/internal/services"
	"github.com/olivier-w/zinc/internal/subtitle"
)

//go:embed transcribe_parakeet.py
var helperScript string

const (
	engineID   = "parakeet"
	scriptName = "transcribe_parakeet.py"

	modelDirV3 = "sherpa-onnx-nemo-parakeet-tdt-0.6b-v3-int8"
	modelURL   = "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/" + modelDirV3 + ".tar.bz2"
)

type outputRunner func(ctx context.Context, name string, args ...string) (string, error)

// Engine runs Parakeet through the embedded Python helper.
type Engine struct {
	cfg    *config.Config
	media  *ffmpeg.Service
	logger *slog.Logger
	run    outputRunner
}

// New constructs the parakeet engine.
func New(cfg *config.Config, media *ffmpeg.Service, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		media:  media,
		logger: logging.NewComponentLogger(logger, "parakeet"),
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
func (e *Engine) Name() string { return "Parakeet" }
func (e *Engine) Description() string {
	return "NeMo Parakeet TDT with GPU acceleration and European language coverage"
}

// GPURequired is false: Parakeet runs on CPU too, the GPU just makes it fast.
func (e *Engine) GPURequired() bool { return false }

func (e *Engine) GPUAvailable(ctx context.Context) bool {
	gpu, _ := deps.DetectGPU(ctx)
	return gpu != nil
}

func (e *Engine) Languages() []string {
	return []string{
		"en", "de", "es", "fr", "it", "pt", "nl", "pl", "ru", "uk",
		"cs", "da", "fi", "el", "hu", "no", "ro", "sk", "sl", "sv",
		"bg", "ca", "hr", "lt", "lv",
	}
}

func (e *Engine) Models() []engine.ModelInfo {
	gpu, cpu := e.SpeedMultiplier("0.6b-v3")
	return []engine.ModelInfo{{
		ID:        "0.6b-v3",
		Name:      "0.6B v3",
		SizeLabel: "640 MB",
		Installed: e.modelInstalled(),
		GPUSpeed:  gpu,
		CPUSpeed:  cpu,
	}}
}

func (e *Engine) SpeedMultiplier(string) (float64, float64) { return 12, 5 }

func (e *Engine) Available() (bool, error) {
	if _, err := os.Stat(e.scriptPath()); err != nil {
		return false, nil
	}
	return e.modelInstalled(), nil
}

// Install stages the Python helper script. The script ships embedded and is
// rewritten on every install so updates propagate.
func (e *Engine) Install(ctx context.Context, progress engine.ProgressFunc) error {
	if _, err := exec.LookPath(e.cfg.Tools.Python); err != nil {
		return services.Wrap(services.ErrNotInstalled, "installing", "parakeet",
			"python interpreter not found; parakeet requires python with sherpa-onnx", err)
	}
	path := e.scriptPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrIO, "installing", "parakeet", "create runtime directory", err)
	}
	if err := os.WriteFile(path, []byte(helperScript), 0o755); err != nil {
		return services.Wrap(services.ErrIO, "installing", "parakeet", "stage helper script", err)
	}
	engine.Report(progress, "installing", 100, "Parakeet helper installed")
	return nil
}

// DownloadModel fetches and unpacks the transducer model unless the tokens
// marker already exists.
func (e *Engine) DownloadModel(ctx context.Context, modelID string, progress engine.ProgressFunc) error {
	if e.modelInstalled() {
		engine.Report(progress, "downloading", 100, "Model already installed")
		return nil
	}
	modelsDir := e.cfg.ModelsDir(engineID)
	archive := filepath.Join(modelsDir, modelDirV3+".tar.bz2")
	if err := engine.DownloadFile(ctx, modelURL, archive, progress, "downloading"); err != nil {
		return err
	}
	defer os.Remove(archive)
	if err := engine.ExtractTarBz2(archive, modelsDir); err != nil {
		return services.Wrap(services.ErrIO, "downloading", "parakeet", "unpack model", err)
	}
	engine.Report(progress, "downloading", 100, "Model installed")
	return nil
}

// Transcribe runs the helper over the audio and synthesizes captions from the
// token timestamps, falling back to duration-proportional timing when the
// result carries no usable token stream.
func (e *Engine) Transcribe(ctx context.Context, req engine.TranscribeRequest) (string, error) {
	modelDir := e.modelDir()
	for _, file := range []string{"encoder.int8.onnx", "decoder.int8.onnx", "joiner.int8.onnx", "tokens.txt"} {
		if _, err := os.Stat(filepath.Join(modelDir, file)); err != nil {
			return "", services.Wrap(services.ErrNotInstalled, "transcribing", "parakeet",
				fmt.Sprintf("model file %q not found; download the model first", file), nil)
		}
	}
	scriptPath := e.scriptPath()
	if _, err := os.Stat(scriptPath); err != nil {
		return "", services.Wrap(services.ErrNotInstalled, "transcribing", "parakeet",
			"parakeet helper is not installed", err)
	}

	provider := "cpu"
	if e.GPUAvailable(ctx) {
		provider = "cuda"
	}
	engine.Report(req.Progress, "transcribing", 10, "Running transcription...")

	output, err := e.run(ctx, e.cfg.Tools.Python,
		scriptPath,
		"--encoder="+filepath.Join(modelDir, "encoder.int8.onnx"),
		"--decoder="+filepath.Join(modelDir, "decoder.int8.onnx"),
		"--joiner="+filepath.Join(modelDir, "joiner.int8.onnx"),
		"--tokens="+filepath.Join(modelDir, "tokens.txt"),
		"--provider="+provider,
		"--num-threads=4",
		req.AudioPath,
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCancelled, "transcribing", "parakeet", "inference interrupted", ctx.Err())
		}
		return "", services.Wrap(services.ErrSubprocess, "transcribing", "parakeet", "inference failed", err)
	}

	result, ok := parseResult(output)
	if !ok || strings.TrimSpace(result.Text) == "" {
		return "", services.Wrap(services.ErrEmptyResult, "transcribing", "parakeet",
			"transcription produced no text; the audio may be silent, corrupted, or in an unsupported language", nil)
	}

	engine.Report(req.Progress, "transcribing", 80, "Generating subtitles...")
	var captions []subtitle.Caption
	if len(result.Tokens) > 0 && len(result.Timestamps) > 0 {
		captions = subtitle.GroupTokens(pairTokens(result.Tokens, result.Timestamps))
	}
	if len(captions) == 0 {
		duration := e.media.ProbeDuration(ctx, req.AudioPath)
		captions = subtitle.SplitProportional(result.Text, duration)
	}

	srtPath := strings.TrimSuffix(req.AudioPath, filepath.Ext(req.AudioPath)) + ".srt"
	if err := subtitle.WriteTrack(srtPath, captions); err != nil {
		return "", services.Wrap(services.ErrIO, "transcribing", "parakeet", "write subtitle track", err)
	}
	engine.Report(req.Progress, "complete", 100, "Transcription complete")
	return srtPath, nil
}

type helperResult struct {
	Text       string    `json:"text"`
	Timestamps []float64 `json:"timestamps"`
	Tokens     []string  `json:"tokens"`
}

// parseResult finds the helper's JSON line in stdout, which may be preceded
// by library logging.
func parseResult(output string) (helperResult, bool) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"text"`) {
			continue
		}
		var result helperResult
		if err := json.Unmarshal([]byte(line), &result); err == nil {
			return result, true
		}
	}
	return helperResult{}, false
}

func pairTokens(tokens []string, timestamps []float64) []subtitle.Token {
	n := len(tokens)
	if len(timestamps) < n {
		n = len(timestamps)
	}
	out := make([]subtitle.Token, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, subtitle.Token{Text: tokens[i], Offset: timestamps[i]})
	}
	return out
}

func (e *Engine) scriptPath() string {
	return filepath.Join(e.cfg.RuntimeDir(), "sherpa", scriptName)
}

func (e *Engine) modelDir() string {
	return filepath.Join(e.cfg.ModelsDir(engineID), modelDirV3)
}

func (e *Engine) modelInstalled() bool {
	_, err := os.Stat(filepath.Join(e.modelDir(), "tokens.txt"))
	return err == nil
}

func defaultOutputRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
		last := ""
		if len(lines) > 0 {
			last = lines[len(lines)-1]
		}
		return "", fmt.Errorf("%w: %s", err, last)
	}
	return string(output), nil
}
