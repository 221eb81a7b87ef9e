package parakeet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/engine"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/media/ffmpeg"
	"github.com/olivier-w/zinc/internal/services"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	media := ffmpeg.NewService(cfg, logging.NewNop())
	media.WithOutputRunner(func(_ context.Context, _ string, _ ...string) (string, error) {
		return "12.0", nil
	})
	return New(cfg, media, logging.NewNop())
}

func installAll(t *testing.T, e *Engine) {
	t.Helper()
	dir := e.modelDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir model dir: %v", err)
	}
	for _, f := range []string{"encoder.int8.onnx", "decoder.int8.onnx", "joiner.int8.onnx", "tokens.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("onnx"), 0o644); err != nil {
			t.Fatalf("write model file: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(e.scriptPath()), 0o755); err != nil {
		t.Fatalf("mkdir runtime: %v", err)
	}
	if err := os.WriteFile(e.scriptPath(), []byte(helperScript), 0o755); err != nil {
		t.Fatalf("stage script: %v", err)
	}
}

func TestTranscribeGroupsTokens(t *testing.T) {
	e := newTestEngine(t)
	installAll(t, e)

	audioPath := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	e.WithOutputRunner(func(_ context.Context, name string, args ...string) (string, error) {
		if name != "python3" {
			t.Fatalf("expected python interpreter, got %q", name)
		}
		if args[len(args)-1] != audioPath {
			t.Fatalf("audio path should be final argument, got %v", args)
		}
		return `sherpa log noise
{"text": "Hello there friend.", "timestamps": [0.0, 0.4, 0.9], "tokens": ["Hello", " there", " friend."]}
`, nil
	})

	srtPath, err := e.Transcribe(context.Background(), engine.TranscribeRequest{
		AudioPath: audioPath, ModelID: "0.6b-v3",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	data, err := os.ReadFile(srtPath)
	if err != nil {
		t.Fatalf("read track: %v", err)
	}
	if !strings.Contains(string(data), "Hello there friend.") {
		t.Fatalf("track missing grouped tokens:\n%s", data)
	}
}

func TestTranscribeFallsBackWithoutTimestamps(t *testing.T) {
	e := newTestEngine(t)
	installAll(t, e)

	audioPath := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	e.WithOutputRunner(func(_ context.Context, _ string, _ ...string) (string, error) {
		return `{"text": "Just text. No timing.", "timestamps": [], "tokens": []}`, nil
	})
	srtPath, err := e.Transcribe(context.Background(), engine.TranscribeRequest{
		AudioPath: audioPath, ModelID: "0.6b-v3",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	data, _ := os.ReadFile(srtPath)
	if !strings.Contains(string(data), "Just text.") {
		t.Fatalf("fallback captions missing:\n%s", data)
	}
}

func TestTranscribeEmptyText(t *testing.T) {
	e := newTestEngine(t)
	installAll(t, e)
	audioPath := filepath.Join(t.TempDir(), "silent.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	e.WithOutputRunner(func(_ context.Context, _ string, _ ...string) (string, error) {
		return `{"text": "  ", "timestamps": [], "tokens": []}`, nil
	})
	_, err := e.Transcribe(context.Background(), engine.TranscribeRequest{AudioPath: audioPath, ModelID: "0.6b-v3"})
	if !errors.Is(err, services.ErrEmptyResult) {
		t.Fatalf("expected empty-result marker, got %v", err)
	}
}

func TestTranscribeMissingModel(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Transcribe(context.Background(), engine.TranscribeRequest{AudioPath: "/tmp/a.wav", ModelID: "0.6b-v3"})
	if !errors.Is(err, services.ErrNotInstalled) {
		t.Fatalf("expected not-installed marker, got %v", err)
	}
}

func TestParseResultToleratesLogNoise(t *testing.T) {
	out := "warning: something\nnot json\n{\"text\": \"ok\", \"timestamps\": [1.5], \"tokens\": [\"ok\"]}\n"
	result, ok := parseResult(out)
	if !ok || result.Text != "ok" || len(result.Timestamps) != 1 {
		t.Fatalf("parseResult = %+v, %v", result, ok)
	}
	if _, ok := parseResult("no json at all"); ok {
		t.Fatal("expected failure for output without JSON")
	}
}

func TestPairTokensTruncatesToShorter(t *testing.T) {
	pairs := pairTokens([]string{"a", " b", " c"}, []float64{0.1, 0.2})
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[1].Text != " b" || pairs[1].Offset != 0.2 {
		t.Fatalf("unexpected pair: %+v", pairs[1])
	}
}
