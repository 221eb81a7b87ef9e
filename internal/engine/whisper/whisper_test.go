package whisper

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

func newTestEngine(t *testing.T) (*Engine, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	media := ffmpeg.NewService(cfg, logging.NewNop())
	media.WithOutputRunner(func(_ context.Context, _ string, _ ...string) (string, error) {
		return "42.0", nil
	})
	return New(cfg, media, logging.NewNop()), cfg
}

func installModel(t *testing.T, e *Engine, modelID string) {
	t.Helper()
	path := e.modelPath(modelID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(path, []byte("ggml"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
}

func installRuntime(t *testing.T, e *Engine) {
	t.Helper()
	dir := filepath.Join(e.cfg.RuntimeDir(), engineID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir runtime: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, binaryName), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
}

func TestTranscribeMissingModel(t *testing.T) {
	e, _ := newTestEngine(t)
	installRuntime(t, e)
	_, err := e.Transcribe(context.Background(), engine.TranscribeRequest{
		AudioPath: "/tmp/a.wav",
		ModelID:   "base",
	})
	if !errors.Is(err, services.ErrNotInstalled) {
		t.Fatalf("expected not-installed marker, got %v", err)
	}
}

func TestTranscribeSingleChunk(t *testing.T) {
	e, _ := newTestEngine(t)
	installRuntime(t, e)
	installModel(t, e, "base")

	audioDir := t.TempDir()
	audioPath := filepath.Join(audioDir, "talk.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	var gotArgs []string
	e.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		gotArgs = args
		// emulate whisper.cpp writing its JSON result next to the prefix
		prefix := argValue(args, "-of")
		payload := `{"transcription":[
			{"offsets":{"from":0,"to":2100},"text":" Hello there."},
			{"offsets":{"from":2100,"to":4000},"text":" General greeting."}
		]}`
		return os.WriteFile(prefix+".json", []byte(payload), 0o644)
	})

	var events []engine.Progress
	srtPath, err := e.Transcribe(context.Background(), engine.TranscribeRequest{
		AudioPath: audioPath,
		ModelID:   "base",
		Style:     "sentence",
		Progress:  func(p engine.Progress) { events = append(events, p) },
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if srtPath != filepath.Join(audioDir, "talk.srt") {
		t.Fatalf("track path = %q", srtPath)
	}
	data, err := os.ReadFile(srtPath)
	if err != nil {
		t.Fatalf("read track: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Hello there.") || !strings.Contains(content, "00:00:02,100") {
		t.Fatalf("unexpected SRT content:\n%s", content)
	}
	if argValue(gotArgs, "-l") != "auto" {
		t.Fatalf("empty language should pass auto, args %v", gotArgs)
	}
	if contains(gotArgs, "-ml") {
		t.Fatalf("sentence style must not cap segment length, args %v", gotArgs)
	}
	if len(events) == 0 || events[len(events)-1].Stage != "complete" {
		t.Fatalf("expected final complete event, got %v", events)
	}
}

func TestTranscribeWordStyleCapsSegments(t *testing.T) {
	e, _ := newTestEngine(t)
	installRuntime(t, e)
	installModel(t, e, "tiny")

	audioPath := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	var gotArgs []string
	e.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		gotArgs = args
		prefix := argValue(args, "-of")
		return os.WriteFile(prefix+".json", []byte(`{"transcription":[{"offsets":{"from":0,"to":500},"text":" Hi"}]}`), 0o644)
	})
	if _, err := e.Transcribe(context.Background(), engine.TranscribeRequest{
		AudioPath: audioPath, ModelID: "tiny", Style: "word",
	}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if argValue(gotArgs, "-ml") != "1" {
		t.Fatalf("word style should cap segments to one word, args %v", gotArgs)
	}
}

func TestTranscribeEmptyResult(t *testing.T) {
	e, _ := newTestEngine(t)
	installRuntime(t, e)
	installModel(t, e, "base")

	audioPath := filepath.Join(t.TempDir(), "silent.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	e.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		prefix := argValue(args, "-of")
		return os.WriteFile(prefix+".json", []byte(`{"transcription":[{"offsets":{"from":0,"to":1000},"text":"   "}]}`), 0o644)
	})
	_, err := e.Transcribe(context.Background(), engine.TranscribeRequest{AudioPath: audioPath, ModelID: "base"})
	if !errors.Is(err, services.ErrEmptyResult) {
		t.Fatalf("expected empty-result marker, got %v", err)
	}
}

func TestTranscribeCancelled(t *testing.T) {
	e, _ := newTestEngine(t)
	installRuntime(t, e)
	installModel(t, e, "base")

	audioPath := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(audioPath, []byte("wav"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Transcribe(ctx, engine.TranscribeRequest{AudioPath: audioPath, ModelID: "base"})
	if !services.IsCancelled(err) {
		t.Fatalf("expected cancelled outcome, got %v", err)
	}
}

func TestModelsReflectInstallState(t *testing.T) {
	e, _ := newTestEngine(t)
	installModel(t, e, "small")
	for _, m := range e.Models() {
		if m.ID == "small" && !m.Installed {
			t.Fatal("small model should report installed")
		}
		if m.ID == "tiny" && m.Installed {
			t.Fatal("tiny model should not report installed")
		}
	}
}

func TestDownloadModelIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	installModel(t, e, "base")
	// must return without touching the network because the marker file exists
	if err := e.DownloadModel(context.Background(), "base", nil); err != nil {
		t.Fatalf("DownloadModel on installed model: %v", err)
	}
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func contains(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
