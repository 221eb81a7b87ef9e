// Package ffmpeg wraps the external media tool used for audio extraction,
// duration probing, and caption embedding. All invocations go through an
// injectable command runner so stage logic is testable without the binary.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/services"
)

// FallbackDuration is assumed when probing fails. Duration feeds progress
// estimates and caption timing only, so a wrong guess degrades gracefully.
const FallbackDuration = 60.0

type commandRunner func(ctx context.Context, name string, args ...string) error

type outputRunner func(ctx context.Context, name string, args ...string) (string, error)

// Service shells out to ffmpeg and ffprobe.
type Service struct {
	ffmpegBin  string
	ffprobeBin string
	logger     *slog.Logger
	run        commandRunner
	capture    outputRunner
}

// NewService constructs a media tool wrapper from the configured binaries.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		ffmpegBin:  cfg.Tools.FFmpeg,
		ffprobeBin: cfg.Tools.FFprobe,
		logger:     logging.NewComponentLogger(logger, "ffmpeg"),
		run:        defaultCommandRunner,
		capture:    defaultOutputRunner,
	}
}

// WithCommandRunner injects a custom runner for tests.
func (s *Service) WithCommandRunner(r commandRunner) {
	if s != nil && r != nil {
		s.run = r
	}
}

// WithOutputRunner injects a custom capturing runner for tests.
func (s *Service) WithOutputRunner(r outputRunner) {
	if s != nil && r != nil {
		s.capture = r
	}
}

// CheckInstalled verifies the ffmpeg binary resolves. It is called before any
// extraction so missing tooling surfaces as a clear user-facing message
// instead of a spawn failure mid-pipeline.
func (s *Service) CheckInstalled() error {
	if _, err := exec.LookPath(s.ffmpegBin); err != nil {
		return services.Wrap(services.ErrNotInstalled, "extracting", "ffmpeg",
			"ffmpeg is required for audio extraction; install it and ensure it is on PATH", err)
	}
	return nil
}

// ExtractAudio decodes the source into 16 kHz mono PCM WAV, the input format
// every transcription engine expects.
func (s *Service) ExtractAudio(ctx context.Context, input, output string) error {
	args := []string{
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y", output,
	}
	s.logger.Debug("extracting audio", logging.String("input", input), logging.String("output", output))
	if err := s.run(ctx, s.ffmpegBin, args...); err != nil {
		_ = os.Remove(output)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "extracting", "ffmpeg", "extraction interrupted", ctx.Err())
		}
		return services.Wrap(services.ErrSubprocess, "extracting", "ffmpeg", "audio extraction failed", err)
	}
	return nil
}

// ExtractWindow decodes a bounded window of the source into 16 kHz mono PCM
// WAV for chunked inference.
func (s *Service) ExtractWindow(ctx context.Context, input, output string, startSeconds, durationSeconds float64) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(startSeconds),
		"-i", input,
		"-t", formatSeconds(durationSeconds),
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		output,
	}
	if err := s.run(ctx, s.ffmpegBin, args...); err != nil {
		_ = os.Remove(output)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "transcribing", "ffmpeg", "chunk extraction interrupted", ctx.Err())
		}
		return services.Wrap(services.ErrSubprocess, "transcribing", "ffmpeg",
			fmt.Sprintf("chunk extraction failed at %s", formatSeconds(startSeconds)), err)
	}
	return nil
}

// ProbeDuration reports the media duration in seconds. Probing is best-effort:
// on any failure the fallback is returned, since duration only drives progress
// and timing estimates.
func (s *Service) ProbeDuration(ctx context.Context, path string) float64 {
	out, err := s.capture(ctx, s.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		s.logger.Warn("duration probe failed, using fallback",
			logging.String("path", path), logging.Error(err))
		return FallbackDuration
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil || dur <= 0 {
		s.logger.Warn("unparseable duration, using fallback", logging.String("raw", strings.TrimSpace(out)))
		return FallbackDuration
	}
	return dur
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, tailLines(string(output), 3))
	}
	return nil
}

func defaultOutputRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, tailLines(string(output), 3))
	}
	return string(output), nil
}

// tailLines returns the last n non-empty lines of subprocess output, the part
// that usually carries the actual diagnostic.
func tailLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			kept = append([]string{line}, kept...)
		}
	}
	return strings.Join(kept, " | ")
}

// ext returns the lowercase extension of path including the dot.
func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
