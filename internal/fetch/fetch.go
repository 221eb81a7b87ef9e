// Package fetch wraps yt-dlp for remote media acquisition. The tool's
// line-oriented progress output is parsed with fixed patterns; absent or
// malformed lines are tolerated and simply produce no event.
package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/services"
)

var (
	progressRe = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+~?\s*(\d+\.?\d*\w+)\s+at\s+(\d+\.?\d*\w+/s)\s+ETA\s+(\d+:\d+)`)
	destRe     = regexp.MustCompile(`\[download\]\s+Destination:\s+(.+)`)
	alreadyRe  = regexp.MustCompile(`\[download\]\s+(.+)\s+has already been downloaded`)
	mergerRe   = regexp.MustCompile(`\[Merger\]\s+Merging formats into "(.+)"`)
)

// Progress is one parsed download progress line.
type Progress struct {
	Percent   float64
	TotalSize string
	Speed     string
	ETA       string
}

// ProgressFunc receives parsed progress events.
type ProgressFunc func(Progress)

// VideoInfo is the metadata subset surfaced before a download.
type VideoInfo struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	WebpageURL string  `json:"webpage_url"`
}

// Options configures one download.
type Options struct {
	Format    string // preset name or raw yt-dlp format selector
	Container string // merge container, e.g. "mp4"
	OutputDir string
	Template  string // output filename template, defaults to title.ext
}

type streamRunner func(ctx context.Context, name string, args []string, onLine func(string)) (stderrTail string, err error)

type outputRunner func(ctx context.Context, name string, args ...string) (string, error)

// Service shells out to yt-dlp.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	stream  streamRunner
	capture outputRunner
}

// NewService constructs a fetch service from the configured yt-dlp command.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "fetch"),
		stream:  defaultStreamRunner,
		capture: defaultOutputRunner,
	}
}

// WithStreamRunner injects a custom streaming runner for tests.
func (s *Service) WithStreamRunner(r streamRunner) {
	if s != nil && r != nil {
		s.stream = r
	}
}

// WithOutputRunner injects a custom capturing runner for tests.
func (s *Service) WithOutputRunner(r outputRunner) {
	if s != nil && r != nil {
		s.capture = r
	}
}

// CheckInstalled reports whether the yt-dlp binary resolves.
func (s *Service) CheckInstalled() error {
	if _, err := exec.LookPath(s.cfg.Tools.YtDlp); err != nil {
		return services.Wrap(services.ErrNotInstalled, "downloading", "yt-dlp",
			"yt-dlp is required for remote fetches; install it and ensure it is on PATH", err)
	}
	return nil
}

// Info queries metadata for the URL without downloading.
func (s *Service) Info(ctx context.Context, url string) (VideoInfo, error) {
	out, err := s.capture(ctx, s.cfg.Tools.YtDlp,
		"--dump-json",
		"--no-download",
		"--no-warnings",
		"--no-playlist",
		url,
	)
	if err != nil {
		return VideoInfo{}, services.Wrap(services.ErrSubprocess, "downloading", "yt-dlp", "query media info", err)
	}
	var info VideoInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return VideoInfo{}, services.Wrap(services.ErrSubprocess, "downloading", "yt-dlp", "unparseable media info", err)
	}
	return info, nil
}

// Download fetches the URL and returns the path of the delivered file, parsed
// from the tool's Destination/Merger lines.
func (s *Service) Download(ctx context.Context, url string, opts Options, progress ProgressFunc) (string, error) {
	template := strings.TrimSpace(opts.Template)
	if template == "" {
		template = "%(title)s.%(ext)s"
	}
	outputPath := filepath.Join(opts.OutputDir, template)

	args := []string{
		"--newline",
		"--progress",
		"--no-warnings",
		"--no-playlist",
	}
	if s.cfg.Fetch.RestrictNames {
		args = append(args, "--restrict-filenames")
	}
	args = append(args, "-f", ResolveFormat(opts.Format), "-o", outputPath)
	if container := strings.TrimSpace(opts.Container); container != "" {
		args = append(args, "--merge-output-format", container)
	}
	args = append(args, url)

	s.logger.Info("starting fetch", logging.String("url", url), logging.String("format", opts.Format))

	var finalFilename string
	stderrTail, err := s.stream(ctx, s.cfg.Tools.YtDlp, args, func(line string) {
		if name, ok := parseFilename(line); ok {
			finalFilename = name
		}
		if p, ok := parseProgressLine(line); ok && progress != nil {
			progress(p)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCancelled, "downloading", "yt-dlp", "download cancelled", ctx.Err())
		}
		msg := "download failed"
		if stderrTail != "" {
			msg = "download failed: " + stderrTail
		}
		return "", services.Wrap(services.ErrSubprocess, "downloading", "yt-dlp", msg, err)
	}
	if finalFilename == "" {
		return "", services.Wrap(services.ErrSubprocess, "downloading", "yt-dlp",
			"could not determine the downloaded file path from tool output", nil)
	}
	return finalFilename, nil
}

// parseProgressLine extracts percent, size, speed, and ETA from a progress
// line. Lines that do not match produce no event.
func parseProgressLine(line string) (Progress, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		percent = 0
	}
	return Progress{
		Percent:   percent,
		TotalSize: m[2],
		Speed:     m[3],
		ETA:       m[4],
	}, true
}

// parseFilename recognizes the three line shapes that name the output file.
// The merger line wins over earlier destination lines since it names the
// combined result.
func parseFilename(line string) (string, bool) {
	if m := mergerRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := destRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := alreadyRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// ResolveFormat maps a preset name to a yt-dlp format selector; unknown
// values pass through as raw selectors.
func ResolveFormat(preset string) string {
	switch strings.TrimSpace(preset) {
	case "", "best":
		return "bestvideo+bestaudio/best"
	case "1080p":
		return "bestvideo[height<=1080]+bestaudio/best[height<=1080]"
	case "720p":
		return "bestvideo[height<=720]+bestaudio/best[height<=720]"
	case "480p":
		return "bestvideo[height<=480]+bestaudio/best[height<=480]"
	case "audio":
		return "bestaudio/best"
	default:
		return preset
	}
}

// FormatPresets lists the named quality presets for display.
func FormatPresets() []string {
	return []string{"best", "1080p", "720p", "480p", "audio"}
}

func defaultStreamRunner(ctx context.Context, name string, args []string, onLine func(string)) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("pipe stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", name, err)
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	waitErr := cmd.Wait()
	return stderrLast(stderr.String(), 3), waitErr
}

func defaultOutputRunner(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, stderrLast(stderr.String(), 3))
	}
	return string(out), nil
}

// stderrLast keeps the last n non-empty stderr lines, where yt-dlp puts its
// actual error.
func stderrLast(output string, n int) string {
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
