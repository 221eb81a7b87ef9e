package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/services"
)

func newTestService() *Service {
	return NewService(config.Default(), logging.NewNop())
}

func TestParseProgressLine(t *testing.T) {
	cases := []struct {
		line    string
		percent float64
		size    string
		speed   string
		eta     string
	}{
		{"[download]  12.5% of ~ 120.5MiB at 2.3MiB/s ETA 01:23", 12.5, "120.5MiB", "2.3MiB/s", "01:23"},
		{"[download]   0.1% of 4.00GiB at 500KiB/s ETA 12:45", 0.1, "4.00GiB", "500KiB/s", "12:45"},
		{"[download] 100% of 10MiB at 5MiB/s ETA 00:00", 100, "10MiB", "5MiB/s", "00:00"},
	}
	for _, tc := range cases {
		p, ok := parseProgressLine(tc.line)
		if !ok {
			t.Errorf("line %q should parse", tc.line)
			continue
		}
		if p.Percent != tc.percent || p.TotalSize != tc.size || p.Speed != tc.speed || p.ETA != tc.eta {
			t.Errorf("parse %q = %+v", tc.line, p)
		}
	}
}

func TestParseProgressLineToleratesNoise(t *testing.T) {
	for _, line := range []string{
		"",
		"[youtube] Extracting URL",
		"[download] Destination: /dl/video.mp4",
		"random text without structure",
		"[download] garbage% of stuff",
	} {
		if _, ok := parseProgressLine(line); ok {
			t.Errorf("line %q should not parse as progress", line)
		}
	}
}

func TestParseFilename(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"[download] Destination: /dl/My_Video.f137.mp4", "/dl/My_Video.f137.mp4"},
		{"[Merger] Merging formats into \"/dl/My_Video.mp4\"", "/dl/My_Video.mp4"},
		{"[download] /dl/My_Video.mp4 has already been downloaded", "/dl/My_Video.mp4"},
	}
	for _, tc := range cases {
		got, ok := parseFilename(tc.line)
		if !ok || got != tc.want {
			t.Errorf("parseFilename(%q) = %q, %v; want %q", tc.line, got, ok, tc.want)
		}
	}
	if _, ok := parseFilename("[download]  42.0% of 1MiB at 1MiB/s ETA 00:01"); ok {
		t.Error("progress line must not parse as filename")
	}
}

func TestResolveFormat(t *testing.T) {
	cases := map[string]string{
		"":                   "bestvideo+bestaudio/best",
		"best":               "bestvideo+bestaudio/best",
		"1080p":              "bestvideo[height<=1080]+bestaudio/best[height<=1080]",
		"720p":               "bestvideo[height<=720]+bestaudio/best[height<=720]",
		"480p":               "bestvideo[height<=480]+bestaudio/best[height<=480]",
		"audio":              "bestaudio/best",
		"bestvideo[ext=mp4]": "bestvideo[ext=mp4]", // raw selectors pass through
	}
	for in, want := range cases {
		if got := ResolveFormat(in); got != want {
			t.Errorf("ResolveFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDownloadParsesOutput(t *testing.T) {
	svc := newTestService()
	var gotArgs []string
	svc.WithStreamRunner(func(_ context.Context, _ string, args []string, onLine func(string)) (string, error) {
		gotArgs = args
		onLine("[youtube] Extracting URL")
		onLine("[download] Destination: /dl/Talk.f137.mp4")
		onLine("[download]  50.0% of 100MiB at 4MiB/s ETA 00:30")
		onLine("[Merger] Merging formats into \"/dl/Talk.mp4\"")
		onLine("[download] 100% of 100MiB at 4MiB/s ETA 00:00")
		return "", nil
	})

	var events []Progress
	path, err := svc.Download(context.Background(), "https://example.com/v", Options{
		Format:    "1080p",
		Container: "mp4",
		OutputDir: "/dl",
	}, func(p Progress) { events = append(events, p) })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != "/dl/Talk.mp4" {
		t.Fatalf("merger line should win, got %q", path)
	}
	if len(events) != 2 || events[0].Percent != 50 {
		t.Fatalf("unexpected progress events: %+v", events)
	}
	joined := strings.Join(gotArgs, " ")
	for _, frag := range []string{
		"--newline", "--no-playlist", "--restrict-filenames",
		"-f bestvideo[height<=1080]+bestaudio/best[height<=1080]",
		"--merge-output-format mp4",
	} {
		if !strings.Contains(joined, frag) {
			t.Errorf("args missing %q: %s", frag, joined)
		}
	}
}

func TestDownloadFailureCarriesStderrTail(t *testing.T) {
	svc := newTestService()
	svc.WithStreamRunner(func(_ context.Context, _ string, _ []string, _ func(string)) (string, error) {
		return "ERROR: Video unavailable", errors.New("exit status 1")
	})
	_, err := svc.Download(context.Background(), "https://example.com/gone", Options{OutputDir: "/dl"}, nil)
	if !errors.Is(err, services.ErrSubprocess) {
		t.Fatalf("expected subprocess marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "Video unavailable") {
		t.Fatalf("stderr tail missing from error: %v", err)
	}
}

func TestDownloadCancelled(t *testing.T) {
	svc := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	svc.WithStreamRunner(func(c context.Context, _ string, _ []string, _ func(string)) (string, error) {
		cancel()
		return "", c.Err()
	})
	_, err := svc.Download(ctx, "https://example.com/v", Options{OutputDir: "/dl"}, nil)
	if !services.IsCancelled(err) {
		t.Fatalf("expected cancelled outcome, got %v", err)
	}
}

func TestDownloadNoFilenameIsError(t *testing.T) {
	svc := newTestService()
	svc.WithStreamRunner(func(_ context.Context, _ string, _ []string, onLine func(string)) (string, error) {
		onLine("[download] 100% of 1MiB at 1MiB/s ETA 00:00")
		return "", nil
	})
	if _, err := svc.Download(context.Background(), "https://example.com/v", Options{OutputDir: "/dl"}, nil); err == nil {
		t.Fatal("expected error when no destination line appears")
	}
}

func TestInfoParsesJSON(t *testing.T) {
	svc := newTestService()
	svc.WithOutputRunner(func(_ context.Context, _ string, args ...string) (string, error) {
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "--dump-json") || !strings.Contains(joined, "--no-download") {
			t.Fatalf("info args wrong: %s", joined)
		}
		return `{"title": "A Talk", "duration": 1234.5, "uploader": "chan", "webpage_url": "https://example.com/v"}`, nil
	})
	info, err := svc.Info(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Title != "A Talk" || info.Duration != 1234.5 {
		t.Fatalf("unexpected info: %+v", info)
	}
}
