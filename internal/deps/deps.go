// Package deps inspects the external tools and system capabilities the
// pipeline depends on: ffmpeg/ffprobe, yt-dlp, optional python and GPU
// support, plus free disk space in the working directories.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/olivier-w/zinc/internal/config"
)

// Requirement defines an external dependency zinc relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the dependency list for the configured tool commands.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Tools.FFmpeg, Description: "Audio extraction, caption embedding"},
		{Name: "FFprobe", Command: cfg.Tools.FFprobe, Description: "Media duration probing"},
		{Name: "yt-dlp", Command: cfg.Tools.YtDlp, Description: "Remote media fetching"},
		{Name: "Python", Command: cfg.Tools.Python, Description: "Runs the parakeet transcription engine", Optional: true},
		{Name: "NVIDIA driver", Command: "nvidia-smi", Description: "GPU acceleration for transcription", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired filters statuses down to unavailable non-optional entries.
func MissingRequired(statuses []Status) []Status {
	missing := make([]Status, 0)
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
