package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDownloadDir    = "~/Downloads"
	defaultDataDir        = "~/.local/share/zinc"
	defaultLogDir         = "~/.local/share/zinc/logs"
	defaultSocketPath     = "~/.local/share/zinc/zincd.sock"
	defaultFFmpeg         = "ffmpeg"
	defaultFFprobe        = "ffprobe"
	defaultYtDlp          = "yt-dlp"
	defaultPython         = "python3"
	defaultFetchFormat    = "best"
	defaultContainer      = "mp4"
	defaultEngine         = "whisper"
	defaultModel          = "base"
	defaultStyle          = "sentence"
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
	defaultMaxActiveTasks = 2
)

// Default returns a Config populated with repository defaults.
func Default() *Config {
	return &Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			SocketPath:  defaultSocketPath,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpeg,
			FFprobe: defaultFFprobe,
			YtDlp:   defaultYtDlp,
			Python:  defaultPython,
		},
		Fetch: Fetch{
			DefaultFormat:    defaultFetchFormat,
			DefaultContainer: defaultContainer,
			RestrictNames:    true,
		},
		Subtitles: Subtitles{
			Enabled:       true,
			DefaultEngine: defaultEngine,
			DefaultModel:  defaultModel,
			DefaultStyle:  defaultStyle,
		},
		Workflow: Workflow{
			MaxActiveTasks: defaultMaxActiveTasks,
		},
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

// applyDefaults fills zero-valued fields and expands home-relative paths.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DownloadDir) == "" {
		c.DownloadDir = defaultDownloadDir
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.SocketPath) == "" {
		c.SocketPath = defaultSocketPath
	}
	c.DownloadDir = expandPath(c.DownloadDir)
	c.DataDir = expandPath(c.DataDir)
	c.LogDir = expandPath(c.LogDir)
	c.SocketPath = expandPath(c.SocketPath)

	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
	if strings.TrimSpace(c.Tools.FFprobe) == "" {
		c.Tools.FFprobe = defaultFFprobe
	}
	if strings.TrimSpace(c.Tools.YtDlp) == "" {
		c.Tools.YtDlp = defaultYtDlp
	}
	if strings.TrimSpace(c.Tools.Python) == "" {
		c.Tools.Python = defaultPython
	}
	if strings.TrimSpace(c.Fetch.DefaultFormat) == "" {
		c.Fetch.DefaultFormat = defaultFetchFormat
	}
	if strings.TrimSpace(c.Fetch.DefaultContainer) == "" {
		c.Fetch.DefaultContainer = defaultContainer
	}
	if strings.TrimSpace(c.Subtitles.DefaultEngine) == "" {
		c.Subtitles.DefaultEngine = defaultEngine
	}
	if strings.TrimSpace(c.Subtitles.DefaultModel) == "" {
		c.Subtitles.DefaultModel = defaultModel
	}
	if strings.TrimSpace(c.Subtitles.DefaultStyle) == "" {
		c.Subtitles.DefaultStyle = defaultStyle
	}
	if c.Workflow.MaxActiveTasks == 0 {
		c.Workflow.MaxActiveTasks = defaultMaxActiveTasks
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = defaultLogLevel
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = defaultLogFormat
	}
}

func expandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return trimmed
	}
	if strings.HasPrefix(trimmed, "~"+string(os.PathSeparator)) || strings.HasPrefix(trimmed, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, trimmed[2:])
		}
	}
	return trimmed
}

// Describe renders the effective configuration as TOML for `zinc config show`.
func (c *Config) Describe() string {
	return fmt.Sprintf(
		"download_dir = %q\ndata_dir = %q\nlog_dir = %q\nsocket_path = %q\nengine = %q\nmodel = %q\nstyle = %q\nmax_active_tasks = %d\n",
		c.DownloadDir, c.DataDir, c.LogDir, c.SocketPath,
		c.Subtitles.DefaultEngine, c.Subtitles.DefaultModel, c.Subtitles.DefaultStyle,
		c.Workflow.MaxActiveTasks,
	)
}
