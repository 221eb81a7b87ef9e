package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	SocketPath  string `toml:"socket_path"`
}

// Tools names the external binaries zinc shells out to.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	YtDlp   string `toml:"ytdlp"`
	Python  string `toml:"python"`
}

// Fetch configures remote media acquisition.
type Fetch struct {
	DefaultFormat    string `toml:"default_format"`
	DefaultContainer string `toml:"default_container"`
	RestrictNames    bool   `toml:"restrict_filenames"`
}

// Subtitles configures default subtitle generation behavior.
type Subtitles struct {
	Enabled       bool   `toml:"enabled"`
	DefaultEngine string `toml:"default_engine"`
	DefaultModel  string `toml:"default_model"`
	DefaultStyle  string `toml:"default_style"`
	Language      string `toml:"language"`
}

// Workflow contains daemon scheduling knobs.
type Workflow struct {
	MaxActiveTasks int `toml:"max_active_tasks"`
}

// Config is the root zinc configuration.
type Config struct {
	Paths     `toml:"paths"`
	Tools     Tools     `toml:"tools"`
	Fetch     Fetch     `toml:"fetch"`
	Subtitles Subtitles `toml:"subtitles"`
	Workflow  Workflow  `toml:"workflow"`
	LogLevel  string    `toml:"log_level"`
	LogFormat string    `toml:"log_format"`
}

// DefaultConfigPath returns the expected location of the config file.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "zinc", "config.toml"), nil
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. An empty path means the default location.
func Load(path string) (*Config, string, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", err
		}
		resolved = defaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg.applyDefaults()
		return cfg, resolved, nil
	case err != nil:
		return nil, resolved, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, resolved, fmt.Errorf("parse config %s: %w", resolved, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, resolved, err
	}
	return cfg, resolved, nil
}

// WriteSample writes the embedded sample configuration to path without
// overwriting an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}
	switch c.Subtitles.DefaultStyle {
	case "", "word", "sentence":
	default:
		return fmt.Errorf("subtitles.default_style: must be \"word\" or \"sentence\", got %q", c.Subtitles.DefaultStyle)
	}
	if c.Workflow.MaxActiveTasks < 1 {
		return fmt.Errorf("workflow.max_active_tasks: must be at least 1, got %d", c.Workflow.MaxActiveTasks)
	}
	return nil
}

// EnsureDirectories creates the directories zinc writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DownloadDir, c.DataDir, c.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// HistoryDBPath returns the SQLite journal location.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// ModelsDir returns the per-engine model storage directory.
func (c *Config) ModelsDir(engineID string) string {
	return filepath.Join(c.DataDir, "models", engineID)
}

// RuntimeDir returns the staged-runtime directory (sherpa-onnx binaries, helper scripts).
func (c *Config) RuntimeDir() string {
	return filepath.Join(c.DataDir, "runtime")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "zincd.lock")
}
