package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Encoder selects the encoder binary.
type Encoder struct {
	Path string `toml:"path"`
}

// Scheduler tunes dispatch and conversion supervision.
type Scheduler struct {
	PollIntervalMS           int    `toml:"poll_interval_ms"`
	ProgressBuffer           int    `toml:"progress_buffer"`
	StallTimeoutSeconds      int    `toml:"stall_timeout_seconds"`
	ConversionTimeoutSeconds int    `toml:"conversion_timeout_seconds"`
	FastTrack                string `toml:"fast_track"`
}

// Paths contains state and cache directories.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	CacheDir string `toml:"cache_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// History selects where finished conversions are recorded.
type History struct {
	Backend string `toml:"backend"`
	Limit   int    `toml:"limit"`
}

// Config is the engine configuration read from config.toml. User-facing
// output preferences live in settings.json instead.
type Config struct {
	Encoder   Encoder   `toml:"encoder"`
	Scheduler Scheduler `toml:"scheduler"`
	Paths     Paths     `toml:"paths"`
	Logging   Logging   `toml:"logging"`
	History   History   `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/transpoze/config.toml")
}

// SampleConfig returns a commented config file with default values.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if env, ok := os.LookupEnv("TRANSPOZE_CONFIG"); ok {
			path = strings.TrimSpace(env)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the data and cache directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SettingsPath returns the user settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Paths.DataDir, "settings.json")
}

// HistoryPath returns the history file for the configured backend.
func (c *Config) HistoryPath() string {
	if c.History.Backend == HistoryBackendSQLite {
		return filepath.Join(c.Paths.DataDir, "history.db")
	}
	return filepath.Join(c.Paths.DataDir, "conversion_history.json")
}

// LockPath returns the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "transpoze.lock")
}

// ThumbnailDir returns the thumbnail cache directory.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.Paths.CacheDir, "thumbnails")
}

// PollInterval returns the dispatch loop interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalMS) * time.Millisecond
}

// StallTimeout returns how long a silent encoder may run. Zero disables it.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Scheduler.StallTimeoutSeconds) * time.Second
}

// ConversionTimeout returns the hard per-job limit. Zero disables it.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Scheduler.ConversionTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
