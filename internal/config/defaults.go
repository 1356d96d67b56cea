package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// History backends.
const (
	HistoryBackendJSON   = "json"
	HistoryBackendSQLite = "sqlite"
)

const (
	defaultPollIntervalMS      = 100
	defaultProgressBuffer      = 32
	defaultStallTimeoutSeconds = 300
	defaultFastTrack           = "idle"
	defaultHistoryLimit        = 100
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
)

// Default returns the engine configuration used when no file exists.
func Default() Config {
	return Config{
		Scheduler: Scheduler{
			PollIntervalMS:      defaultPollIntervalMS,
			ProgressBuffer:      defaultProgressBuffer,
			StallTimeoutSeconds: defaultStallTimeoutSeconds,
			FastTrack:           defaultFastTrack,
		},
		Paths: Paths{
			DataDir:  defaultDataDir(),
			CacheDir: defaultCacheDir(),
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		History: History{
			Backend: HistoryBackendJSON,
			Limit:   defaultHistoryLimit,
		},
	}
}

// DefaultSettings returns baseline output preferences for first launch. An
// empty output directory writes next to the source file.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		UseSubdirectory:  true,
		SubdirectoryName: "converted",
		FileNamePattern:  "{name}_converted",
	}
}

func defaultDataDir() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "transpoze")
	}
	return "~/.local/share/transpoze"
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "transpoze")
	}
	return "~/.cache/transpoze"
}
