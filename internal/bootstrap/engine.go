package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofrs/flock"

	"github.com/dendotai/transpoze-app/internal/config"
	"github.com/dendotai/transpoze-app/internal/diagnostics"
	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/encoder"
	"github.com/dendotai/transpoze-app/internal/history"
	"github.com/dendotai/transpoze-app/internal/jobs"
	"github.com/dendotai/transpoze-app/internal/logging"
	"github.com/dendotai/transpoze-app/internal/thumbnails"
)

// ErrAlreadyRunning is returned when another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another transpoze instance is already running")

// Engine owns the conversion scheduler and its collaborators. The desktop
// shell and the headless CLI both drive one.
type Engine struct {
	Config     *config.Config
	Logger     *slog.Logger
	Settings   config.Store
	Locator    *encoder.Locator
	Scheduler  *jobs.Scheduler
	History    history.Store
	Thumbnails *thumbnails.Cache
	Checker    *diagnostics.Checker
	Events     *jobs.EventBus

	lock *flock.Flock
}

// EngineOptions adds optional wiring to NewEngine.
type EngineOptions struct {
	// Sinks receive every job event after the in-memory bus.
	Sinks []jobs.Sink
}

// LoadConfig reads config.toml and builds the configured logger.
func LoadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(path))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.FileOptions(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dir))
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

// NewEngine takes the instance lock and wires the scheduler. Close releases
// everything it opened.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts EngineOptions) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	store, err := history.Open(cfg.History.Backend, cfg.HistoryPath(), cfg.History.Limit)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open history: %w", err)
	}

	thumbs := thumbnails.New(cfg.ThumbnailDir(), logger)
	locator := encoder.NewLocator(cfg.Encoder.Path)
	events := jobs.NewEventBus(1000)

	sinks := append([]jobs.Sink{events}, opts.Sinks...)
	scheduler := jobs.NewScheduler(jobs.Deps{
		Store:     jobs.NewStore(),
		Locator:   locator,
		Prober:    encoder.NewProber(),
		Converter: encoder.NewRunner(encoder.RunnerOptions{
			StallTimeout: cfg.StallTimeout(),
			Timeout:      cfg.ConversionTimeout(),
			Logger:       logger,
		}),
		Thumbnails: thumbs,
		History:    store,
		Sink:       jobs.Fanout(sinks...),
		Logger:     logger,
	}, jobs.Options{
		PollInterval:   cfg.PollInterval(),
		ProgressBuffer: cfg.Scheduler.ProgressBuffer,
		FastTrack:      jobs.FastTrackPolicy(cfg.Scheduler.FastTrack),
	})

	logger.Info("engine ready",
		"data_dir", cfg.Paths.DataDir,
		"history_backend", cfg.History.Backend,
		"fast_track", cfg.Scheduler.FastTrack,
	)

	return &Engine{
		Config:     cfg,
		Logger:     logger,
		Settings:   config.NewJSONStore(cfg.SettingsPath()),
		Locator:    locator,
		Scheduler:  scheduler,
		History:    store,
		Thumbnails: thumbs,
		Checker:    diagnostics.NewChecker(locator, cfg.Paths.DataDir, cfg.Paths.CacheDir),
		Events:     events,
		lock:       lock,
	}, nil
}

// SubmitFile queues inputPath with the named preset. An empty outputPath is
// derived from settings.
func (e *Engine) SubmitFile(inputPath, outputPath, presetName string, settings domain.Settings) (domain.Job, error) {
	return submitFile(e.Scheduler, inputPath, outputPath, presetName, settings)
}

func submitFile(scheduler *jobs.Scheduler, inputPath, outputPath, presetName string, settings domain.Settings) (domain.Job, error) {
	inputPath = strings.TrimSpace(inputPath)
	if inputPath == "" {
		return domain.Job{}, fmt.Errorf("input path is required")
	}

	name := strings.TrimSpace(presetName)
	if name == "" {
		name = domain.DefaultPresetName
	}
	preset, ok := domain.PresetByName(name)
	if !ok {
		return domain.Job{}, fmt.Errorf("unknown preset %q", presetName)
	}

	outputPath = strings.TrimSpace(outputPath)
	if outputPath == "" {
		outputPath = config.OutputPathFor(settings, inputPath)
	}
	return scheduler.Submit(inputPath, outputPath, preset)
}

// Close stops the scheduler and releases the history store and lock.
func (e *Engine) Close() error {
	var errs []error
	if e.Scheduler != nil {
		e.Scheduler.Close()
	}
	if e.History != nil {
		if err := e.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
	}
	return errors.Join(errs...)
}
