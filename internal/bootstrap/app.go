package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/dendotai/transpoze-app/internal/config"
	"github.com/dendotai/transpoze-app/internal/diagnostics"
	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/history"
	"github.com/dendotai/transpoze-app/internal/jobs"
	"github.com/dendotai/transpoze-app/internal/thumbnails"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v;*.wmv;*.flv;*.mpg;*.mpeg;*.ts",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App binds the conversion engine to the Wails frontend.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport

	scheduler  *jobs.Scheduler
	history    history.Store
	thumbnails *thumbnails.Cache
	checker    *diagnostics.Checker
	events     *jobs.EventBus
	encoderVer func(context.Context) (domain.EncoderVersion, error)
	closeFn    func() error
	install    *installer
	dataDir    string
	cacheDir   string
	log        *slog.Logger
	assets     fs.FS

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application from the default config file.
func New() (*App, error) {
	return NewWithAssets(nil, "")
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS, configPath string) (*App, error) {
	cfg, logger, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := ensureToolDirsOnPATH(goruntime.GOOS); err != nil {
		return nil, fmt.Errorf("prepare tool path: %w", err)
	}

	app := &App{assets: assets, log: logger}
	engine, err := NewEngine(cfg, logger, EngineOptions{
		Sinks: []jobs.Sink{jobs.SinkFunc(app.emitRuntime)},
	})
	if err != nil {
		return nil, err
	}
	app.attach(engine)

	settings, err := app.Store.Load()
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}
	app.Settings = normalizeSettings(settings)
	app.Diagnostics = app.checker.Run(context.Background(), app.Settings)
	return app, nil
}

// attach wires an engine's components into the bound surface.
func (a *App) attach(engine *Engine) {
	a.Store = engine.Settings
	a.scheduler = engine.Scheduler
	a.history = engine.History
	a.thumbnails = engine.Thumbnails
	a.checker = engine.Checker
	a.events = engine.Events
	a.log = engine.Logger
	a.closeFn = engine.Close
	if engine.Config != nil {
		a.dataDir = engine.Config.Paths.DataDir
		a.cacheDir = engine.Config.Paths.CacheDir
	}
	locator := engine.Locator
	a.encoderVer = func(ctx context.Context) (domain.EncoderVersion, error) {
		path, err := locator.Locate()
		if err != nil {
			return domain.EncoderVersion{}, err
		}
		return locator.VersionInfo(ctx, path)
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Transpoze",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops conversions and releases the engine.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	closeFn := a.closeFn
	a.closeFn = nil
	a.mu.Unlock()

	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil && a.log != nil {
		a.log.Warn("shutdown incomplete", "error", err)
	}
}

// GetPresets returns the preset catalog.
func (a *App) GetPresets() []domain.Preset {
	return domain.Presets()
}

// AddConversionJob queues one file. An empty output path is derived from the
// saved settings and an empty preset selects the default.
func (a *App) AddConversionJob(inputPath, outputPath, presetName string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}
	return submitFile(a.scheduler, inputPath, outputPath, presetName, normalizeSettings(settings))
}

// AddConversionJobs queues several files with one preset. Files that cannot
// be queued are skipped and reported in the returned error.
func (a *App) AddConversionJobs(inputPaths []string, presetName string) ([]domain.Job, error) {
	added := make([]domain.Job, 0, len(inputPaths))
	var errs []error
	for _, path := range inputPaths {
		job, err := a.AddConversionJob(path, "", presetName)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		added = append(added, job)
	}
	return added, errors.Join(errs...)
}

// GetConversionJobs returns every live job in submission order.
func (a *App) GetConversionJobs() []domain.Job {
	return a.scheduler.Jobs()
}

// CancelJob stops one queued or converting job.
func (a *App) CancelJob(jobID string) error {
	return a.scheduler.Cancel(strings.TrimSpace(jobID))
}

// ClearCompletedJobs drops finished jobs and returns their ids.
func (a *App) ClearCompletedJobs() []string {
	removed := a.scheduler.ClearTerminal()
	if removed == nil {
		return []string{}
	}
	return removed
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// GetHistory returns finished conversions, newest first.
func (a *App) GetHistory() ([]domain.HistoryEntry, error) {
	entries, err := a.history.List(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// ClearHistory removes every history entry.
func (a *App) ClearHistory() error {
	if err := a.history.Clear(context.Background()); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// GetThumbnail returns the preview image of a job as a data URL.
func (a *App) GetThumbnail(jobID string) (string, error) {
	job, ok := a.scheduler.Job(jobID)
	if !ok {
		return "", fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	if job.ThumbnailPath == "" {
		return a.thumbnails.DataURL(job.ID)
	}
	return thumbnails.DataURL(job.ThumbnailPath)
}

// GetEncoderVersion reports the resolved encoder build.
func (a *App) GetEncoderVersion() (domain.EncoderVersion, error) {
	return a.encoderVer(context.Background())
}

// CheckFileExists reports whether path exists.
func (a *App) CheckFileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(normalizeSettings(settings)), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// PreviewOutputPath shows where inputPath would be written with the saved settings.
func (a *App) PreviewOutputPath(inputPath string) (string, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	return config.OutputPathFor(normalizeSettings(settings), inputPath), nil
}

// PickInputFiles opens a native file dialog for video selection.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select videos",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// PickOutputDirectory opens a native directory picker for converted files.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDirectory
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RevealInFileManager opens the file manager with path selected where the
// platform supports it.
func (a *App) RevealInFileManager(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		return fmt.Errorf("path is empty")
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	return revealInFileManager(target)
}

// emitRuntime forwards a scheduler event to the frontend.
func (a *App) emitRuntime(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, string(event.Type), event)
	}
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	var report domain.DiagnosticReport
	if a.checker != nil {
		report = a.checker.Run(context.Background(), settings)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = report
	}
	return a.Diagnostics
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and restores defaults for empty names.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()
	settings.OutputDirectory = strings.TrimSpace(settings.OutputDirectory)
	settings.SubdirectoryName = strings.TrimSpace(settings.SubdirectoryName)
	settings.FileNamePattern = strings.TrimSpace(settings.FileNamePattern)
	if settings.SubdirectoryName == "" {
		settings.SubdirectoryName = defaults.SubdirectoryName
	}
	if settings.FileNamePattern == "" {
		settings.FileNamePattern = defaults.FileNamePattern
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}

// revealInFileManager selects path in Finder or Explorer and opens the
// parent directory elsewhere.
func revealInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path)
	case "windows":
		cmd = exec.Command("explorer", "/select,", filepath.Clean(path))
	default:
		return openInFileManager(filepath.Dir(path))
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
