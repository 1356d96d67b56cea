package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dendotai/transpoze-app/internal/config"
	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/encoder"
	"github.com/dendotai/transpoze-app/internal/history"
	"github.com/dendotai/transpoze-app/internal/jobs"
	"github.com/dendotai/transpoze-app/internal/logging"
	"github.com/dendotai/transpoze-app/internal/thumbnails"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saved    []domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save records the saved value.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saved = append(s.saved, settings)
	return nil
}

type fakeLocator struct{}

func (fakeLocator) Locate() (string, error) { return "/bin/ffmpeg", nil }

// fakeProber reports a fixed duration and writes a placeholder thumbnail.
type fakeProber struct{}

func (fakeProber) Duration(context.Context, string, string) (float64, error) { return 60, nil }

func (fakeProber) Thumbnail(_ context.Context, _, _, outputPath string, _ float64) error {
	return os.WriteFile(outputPath, []byte("jpeg"), 0o644)
}

// converterFunc adapts a function to jobs.Converter.
type converterFunc func(ctx context.Context, job domain.Job, updates chan<- encoder.Update) error

func (f converterFunc) Convert(ctx context.Context, _ string, job domain.Job, updates chan<- encoder.Update) error {
	return f(ctx, job, updates)
}

func newTestApp(t *testing.T, converter converterFunc) *App {
	t.Helper()
	root := t.TempDir()

	events := jobs.NewEventBus(100)
	thumbs := thumbnails.New(filepath.Join(root, "thumbnails"), nil)
	hist := history.NewJSONStore(filepath.Join(root, "history.json"), 0)
	scheduler := jobs.NewScheduler(jobs.Deps{
		Locator:    fakeLocator{},
		Prober:     fakeProber{},
		Converter:  converter,
		Thumbnails: thumbs,
		History:    hist,
		Sink:       events,
	}, jobs.Options{PollInterval: 5 * time.Millisecond})
	t.Cleanup(scheduler.Close)

	settings := config.DefaultSettings()
	settings.OutputDirectory = filepath.Join(root, "out")
	return &App{
		Store:      &fakeStore{settings: settings},
		scheduler:  scheduler,
		history:    hist,
		thumbnails: thumbs,
		events:     events,
		log:        logging.NewNop(),
		dataDir:    filepath.Join(root, "data"),
		cacheDir:   filepath.Join(root, "cache"),
		encoderVer: func(context.Context) (domain.EncoderVersion, error) {
			return domain.EncoderVersion{Version: "7.1"}, nil
		},
	}
}

// TestAddConversionJobDerivesOutputPath checks the output path and preset defaults.
func TestAddConversionJobDerivesOutputPath(t *testing.T) {
	app := newTestApp(t, func(context.Context, domain.Job, chan<- encoder.Update) error { return nil })

	job, err := app.AddConversionJob("/videos/clip.mov", "", "")
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	settings, _ := app.Store.Load()
	want := filepath.Join(settings.OutputDirectory, "converted", "clip_converted.mp4")
	if job.OutputPath != want {
		t.Fatalf("OutputPath = %s, want %s", job.OutputPath, want)
	}
	if job.Preset.Name != domain.DefaultPresetName {
		t.Fatalf("Preset = %s, want %s", job.Preset.Name, domain.DefaultPresetName)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("Status = %s, want %s", job.Status, domain.JobStatusQueued)
	}
}

// TestAddConversionJobRejectsUnknownPreset checks preset validation.
func TestAddConversionJobRejectsUnknownPreset(t *testing.T) {
	app := newTestApp(t, func(context.Context, domain.Job, chan<- encoder.Update) error { return nil })

	if _, err := app.AddConversionJob("/videos/clip.mov", "", "Ultra"); err == nil {
		t.Fatal("expected unknown preset error")
	}
	if _, err := app.AddConversionJob("  ", "", "web"); err == nil {
		t.Fatal("expected empty input error")
	}
	if got := len(app.GetConversionJobs()); got != 0 {
		t.Fatalf("jobs = %d, want 0", got)
	}
}

// TestConversionPublishesProgressAndHistory checks the success path end to end.
func TestConversionPublishesProgressAndHistory(t *testing.T) {
	app := newTestApp(t, func(_ context.Context, job domain.Job, updates chan<- encoder.Update) error {
		updates <- encoder.Update{JobID: job.ID, Percent: 50}
		return nil
	})

	job, err := app.AddConversionJob("/videos/clip.mov", "/out/clip.mp4", "web")
	if err != nil {
		t.Fatalf("add job: %v", err)
	}

	waitForJob(t, app, job.ID, domain.JobStatusCompleted)
	waitFor(t, func() bool {
		entries, err := app.GetHistory()
		return err == nil && len(entries) == 1
	})

	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventJobUpdated)
	assertEventTypeExists(t, events, jobs.EventConversionProgress)
	assertEventTypeExists(t, events, jobs.EventConversionComplete)

	entries, _ := app.GetHistory()
	if entries[0].PresetName != "Web" {
		t.Fatalf("PresetName = %s, want Web", entries[0].PresetName)
	}

	url, err := app.GetThumbnail(job.ID)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("thumbnail url = %q", url)
	}

	if err := app.ClearHistory(); err != nil {
		t.Fatalf("clear history: %v", err)
	}
	entries, _ = app.GetHistory()
	if len(entries) != 0 {
		t.Fatalf("history = %d entries, want 0", len(entries))
	}
}

// TestConversionFailurePublishesFailedEvent checks the error path.
func TestConversionFailurePublishesFailedEvent(t *testing.T) {
	app := newTestApp(t, func(context.Context, domain.Job, chan<- encoder.Update) error {
		return &encoder.ConversionError{Stage: encoder.StageEncode, Message: "Unknown encoder 'libx264'"}
	})

	job, err := app.AddConversionJob("/videos/clip.mov", "", "")
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	got := waitForJob(t, app, job.ID, domain.JobStatusFailed)
	if !strings.Contains(got.Error, "libx264") {
		t.Fatalf("Error = %q, want encoder message", got.Error)
	}
	assertEventTypeExists(t, app.JobEvents(0), jobs.EventConversionFailed)

	removed := app.ClearCompletedJobs()
	if len(removed) != 1 || removed[0] != job.ID {
		t.Fatalf("removed = %v, want [%s]", removed, job.ID)
	}
	if cleared := app.ClearCompletedJobs(); len(cleared) != 0 {
		t.Fatalf("second clear = %v, want empty", cleared)
	}
	assertEventTypeExists(t, app.JobEvents(0), jobs.EventJobsCleared)
}

// TestCancelJobStopsConversion checks cancellation through the bound method.
func TestCancelJobStopsConversion(t *testing.T) {
	app := newTestApp(t, func(ctx context.Context, _ domain.Job, _ chan<- encoder.Update) error {
		<-ctx.Done()
		return ctx.Err()
	})

	job, err := app.AddConversionJob("/videos/clip.mov", "", "")
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	waitForJob(t, app, job.ID, domain.JobStatusProcessing)

	if err := app.CancelJob(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForJob(t, app, job.ID, domain.JobStatusFailed)

	if err := app.CancelJob(job.ID); !errors.Is(err, jobs.ErrNotCancellable) {
		t.Fatalf("second cancel error = %v, want %v", err, jobs.ErrNotCancellable)
	}
}

// TestSaveSettingsNormalizes checks trimming and defaults.
func TestSaveSettingsNormalizes(t *testing.T) {
	app := newTestApp(t, func(context.Context, domain.Job, chan<- encoder.Update) error { return nil })

	saved, err := app.SaveSettings(domain.Settings{
		OutputDirectory:  "  /tmp/out  ",
		UseSubdirectory:  true,
		SubdirectoryName: " ",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.OutputDirectory != "/tmp/out" {
		t.Fatalf("OutputDirectory = %q, want /tmp/out", saved.OutputDirectory)
	}
	if saved.SubdirectoryName != "converted" {
		t.Fatalf("SubdirectoryName = %q, want converted", saved.SubdirectoryName)
	}
	if saved.FileNamePattern != "{name}_converted" {
		t.Fatalf("FileNamePattern = %q, want {name}_converted", saved.FileNamePattern)
	}

	loaded, err := app.GetSettings()
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if loaded != saved {
		t.Fatalf("loaded = %+v, want %+v", loaded, saved)
	}

	preview, err := app.PreviewOutputPath("/videos/a.mkv")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if want := filepath.Join("/tmp/out", "converted", "a_converted.mp4"); preview != want {
		t.Fatalf("preview = %s, want %s", preview, want)
	}
}

// TestCheckFileExists checks the file probe helper.
func TestCheckFileExists(t *testing.T) {
	app := newTestApp(t, func(context.Context, domain.Job, chan<- encoder.Update) error { return nil })
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if app.CheckFileExists(path) {
		t.Fatal("expected missing file")
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !app.CheckFileExists(path) {
		t.Fatal("expected existing file")
	}
	if app.CheckFileExists("") {
		t.Fatal("expected empty path to be missing")
	}
}

// TestDialogsRequireRuntime checks dialog guards before startup.
func TestDialogsRequireRuntime(t *testing.T) {
	app := newTestApp(t, func(context.Context, domain.Job, chan<- encoder.Update) error { return nil })
	if _, err := app.PickInputFiles(); err == nil {
		t.Fatal("expected runtime error")
	}
	if _, err := app.PickOutputDirectory(); err == nil {
		t.Fatal("expected runtime error")
	}
}

// TestGetEncoderVersion checks the version passthrough.
func TestGetEncoderVersion(t *testing.T) {
	app := newTestApp(t, func(context.Context, domain.Job, chan<- encoder.Update) error { return nil })
	info, err := app.GetEncoderVersion()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if info.Version != "7.1" {
		t.Fatalf("Version = %s, want 7.1", info.Version)
	}
}

// waitForJob polls until the job reaches want or times out.
func waitForJob(t *testing.T, app *App, id string, want domain.JobStatus) domain.Job {
	t.Helper()
	var last domain.Job
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, job := range app.GetConversionJobs() {
			if job.ID == id {
				last = job
			}
		}
		if last.Status == want {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", last.Status, want)
	return last
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
