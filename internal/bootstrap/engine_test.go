package bootstrap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dendotai/transpoze-app/internal/config"
	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/jobs"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	cfg.Encoder.Path = filepath.Join(root, "missing-ffmpeg")
	return &cfg
}

// TestNewEngineHoldsInstanceLock checks that a second engine is refused.
func TestNewEngineHoldsInstanceLock(t *testing.T) {
	cfg := testConfig(t)

	first, err := NewEngine(cfg, nil, EngineOptions{})
	if err != nil {
		t.Fatalf("first engine: %v", err)
	}
	if _, err := NewEngine(cfg, nil, EngineOptions{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second engine error = %v, want %v", err, ErrAlreadyRunning)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := NewEngine(cfg, nil, EngineOptions{})
	if err != nil {
		t.Fatalf("engine after close: %v", err)
	}
	if err := again.Close(); err != nil {
		t.Fatalf("close again: %v", err)
	}
}

// TestNewEngineCreatesDirectories checks data and cache directories exist.
func TestNewEngineCreatesDirectories(t *testing.T) {
	cfg := testConfig(t)
	engine, err := NewEngine(cfg, nil, EngineOptions{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.CacheDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory %s missing: %v", dir, err)
		}
	}
	if engine.Settings == nil || engine.Scheduler == nil || engine.History == nil {
		t.Fatal("engine components not wired")
	}
}

// TestEngineFailsJobWithoutEncoder checks that extra sinks see scheduler events.
func TestEngineFailsJobWithoutEncoder(t *testing.T) {
	cfg := testConfig(t)

	seen := make(chan jobs.Event, 64)
	engine, err := NewEngine(cfg, nil, EngineOptions{
		Sinks: []jobs.Sink{jobs.SinkFunc(func(event jobs.Event) {
			select {
			case seen <- event:
			default:
			}
		})},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	settings := config.DefaultSettings()
	job, err := engine.SubmitFile(filepath.Join(t.TempDir(), "clip.mov"), "", "mobile", settings)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Preset.Name != "Mobile" {
		t.Fatalf("Preset = %s, want Mobile", job.Preset.Name)
	}

	timeout := time.After(2 * time.Second)
	for failed := false; !failed; {
		select {
		case event := <-seen:
			if event.Type != jobs.EventConversionFailed {
				continue
			}
			if event.JobID != job.ID {
				t.Fatalf("failed job = %s, want %s", event.JobID, job.ID)
			}
			failed = true
		case <-timeout:
			t.Fatal("no conversion-failed event")
		}
	}

	got, ok := engine.Scheduler.Job(job.ID)
	if !ok || got.Status != domain.JobStatusFailed {
		t.Fatalf("job = %+v, want failed", got)
	}
	if len(engine.Events.Since(0)) == 0 {
		t.Fatal("expected events on the bus")
	}
}
