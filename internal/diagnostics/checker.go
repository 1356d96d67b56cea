package diagnostics

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/encoder"
)

// Diagnostic item ids.
const (
	ItemEncoder        = "encoder"
	ItemEncoderVersion = "encoder_version"
	ItemOutputDir      = "output_dir"
	ItemDataDir        = "data_dir"
	ItemCacheDir       = "cache_dir"
)

// Checker validates the encoder and required filesystem paths.
type Checker struct {
	locate     func() (string, error)
	version    func(context.Context, string) (domain.EncoderVersion, error)
	dataDir    string
	cacheDir   string
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(locator *encoder.Locator, dataDir, cacheDir string) *Checker {
	return NewCheckerForTests(
		locator.Locate,
		locator.VersionInfo,
		dataDir,
		cacheDir,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	encoderItem, encoderPath := c.checkEncoder()
	items := []domain.DiagnosticItem{
		encoderItem,
		c.checkEncoderVersion(ctx, encoderPath),
		c.checkOutputDir(settings.OutputDirectory),
		c.checkWritableDir(ItemDataDir, "Data directory", c.dataDir),
		c.checkWritableDir(ItemCacheDir, "Cache directory", c.cacheDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkEncoder verifies an encoder binary can be resolved.
func (c *Checker) checkEncoder() (domain.DiagnosticItem, string) {
	path, err := c.locate()
	if err != nil {
		return domain.DiagnosticItem{
			ID:      ItemEncoder,
			Name:    "FFmpeg",
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Encoder not available: %v", err),
			Hint:    "Install ffmpeg, set encoder.path in config.toml, or reinstall the app to restore the bundled binary.",
		}, ""
	}

	return domain.DiagnosticItem{
		ID:      ItemEncoder,
		Name:    "FFmpeg",
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}, path
}

// checkEncoderVersion reports the encoder build. It only warns.
func (c *Checker) checkEncoderVersion(ctx context.Context, path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   ItemEncoderVersion,
		Name: "FFmpeg version",
	}
	if path == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Skipped because no encoder was found."
		return item
	}

	info, err := c.version(ctx, path)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot determine encoder version: %v", err)
		item.Hint = "Conversions may still work; run the binary with -version to check it."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "Version " + info.Version
	if info.Date != "" {
		item.Message += fmt.Sprintf(" (built %s)", info.Date)
	}
	return item
}

// checkOutputDir validates the preferred output directory. An empty value
// writes next to each source file.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	if strings.TrimSpace(outputDir) == "" {
		return domain.DiagnosticItem{
			ID:      ItemOutputDir,
			Name:    "Output directory",
			Status:  domain.DiagnosticStatusPass,
			Message: "Converted files are written next to each source file.",
		}
	}
	item := c.checkWritableDir(ItemOutputDir, "Output directory", outputDir)
	if item.Status == domain.DiagnosticStatusFail {
		item.Hint = "Choose a writable output folder in settings or clear it to write next to the source."
	}
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Set the path in config.toml."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	locate func() (string, error),
	version func(context.Context, string) (domain.EncoderVersion, error),
	dataDir string,
	cacheDir string,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		locate:     locate,
		version:    version,
		dataDir:    dataDir,
		cacheDir:   cacheDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
