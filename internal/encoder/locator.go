package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// VersionFileName is the metadata file shipped beside a bundled encoder.
const VersionFileName = "ffmpeg-version.json"

// Locator resolves the encoder binary: a configured path first, then a
// sidecar bundled next to the executable, then PATH.
type Locator struct {
	configured   string
	goos         string
	goarch       string
	executable   func() (string, error)
	lookPath     func(string) (string, error)
	isExecutable func(string) bool
	readFile     func(string) ([]byte, error)
	runner       commandRunner
}

// NewLocator builds a locator using real OS dependencies.
func NewLocator(configured string) *Locator {
	return NewLocatorForTests(configured, os.Executable, exec.LookPath, isExecutable, os.ReadFile, &execRunner{})
}

// NewLocatorForTests creates a locator with injectable dependencies.
func NewLocatorForTests(
	configured string,
	executable func() (string, error),
	lookPath func(string) (string, error),
	isExecutable func(string) bool,
	readFile func(string) ([]byte, error),
	runner commandRunner,
) *Locator {
	return &Locator{
		configured:   strings.TrimSpace(configured),
		goos:         goruntime.GOOS,
		goarch:       goruntime.GOARCH,
		executable:   executable,
		lookPath:     lookPath,
		isExecutable: isExecutable,
		readFile:     readFile,
		runner:       runner,
	}
}

// Locate returns the path of a usable encoder binary.
func (l *Locator) Locate() (string, error) {
	if l.configured != "" {
		if l.isExecutable(l.configured) {
			return l.configured, nil
		}
		return "", fmt.Errorf("%w: configured path is not executable: %s", ErrEncoderNotFound, l.configured)
	}

	for _, candidate := range l.sidecarCandidates() {
		if l.isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := l.lookPath(l.exeName("ffmpeg")); err == nil {
		return path, nil
	}
	return "", ErrEncoderNotFound
}

// SidecarName returns the platform-specific bundled binary name, for example
// ffmpeg-aarch64-apple-darwin.
func (l *Locator) SidecarName() string {
	return l.exeName("ffmpeg-" + targetTriple(l.goos, l.goarch))
}

// VersionInfo describes the encoder at path. It prefers the bundled version
// file and falls back to the first line of -version output.
func (l *Locator) VersionInfo(ctx context.Context, path string) (domain.EncoderVersion, error) {
	if data, err := l.readFile(filepath.Join(filepath.Dir(path), VersionFileName)); err == nil {
		var info domain.EncoderVersion
		if err := json.Unmarshal(data, &info); err == nil && info.Version != "" {
			return info, nil
		}
	}

	result, err := l.runner.Run(ctx, path, "-version")
	if err != nil {
		return domain.EncoderVersion{}, fmt.Errorf("query encoder version: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(result.Stdout), "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return domain.EncoderVersion{Version: fields[2]}, nil
	}
	if line == "" {
		return domain.EncoderVersion{}, fmt.Errorf("query encoder version: empty output")
	}
	return domain.EncoderVersion{Version: strings.TrimSpace(line)}, nil
}

func (l *Locator) sidecarCandidates() []string {
	exe, err := l.executable()
	if err != nil {
		return nil
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	exeDir := filepath.Dir(exe)

	dirs := []string{
		exeDir,
		filepath.Join(exeDir, "binaries"),
		filepath.Join(exeDir, "..", "Resources", "binaries"),
		filepath.Join(exeDir, "..", "Resources"),
	}
	names := []string{l.SidecarName(), l.exeName("ffmpeg")}

	out := make([]string, 0, len(dirs)*len(names))
	for _, dir := range dirs {
		for _, name := range names {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

func (l *Locator) exeName(name string) string {
	if l.goos == "windows" {
		return name + ".exe"
	}
	return name
}

func targetTriple(goos, goarch string) string {
	arch := goarch
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	}

	switch goos {
	case "darwin":
		return arch + "-apple-darwin"
	case "linux":
		return arch + "-unknown-linux-gnu"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return arch + "-" + goos
	}
}
