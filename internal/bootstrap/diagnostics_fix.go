package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/dendotai/transpoze-app/internal/diagnostics"
	"github.com/dendotai/transpoze-app/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// installer runs package-manager commands until one succeeds.
type installer struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(name string, args ...string) error
}

func newInstaller() *installer {
	return &installer{
		goos:     goruntime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	var fixErr error
	switch id {
	case diagnostics.ItemEncoder, diagnostics.ItemEncoderVersion:
		fixErr = a.installer().installFFmpeg()
	case diagnostics.ItemOutputDir:
		fixErr = installOrFixOutputDir(settings)
	case diagnostics.ItemDataDir:
		fixErr = installOrFixDir(a.dataDir)
	case diagnostics.ItemCacheDir:
		fixErr = installOrFixDir(a.cacheDir)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		a.log.Warn("diagnostic fix failed", "item", id, "error", fixErr)
		return report, fixErr
	}
	a.log.Info("diagnostic fix applied", "item", id)
	return report, nil
}

func (a *App) installer() *installer {
	if a.install != nil {
		return a.install
	}
	return newInstaller()
}

// ensureToolDirsOnPATH appends package-manager bin directories that desktop
// launchers often leave out of PATH.
func ensureToolDirsOnPATH(goos string) error {
	var candidates []string
	switch goos {
	case "darwin":
		candidates = []string{"/opt/homebrew/bin", "/usr/local/bin"}
	case "linux":
		candidates = []string{"/usr/local/bin", "/snap/bin"}
	default:
		return nil
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	present := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		present[filepath.Clean(entry)] = struct{}{}
	}

	for _, dir := range candidates {
		if _, ok := present[filepath.Clean(dir)]; ok {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if current == "" {
			current = dir
		} else {
			current = current + string(os.PathListSeparator) + dir
		}
	}
	return os.Setenv("PATH", current)
}

func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{
				manager: "winget",
				commands: [][]string{
					{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
				},
			},
			{
				manager: "choco",
				commands: [][]string{
					{"choco", "install", "ffmpeg", "-y"},
				},
			},
			{
				manager: "scoop",
				commands: [][]string{
					{"scoop", "install", "ffmpeg"},
				},
			},
		}
	case "darwin":
		return []installOption{
			{
				manager: "brew",
				commands: [][]string{
					{"brew", "install", "ffmpeg"},
				},
			},
		}
	default:
		return []installOption{
			{
				manager: "apt-get",
				commands: [][]string{
					{"apt-get", "update"},
					{"apt-get", "install", "-y", "ffmpeg"},
				},
			},
			{
				manager: "dnf",
				commands: [][]string{
					{"dnf", "install", "-y", "ffmpeg"},
				},
			},
			{
				manager: "pacman",
				commands: [][]string{
					{"pacman", "-Sy", "--noconfirm", "ffmpeg"},
				},
			},
			{
				manager: "zypper",
				commands: [][]string{
					{"zypper", "install", "-y", "ffmpeg"},
				},
			},
			{
				manager: "brew",
				commands: [][]string{
					{"brew", "install", "ffmpeg"},
				},
			},
		}
	}
}

func (i *installer) installFFmpeg() error {
	if err := i.requireToolsOnPath("ffmpeg"); err == nil {
		return nil
	}
	if err := i.runFirstSuccessful(ffmpegInstallOptions(i.goos)); err != nil {
		return fmt.Errorf("install ffmpeg: %w", err)
	}
	if err := i.requireToolsOnPath("ffmpeg"); err != nil {
		return fmt.Errorf("verify ffmpeg on PATH: %w", err)
	}
	return nil
}

func (i *installer) runFirstSuccessful(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !i.commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		if err := i.runAll(option.commands); err != nil {
			errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
			continue
		}
		return nil
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func (i *installer) runAll(commands [][]string) error {
	for _, command := range commands {
		if err := i.runWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func (i *installer) runWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		err := i.run(candidate[0], candidate[1:]...)
		if err == nil {
			return nil
		}
		attemptErrors = append(attemptErrors, err.Error())
	}
	return errors.New(strings.Join(attemptErrors, " | "))
}

func (i *installer) commandAvailable(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func (i *installer) requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if !i.commandAvailable(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

// installOrFixOutputDir creates the preferred output directory. An empty
// preference needs no fix.
func installOrFixOutputDir(settings domain.Settings) error {
	outputDir := strings.TrimSpace(settings.OutputDirectory)
	if outputDir == "" {
		return nil
	}
	return installOrFixDir(outputDir)
}

func installOrFixDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("directory path is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
