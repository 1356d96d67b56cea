package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/logging"
	"github.com/dendotai/transpoze-app/internal/progress"
)

// Update is one progress sample for a running job.
type Update struct {
	JobID   string
	Percent float64
}

// RunnerOptions configures conversion supervision.
type RunnerOptions struct {
	// StallTimeout kills the encoder when no output line arrives for this
	// long. Zero disables the watchdog.
	StallTimeout time.Duration
	// Timeout bounds the whole conversion. Zero means no limit.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Runner executes one conversion job with an external encoder.
type Runner struct {
	launcher     Launcher
	mkdirAll     func(path string, perm os.FileMode) error
	now          func() time.Time
	stallTimeout time.Duration
	timeout      time.Duration
	log          *slog.Logger
}

// NewRunner constructs the production runner.
func NewRunner(opts RunnerOptions) *Runner {
	return NewRunnerForTests(ExecLauncher{}, os.MkdirAll, opts)
}

// NewRunnerForTests constructs a runner with injectable process and fs hooks.
func NewRunnerForTests(launcher Launcher, mkdirAll func(string, os.FileMode) error, opts RunnerOptions) *Runner {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Runner{
		launcher:     launcher,
		mkdirAll:     mkdirAll,
		now:          time.Now,
		stallTimeout: opts.StallTimeout,
		timeout:      opts.Timeout,
		log:          log,
	}
}

// NormalizeOutputPath replaces non-breaking spaces, which some encoder
// builds reject in output paths, with regular spaces.
func NormalizeOutputPath(path string) string {
	return strings.ReplaceAll(path, "\u00a0", " ")
}

// BuildArgs builds the encoder invocation for one job.
func BuildArgs(inputPath, outputPath string, preset domain.Preset) []string {
	args := []string{
		"-i", inputPath,
		"-progress", "pipe:2",
		"-stats",
		"-y",
	}
	args = append(args, preset.Args()...)
	return append(args, outputPath)
}

// Convert runs the encoder for job and blocks until it exits. Progress
// samples are offered to updates without blocking; a full channel drops the
// sample. The caller owns updates and may close it once Convert returns.
func (r *Runner) Convert(ctx context.Context, bin string, job domain.Job, updates chan<- Update) error {
	log := logging.WithJob(r.log, job.ID)

	output := NormalizeOutputPath(job.OutputPath)
	if dir := filepath.Dir(output); dir != "" && dir != "." {
		if err := r.mkdirAll(dir, 0o755); err != nil {
			return &ConversionError{
				Stage:   StageSetup,
				Message: fmt.Sprintf("failed to create output directory: %s", dir),
				Err:     err,
			}
		}
	}

	args := BuildArgs(job.InputPath, output, job.Preset)
	log.Debug("encoder command", "command", bin+" "+strings.Join(args, " "))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if r.timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(runCtx, r.timeout, ErrTimedOut)
		defer stop()
	}

	proc, err := r.launcher.Start(runCtx, bin, args...)
	if err != nil {
		return &ConversionError{
			Stage:   StageLaunch,
			Message: "failed to start encoder",
			Err:     err,
		}
	}

	var lastActivity atomic.Int64
	lastActivity.Store(r.now().UnixNano())
	if r.stallTimeout > 0 {
		go r.watchStall(runCtx, cancel, &lastActivity)
	}

	var (
		diagMu     sync.Mutex
		diagnostic string
		dropped    atomic.Int64
	)
	duration := job.DurationSeconds()
	handle := func(line string, errStream bool) {
		lastActivity.Store(r.now().UnixNano())
		if errStream && isDiagnostic(line) {
			diagMu.Lock()
			diagnostic = strings.TrimSpace(line)
			diagMu.Unlock()
		}
		seconds, ok := progress.ParseLine(line)
		if !ok || updates == nil {
			return
		}
		select {
		case updates <- Update{JobID: job.ID, Percent: progress.Percent(seconds, duration)}:
		default:
			dropped.Add(1)
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		drainLines(proc.Stdout(), func(line string) { handle(line, false) })
		return nil
	})
	g.Go(func() error {
		drainLines(proc.Stderr(), func(line string) { handle(line, true) })
		return nil
	})
	_ = g.Wait()
	waitErr := proc.Wait()

	if n := dropped.Load(); n > 0 {
		log.Debug("progress samples dropped", "count", n)
	}
	if waitErr == nil {
		return nil
	}

	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		return &ConversionError{
			Stage:    StageEncode,
			Message:  supervisionMessage(cause),
			ExitCode: exitCode(waitErr),
			Err:      cause,
		}
	}

	diagMu.Lock()
	defer diagMu.Unlock()
	convErr := &ConversionError{
		Stage:      StageEncode,
		Message:    "FFmpeg conversion failed",
		Diagnostic: diagnostic,
		ExitCode:   exitCode(waitErr),
		Err:        waitErr,
	}
	if diagnostic == "" {
		convErr.Message = "FFmpeg conversion failed with unknown error"
	}
	return convErr
}

// watchStall cancels the run with ErrStalled once output goes quiet.
func (r *Runner) watchStall(ctx context.Context, cancel context.CancelCauseFunc, lastActivity *atomic.Int64) {
	interval := r.stallTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := r.now().Sub(time.Unix(0, lastActivity.Load()))
			if idle >= r.stallTimeout {
				r.log.Warn("encoder produced no output, stopping it", "idle", idle.Round(time.Millisecond))
				cancel(ErrStalled)
				return
			}
		}
	}
}

func supervisionMessage(cause error) string {
	switch {
	case errors.Is(cause, ErrStalled):
		return "encoder stalled: no output received"
	case errors.Is(cause, ErrTimedOut):
		return "conversion timed out"
	case errors.Is(cause, context.Canceled):
		return "conversion cancelled"
	default:
		return fmt.Sprintf("conversion interrupted: %v", cause)
	}
}

// isDiagnostic reports whether an error-stream line looks like a failure
// reason worth surfacing.
func isDiagnostic(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") || strings.Contains(lower, "invalid")
}

// drainLines calls fn for every line of r. Lines end at \n or \r because
// -stats rewrites its line in place. A read error ends line handling but
// the rest of the stream is still discarded so the process never blocks on
// a full pipe.
func drainLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
