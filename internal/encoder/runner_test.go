package encoder

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// fakeProcess serves canned output streams.
type fakeProcess struct {
	stdout io.Reader
	stderr io.Reader
	wait   func() error
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader { return p.stderr }
func (p *fakeProcess) Wait() error {
	if p.wait == nil {
		return nil
	}
	return p.wait()
}

// fakeLauncher records the launched command.
type fakeLauncher struct {
	name  string
	args  []string
	start func(ctx context.Context) (Process, error)
}

// Start records the command and delegates to injected behavior.
func (l *fakeLauncher) Start(ctx context.Context, name string, args ...string) (Process, error) {
	l.name = name
	l.args = append([]string{}, args...)
	return l.start(ctx)
}

func cannedLauncher(stdout, stderr string, waitErr error) *fakeLauncher {
	return &fakeLauncher{start: func(context.Context) (Process, error) {
		return &fakeProcess{
			stdout: strings.NewReader(stdout),
			stderr: strings.NewReader(stderr),
			wait:   func() error { return waitErr },
		}, nil
	}}
}

// hangingLauncher returns a process that stays silent until ctx is done.
func hangingLauncher() *fakeLauncher {
	return &fakeLauncher{start: func(ctx context.Context) (Process, error) {
		outR, outW := io.Pipe()
		errR, errW := io.Pipe()
		go func() {
			<-ctx.Done()
			_ = outW.Close()
			_ = errW.Close()
		}()
		return &fakeProcess{
			stdout: outR,
			stderr: errR,
			wait:   func() error { return errors.New("signal: killed") },
		}, nil
	}}
}

func testJob(duration float64) domain.Job {
	preset, _ := domain.PresetByName("Balanced")
	return domain.Job{
		ID:         "job-1",
		InputPath:  "/videos/clip.mov",
		OutputPath: "/videos/converted/clip_converted.mp4",
		Preset:     preset,
		Status:     domain.JobStatusProcessing,
		Duration:   &duration,
	}
}

func noMkdir(string, os.FileMode) error { return nil }

// TestRunnerConvertSuccessReportsProgress checks args and progress samples.
func TestRunnerConvertSuccessReportsProgress(t *testing.T) {
	stderr := "frame=  10 fps=25 size=    256kB time=00:00:05.00 bitrate= 100.0kbits/s speed=2.0x\r" +
		"out_time=00:00:10.000000\n" +
		"progress=end\n"
	launcher := cannedLauncher("", stderr, nil)

	var madeDir string
	runner := NewRunnerForTests(launcher, func(path string, _ os.FileMode) error {
		madeDir = path
		return nil
	}, RunnerOptions{})

	updates := make(chan Update, 8)
	if err := runner.Convert(context.Background(), "/opt/ffmpeg", testJob(20), updates); err != nil {
		t.Fatalf("convert: %v", err)
	}
	close(updates)

	if madeDir != "/videos/converted" {
		t.Fatalf("mkdir path = %q, want /videos/converted", madeDir)
	}
	if launcher.name != "/opt/ffmpeg" {
		t.Fatalf("binary = %q, want /opt/ffmpeg", launcher.name)
	}
	if got := strings.Join(launcher.args[:6], " "); got != "-i /videos/clip.mov -progress pipe:2 -stats -y" {
		t.Fatalf("leading args = %q", got)
	}
	if last := launcher.args[len(launcher.args)-1]; last != "/videos/converted/clip_converted.mp4" {
		t.Fatalf("output arg = %q", last)
	}

	var got []float64
	for update := range updates {
		if update.JobID != "job-1" {
			t.Fatalf("update job id = %q, want job-1", update.JobID)
		}
		got = append(got, update.Percent)
	}
	if len(got) != 2 || got[0] != 25 || got[1] != 50 {
		t.Fatalf("percents = %v, want [25 50]", got)
	}
}

// TestRunnerConvertFailureUsesLastDiagnostic checks failure text extraction.
func TestRunnerConvertFailureUsesLastDiagnostic(t *testing.T) {
	stderr := "Input #0, mov\nError while decoding stream #0:0\n[in] Invalid data found when processing input\nsome trailing noise\n"
	runner := NewRunnerForTests(cannedLauncher("", stderr, errors.New("exit status 1")), noMkdir, RunnerOptions{})

	err := runner.Convert(context.Background(), "ffmpeg", testJob(10), nil)
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("err = %v, want *ConversionError", err)
	}
	if convErr.Stage != StageEncode {
		t.Fatalf("stage = %q, want %q", convErr.Stage, StageEncode)
	}
	want := "FFmpeg conversion failed: [in] Invalid data found when processing input"
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

// TestRunnerConvertFailureWithoutDiagnostic checks the generic message.
func TestRunnerConvertFailureWithoutDiagnostic(t *testing.T) {
	runner := NewRunnerForTests(cannedLauncher("", "frame=1\n", errors.New("exit status 1")), noMkdir, RunnerOptions{})

	err := runner.Convert(context.Background(), "ffmpeg", testJob(10), nil)
	if err == nil || err.Error() != "FFmpeg conversion failed with unknown error" {
		t.Fatalf("error = %v, want generic failure", err)
	}
}

// TestRunnerConvertMkdirFailure checks setup errors stop before launch.
func TestRunnerConvertMkdirFailure(t *testing.T) {
	launcher := cannedLauncher("", "", nil)
	runner := NewRunnerForTests(launcher, func(string, os.FileMode) error {
		return os.ErrPermission
	}, RunnerOptions{})

	err := runner.Convert(context.Background(), "ffmpeg", testJob(10), nil)
	var convErr *ConversionError
	if !errors.As(err, &convErr) || convErr.Stage != StageSetup {
		t.Fatalf("err = %v, want setup error", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("err = %v, want wrapped permission error", err)
	}
	if launcher.name != "" {
		t.Fatal("encoder must not start when the output directory fails")
	}
}

// TestRunnerConvertLaunchFailure checks launch errors are staged.
func TestRunnerConvertLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{start: func(context.Context) (Process, error) {
		return nil, errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	}}
	runner := NewRunnerForTests(launcher, noMkdir, RunnerOptions{})

	err := runner.Convert(context.Background(), "ffmpeg", testJob(10), nil)
	var convErr *ConversionError
	if !errors.As(err, &convErr) || convErr.Stage != StageLaunch {
		t.Fatalf("err = %v, want launch error", err)
	}
}

// TestRunnerConvertStallWatchdog checks a silent encoder is stopped.
func TestRunnerConvertStallWatchdog(t *testing.T) {
	runner := NewRunnerForTests(hangingLauncher(), noMkdir, RunnerOptions{StallTimeout: 40 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		done <- runner.Convert(context.Background(), "ffmpeg", testJob(10), nil)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStalled) {
			t.Fatalf("err = %v, want %v", err, ErrStalled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stalled conversion was not stopped")
	}
}

// TestRunnerConvertTimeout checks the hard conversion limit.
func TestRunnerConvertTimeout(t *testing.T) {
	runner := NewRunnerForTests(hangingLauncher(), noMkdir, RunnerOptions{Timeout: 30 * time.Millisecond})

	err := runner.Convert(context.Background(), "ffmpeg", testJob(10), nil)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("err = %v, want %v", err, ErrTimedOut)
	}
	if err.Error() != "conversion timed out" {
		t.Fatalf("error = %q", err.Error())
	}
}

// TestRunnerConvertCancelled checks caller cancellation ends the run.
func TestRunnerConvertCancelled(t *testing.T) {
	runner := NewRunnerForTests(hangingLauncher(), noMkdir, RunnerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := runner.Convert(ctx, "ffmpeg", testJob(10), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want %v", err, context.Canceled)
	}
	if err.Error() != "conversion cancelled" {
		t.Fatalf("error = %q", err.Error())
	}
}

// TestRunnerConvertNormalizesOutputOnly checks NBSP substitution.
func TestRunnerConvertNormalizesOutputOnly(t *testing.T) {
	launcher := cannedLauncher("", "", nil)
	runner := NewRunnerForTests(launcher, noMkdir, RunnerOptions{})

	job := testJob(10)
	job.InputPath = "/videos/my\u00a0clip.mov"
	job.OutputPath = "/videos/my\u00a0clip.mp4"
	if err := runner.Convert(context.Background(), "ffmpeg", job, nil); err != nil {
		t.Fatalf("convert: %v", err)
	}

	if launcher.args[1] != "/videos/my\u00a0clip.mov" {
		t.Fatalf("input arg = %q, want verbatim", launcher.args[1])
	}
	if last := launcher.args[len(launcher.args)-1]; last != "/videos/my clip.mp4" {
		t.Fatalf("output arg = %q, want normalized", last)
	}
}

// TestRunnerConvertDropsWhenChannelFull checks draining never blocks.
func TestRunnerConvertDropsWhenChannelFull(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("out_time=00:00:01.000000\n")
	}
	runner := NewRunnerForTests(cannedLauncher(b.String(), "", nil), noMkdir, RunnerOptions{})

	updates := make(chan Update, 1)
	if err := runner.Convert(context.Background(), "ffmpeg", testJob(10), updates); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("buffered updates = %d, want 1", len(updates))
	}
}

// TestBuildArgsOrder checks preset arguments sit before the output path.
func TestBuildArgsOrder(t *testing.T) {
	preset, _ := domain.PresetByName("Web")
	args := BuildArgs("in.mov", "out.mp4", preset)

	if args[len(args)-1] != "out.mp4" {
		t.Fatalf("last arg = %q, want out.mp4", args[len(args)-1])
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-movflags +faststart -preset medium out.mp4") {
		t.Fatalf("args = %q", joined)
	}
}
