package encoder

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeRunner simulates buffered command execution.
type fakeRunner struct {
	calls [][]string
	run   func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run records the call and delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// TestExitCodeWithoutProcess checks non-exit errors map to -1.
func TestExitCodeWithoutProcess(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Fatalf("exitCode(nil) = %d, want 0", got)
	}
	if got := exitCode(errors.New("exec: not found")); got != -1 {
		t.Fatalf("exitCode(err) = %d, want -1", got)
	}
}

// TestDrainLinesSplitsCarriageReturns verifies -stats style output parsing.
func TestDrainLinesSplitsCarriageReturns(t *testing.T) {
	input := "frame=1 time=00:00:01.00\rframe=2 time=00:00:02.00\r\nprogress=continue\n\nlast"
	var lines []string
	drainLines(strings.NewReader(input), func(line string) {
		lines = append(lines, line)
	})

	want := []string{"frame=1 time=00:00:01.00", "frame=2 time=00:00:02.00", "progress=continue", "last"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

// TestDrainLinesSurvivesOversizedLine checks a scanner error ends handling
// without blocking.
func TestDrainLinesSurvivesOversizedLine(t *testing.T) {
	input := "ok\n" + strings.Repeat("x", 2*1024*1024) + "\nafter\n"
	var lines []string
	drainLines(strings.NewReader(input), func(line string) {
		lines = append(lines, line)
	})

	if len(lines) != 1 || lines[0] != "ok" {
		t.Fatalf("lines = %d entries, want only the first line", len(lines))
	}
}
