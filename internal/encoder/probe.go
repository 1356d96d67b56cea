package encoder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dendotai/transpoze-app/internal/progress"
)

// ThumbnailWidth is the pixel width of generated preview frames.
const ThumbnailWidth = 320

// Prober runs short encoder invocations that inspect a source file.
type Prober struct {
	runner commandRunner
}

// NewProber builds a prober that executes real processes.
func NewProber() *Prober {
	return NewProberForTests(&execRunner{})
}

// NewProberForTests creates a prober with an injectable command runner.
func NewProberForTests(runner commandRunner) *Prober {
	return &Prober{runner: runner}
}

// Duration reads the source duration from the encoder banner. The encoder
// exits non-zero when no output is given, so its status is ignored.
func (p *Prober) Duration(ctx context.Context, bin, inputPath string) (float64, error) {
	result, err := p.runner.Run(ctx, bin, "-i", inputPath, "-hide_banner")
	if err != nil && result.ExitCode == -1 {
		return 0, &ConversionError{Stage: StageLaunch, Message: "failed to start encoder", Err: err}
	}

	seconds, ok := progress.ProbeDuration(strings.NewReader(result.Stderr))
	if !ok {
		return 0, ErrNoDuration
	}
	return seconds, nil
}

// Thumbnail writes one scaled JPEG frame taken at offset seconds.
func (p *Prober) Thumbnail(ctx context.Context, bin, inputPath, outputPath string, offset float64) error {
	if offset < 0 {
		offset = 0
	}
	args := []string{
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", inputPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:-1", ThumbnailWidth),
		"-y",
		outputPath,
	}

	result, err := p.runner.Run(ctx, bin, args...)
	if err != nil {
		return &ConversionError{
			Stage:      StageEncode,
			Message:    "thumbnail generation failed",
			Diagnostic: lastLine(result.Stderr),
			ExitCode:   result.ExitCode,
			Err:        err,
		}
	}
	return nil
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndexAny(text, "\r\n"); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}
