package encoder

import (
	"errors"
	"fmt"
)

// Conversion stages reported by ConversionError.
const (
	StageSetup  = "setup"
	StageLaunch = "launch"
	StageEncode = "encode"
)

var (
	// ErrEncoderNotFound is returned when no usable encoder binary exists.
	ErrEncoderNotFound = errors.New("encoder binary not found")
	// ErrNoDuration is returned when the banner has no parsable duration.
	ErrNoDuration = errors.New("could not parse video duration")
	// ErrStalled is the cause used when the encoder stops producing output.
	ErrStalled = errors.New("encoder stalled")
	// ErrTimedOut is the cause used when a conversion exceeds its time limit.
	ErrTimedOut = errors.New("conversion timed out")
)

// ConversionError is a stage-aware conversion failure.
type ConversionError struct {
	Stage      string `json:"stage"`
	Message    string `json:"message"`
	Diagnostic string `json:"diagnostic,omitempty"`
	ExitCode   int    `json:"exitCode,omitempty"`
	Err        error  `json:"-"`
}

// Error formats conversion failures for the job record and logs.
func (e *ConversionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Diagnostic != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Diagnostic)
	}
	return e.Message
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
