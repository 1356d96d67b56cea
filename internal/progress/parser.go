// Package progress turns encoder text output into structured progress.
//
// Two line grammars are understood: the human readable stats line printed by
// -stats ("frame= 10 fps= 25 ... time=00:00:05.12 ... speed=1.25x") and the
// machine key=value stream printed by -progress ("out_time=00:00:05.120000").
// Lines that match neither grammar are not errors; callers treat them as
// no-ops because encoder output is noisy and often partial.
package progress

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidTime is returned for time strings not in H:MM:SS.fff form.
var ErrInvalidTime = errors.New("invalid time format")

// Stats holds the fields extracted from one human readable stats line.
type Stats struct {
	TimeSeconds float64
	Frame       *uint64
	FPS         *float64
	Size        string
	Bitrate     string
	Speed       *float64
}

// ParseTime converts H:MM:SS.fff into seconds. Hours may exceed two digits.
func ParseTime(value string) (float64, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}

	var total float64
	for i, unit := range []float64{3600, 60, 1} {
		n, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
		}
		total += n * unit
	}
	return total, nil
}

// ParseStatsLine parses a -stats line. A line without a parsable time=
// field yields false.
func ParseStatsLine(line string) (Stats, bool) {
	raw, ok := fieldValue(line, "time=")
	if !ok {
		return Stats{}, false
	}
	seconds, err := ParseTime(raw)
	if err != nil {
		return Stats{}, false
	}

	stats := Stats{TimeSeconds: seconds}
	if v, ok := fieldValue(line, "frame="); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			stats.Frame = &n
		}
	}
	if v, ok := fieldValue(line, "fps="); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			stats.FPS = &n
		}
	}
	if v, ok := fieldValue(line, "size="); ok {
		stats.Size = v
	}
	if v, ok := fieldValue(line, "bitrate="); ok {
		stats.Bitrate = v
	}
	if v, ok := fieldValue(line, "speed="); ok {
		if n, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64); err == nil {
			stats.Speed = &n
		}
	}
	return stats, true
}

// ParseOutTime parses one -progress line. Only the out_time key yields a
// value; every other key yields false.
func ParseOutTime(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "out_time=") {
		return 0, false
	}
	seconds, err := ParseTime(strings.TrimPrefix(line, "out_time="))
	if err != nil {
		return 0, false
	}
	return seconds, true
}

// ParseLine extracts the current playback offset from either grammar.
func ParseLine(line string) (float64, bool) {
	if stats, ok := ParseStatsLine(line); ok {
		return stats.TimeSeconds, true
	}
	return ParseOutTime(line)
}

// ParseDuration extracts the value of a "Duration:" banner line.
func ParseDuration(line string) (float64, bool) {
	_, rest, found := strings.Cut(line, "Duration:")
	if !found {
		return 0, false
	}
	value, _, _ := strings.Cut(rest, ",")
	seconds, err := ParseTime(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return seconds, true
}

// ProbeDuration scans banner output and returns the first parsable duration.
func ProbeDuration(r io.Reader) (float64, bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if seconds, ok := ParseDuration(scanner.Text()); ok {
			return seconds, true
		}
	}
	return 0, false
}

// Percent returns the share of total covered by current, clamped to 100.
func Percent(current, total float64) float64 {
	if total <= 0 {
		return 0
	}
	pct := current / total * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// fieldValue returns the token after key, skipping any leading spaces.
// "size=" must not match inside another key, so key is only accepted at the
// start of the line or after whitespace.
func fieldValue(line, key string) (string, bool) {
	offset := 0
	for {
		idx := strings.Index(line[offset:], key)
		if idx < 0 {
			return "", false
		}
		idx += offset
		if idx == 0 || unicode.IsSpace(rune(line[idx-1])) {
			rest := strings.TrimLeftFunc(line[idx+len(key):], unicode.IsSpace)
			end := strings.IndexFunc(rest, unicode.IsSpace)
			if end >= 0 {
				rest = rest[:end]
			}
			return rest, rest != ""
		}
		offset = idx + len(key)
	}
}
