package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "transpoze.log")

	logger, err := New(Options{Level: "debug", Format: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	WithJob(logger, "job-1").Debug("encoder line", "line", "frame=1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"job_id":"job-1"`)
	assert.Contains(t, out, `"msg":"encoder line"`)
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	logger, err := New(Options{Level: "warn", Format: "console", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hidden"))
	assert.Contains(t, string(data), "shown")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	require.Error(t, err)
}

func TestFileOptions(t *testing.T) {
	opts := FileOptions("info", "json", "/var/log/tp")
	assert.Equal(t, []string{"stderr", filepath.Join("/var/log/tp", "transpoze.log")}, opts.OutputPaths)

	opts = FileOptions("info", "json", "")
	assert.Equal(t, []string{"stderr"}, opts.OutputPaths)
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	assert.False(t, logger.Enabled(context.Background(), 0))
}
