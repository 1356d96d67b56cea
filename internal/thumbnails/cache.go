// Package thumbnails manages the per-job preview image directory.
package thumbnails

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dendotai/transpoze-app/internal/logging"
)

// Cache stores one JPEG per job id under a single directory.
type Cache struct {
	dir string
	log *slog.Logger
}

// New returns a cache rooted at dir. The directory is created lazily.
func New(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{dir: dir, log: logger}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Ensure creates the cache directory.
func (c *Cache) Ensure() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create thumbnail cache: %w", err)
	}
	return nil
}

// Path returns the thumbnail location for jobID.
func (c *Cache) Path(jobID string) string {
	return filepath.Join(c.dir, filepath.Base(jobID)+".jpg")
}

// Remove deletes the thumbnails of the given jobs. Missing files are ignored.
func (c *Cache) Remove(jobIDs ...string) {
	for _, id := range jobIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if err := os.Remove(c.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("remove thumbnail failed", "job_id", id, "error", err)
		}
	}
}

// DataURL returns the thumbnail of jobID as a base64 data URL.
func (c *Cache) DataURL(jobID string) (string, error) {
	return DataURL(c.Path(jobID))
}

// DataURL reads a JPEG file and encodes it as a data URL.
func DataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read thumbnail: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
