// Package history records finished conversions, newest first, keeping only
// the most recent entries.
package history

import (
	"context"
	"fmt"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 100

// Store persists history entries.
type Store interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
	List(ctx context.Context) ([]domain.HistoryEntry, error)
	Clear(ctx context.Context) error
	Close() error
}

// Open returns the store for backend ("json" or "sqlite") at path.
func Open(backend, path string, limit int) (Store, error) {
	switch backend {
	case "", "json":
		return NewJSONStore(path, limit), nil
	case "sqlite":
		return OpenSQLite(path, limit)
	default:
		return nil, fmt.Errorf("history backend: unsupported value %q", backend)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
