package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dendotai/transpoze-app/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversion_history (
    id TEXT PRIMARY KEY,
    input_path TEXT NOT NULL,
    output_path TEXT NOT NULL,
    preset_name TEXT NOT NULL,
    completed_at TEXT NOT NULL,
    file_size_before INTEGER NOT NULL DEFAULT 0,
    file_size_after INTEGER NOT NULL DEFAULT 0,
    duration REAL NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_conversion_history_completed ON conversion_history(completed_at)`,
}

// SQLiteStore keeps history in a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	limit int
}

// OpenSQLite initializes or connects to the history database.
func OpenSQLite(path string, limit int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, path: path, limit: normalizeLimit(limit)}, nil
}

// Append records entry and evicts the oldest rows beyond the limit.
func (s *SQLiteStore) Append(ctx context.Context, entry domain.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversion_history (
            id, input_path, output_path, preset_name, completed_at,
            file_size_before, file_size_after, duration
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.InputPath,
		entry.OutputPath,
		entry.PresetName,
		entry.CompletedAt.UTC().Format(time.RFC3339Nano),
		entry.FileSizeBefore,
		entry.FileSizeAfter,
		entry.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM conversion_history WHERE id NOT IN (
            SELECT id FROM conversion_history ORDER BY completed_at DESC, rowid DESC LIMIT ?
        )`,
		s.limit,
	)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit()
}

// List returns entries newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_path, output_path, preset_name, completed_at,
                file_size_before, file_size_after, duration
         FROM conversion_history
         ORDER BY completed_at DESC, rowid DESC
         LIMIT ?`,
		s.limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			entry       domain.HistoryEntry
			completedAt string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.InputPath,
			&entry.OutputPath,
			&entry.PresetName,
			&completedAt,
			&entry.FileSizeBefore,
			&entry.FileSizeAfter,
			&entry.Duration,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if entry.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at for %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Clear removes every entry.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversion_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
