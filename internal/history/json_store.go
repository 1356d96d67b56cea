package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// JSONStore keeps history in one indented JSON array.
type JSONStore struct {
	mu    sync.Mutex
	path  string
	limit int
}

// NewJSONStore creates a JSON-backed history store.
func NewJSONStore(path string, limit int) *JSONStore {
	return &JSONStore{path: path, limit: normalizeLimit(limit)}
}

// Append inserts entry at the front and evicts the oldest beyond the limit.
func (s *JSONStore) Append(_ context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries = append([]domain.HistoryEntry{entry}, entries...)
	if len(entries) > s.limit {
		entries = entries[:s.limit]
	}
	return s.write(entries)
}

// List returns entries newest first. A missing file is an empty history.
func (s *JSONStore) List(context.Context) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Clear removes every entry.
func (s *JSONStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write([]domain.HistoryEntry{})
}

// Close is a no-op.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) read() ([]domain.HistoryEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	var entries []domain.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

func (s *JSONStore) write(entries []domain.HistoryEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
