package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore stores records as JSON files under
// baseDir/<namespace>/<sessionID>/<seq>.json.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
	seq     map[Key]int
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{
		baseDir: baseDir,
		seq:     make(map[Key]int),
	}, nil
}

func (s *FileStore) keyDir(key Key) string {
	return filepath.Join(s.baseDir, key.Namespace, key.SessionID)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, key Key, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.keyDir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Resume the sequence from disk after a restart.
	if _, ok := s.seq[key]; !ok {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		s.seq[key] = len(entries)
	}
	s.seq[key]++

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%06d.json", s.seq[key]))
	return os.WriteFile(path, data, 0644)
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, key Key) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.keyDir(key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, key.Namespace, key.SessionID)
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, key.Namespace, key.SessionID)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse record %s: %w", name, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
