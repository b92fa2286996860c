package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	storeVersion    = 1
	historyFileMode = 0644
	historyDirMode  = 0755
)

type fileData struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// Store persists resolved requests to <workspace>/state/history.json.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a history store rooted at the workspace state dir.
func NewStore(workspace string) *Store {
	return &Store{path: filepath.Join(workspace, "state", "history.json")}
}

// Load reads persisted data from disk.
func (s *Store) Load() (fileData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes persisted data to disk.
func (s *Store) Save(data fileData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(data)
}

func (s *Store) loadLocked() (fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileData{Version: storeVersion, Records: []Record{}}, nil
		}
		return fileData{}, fmt.Errorf("read history store: %w", err)
	}

	var parsed fileData
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fileData{}, fmt.Errorf("parse history store: %w", err)
	}
	if parsed.Version <= 0 {
		parsed.Version = storeVersion
	}
	if parsed.Records == nil {
		parsed.Records = []Record{}
	}
	return parsed, nil
}

func (s *Store) saveLocked(data fileData) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, historyDirMode); err != nil {
		return fmt.Errorf("create history store dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history store: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(encoded); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp history store: %w", err)
	}
	if err := tmpFile.Chmod(historyFileMode); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp history store: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp history store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace history store: %w", err)
	}
	return nil
}
