package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	storeVersion      = 1
	allowlistFileMode = 0644
	allowlistDirMode  = 0755
)

// Entry is one persisted project-scoped always-allow rule.
type Entry struct {
	Tool      string    `json:"tool"`
	ProjectID string    `json:"project_id"`
	AddedAt   time.Time `json:"added_at"`
}

type fileData struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Store persists always-allow rules to <workspace>/state/allowlist.json.
// A rule auto-approves future requests for the same tool within the same
// project without re-prompting.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore creates an allow-list store rooted at the workspace state dir.
func NewStore(workspace string) *Store {
	return &Store{
		path: filepath.Join(workspace, "state", "allowlist.json"),
		now:  time.Now,
	}
}

// Add records an always-allow rule. Adding an existing rule is a no-op.
func (s *Store) Add(tool, projectID string) error {
	tool = normalizeTool(tool)
	projectID = strings.TrimSpace(projectID)
	if tool == "" {
		return fmt.Errorf("tool is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, e := range data.Entries {
		if e.Tool == tool && e.ProjectID == projectID {
			return nil
		}
	}
	data.Entries = append(data.Entries, Entry{
		Tool:      tool,
		ProjectID: projectID,
		AddedAt:   s.now().UTC(),
	})
	return s.saveLocked(data)
}

// Allowed reports whether an always-allow rule exists for the tool in the
// given project.
func (s *Store) Allowed(tool, projectID string) (bool, error) {
	tool = normalizeTool(tool)
	projectID = strings.TrimSpace(projectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	for _, e := range data.Entries {
		if e.Tool == tool && e.ProjectID == projectID {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes a rule, reporting whether it existed.
func (s *Store) Remove(tool, projectID string) (bool, error) {
	tool = normalizeTool(tool)
	projectID = strings.TrimSpace(projectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	kept := data.Entries[:0]
	removed := false
	for _, e := range data.Entries {
		if e.Tool == tool && e.ProjectID == projectID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false, nil
	}
	data.Entries = kept
	if err := s.saveLocked(data); err != nil {
		return false, err
	}
	return true, nil
}

// List returns rules, optionally filtered by project.
func (s *Store) List(projectID string) ([]Entry, error) {
	projectID = strings.TrimSpace(projectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	result := make([]Entry, 0, len(data.Entries))
	for _, e := range data.Entries {
		if projectID != "" && e.ProjectID != projectID {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) loadLocked() (fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileData{Version: storeVersion, Entries: []Entry{}}, nil
		}
		return fileData{}, fmt.Errorf("read allowlist store: %w", err)
	}

	var parsed fileData
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fileData{}, fmt.Errorf("parse allowlist store: %w", err)
	}
	if parsed.Version <= 0 {
		parsed.Version = storeVersion
	}
	if parsed.Entries == nil {
		parsed.Entries = []Entry{}
	}
	return parsed, nil
}

func (s *Store) saveLocked(data fileData) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal allowlist store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, allowlistDirMode); err != nil {
		return fmt.Errorf("create allowlist store dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "allowlist-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp allowlist store: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(encoded); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp allowlist store: %w", err)
	}
	if err := tmpFile.Chmod(allowlistFileMode); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp allowlist store: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp allowlist store: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace allowlist store: %w", err)
	}
	return nil
}

func normalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
