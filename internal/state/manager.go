package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/codingbridge/codingbridge/internal/approval"
)

const pendingStateFileMode = 0600

// PendingState stores the active request and its queue so a restarted
// process resumes the countdown from the original ReceivedAt instead of
// restarting it.
type PendingState struct {
	Active *approval.Request `json:"active,omitempty"`
	Queue  []approval.Request `json:"queue,omitempty"`
}

// Manager persists lightweight runtime state.
type Manager struct {
	pendingPath string
	mu          sync.Mutex
}

// NewManager creates a state manager under <baseDir>/state.
func NewManager(baseDir string) *Manager {
	return &Manager{
		pendingPath: filepath.Join(baseDir, "state", "pending.json"),
	}
}

// LoadPendingState reads pending approval state from disk.
// Missing or malformed files are treated as empty state.
func (m *Manager) LoadPendingState() (PendingState, error) {
	data, err := os.ReadFile(m.pendingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return PendingState{}, nil
		}
		return PendingState{}, err
	}

	var st PendingState
	if err := json.Unmarshal(data, &st); err != nil {
		return PendingState{}, nil
	}
	if st.Active != nil && st.Active.ID == "" {
		st.Active = nil
	}
	return st, nil
}

// SavePendingState writes pending approval state to disk.
func (m *Manager) SavePendingState(st PendingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.pendingPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.pendingPath, data, pendingStateFileMode)
}
