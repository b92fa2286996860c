package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
)

const decisionMetricsFileName = "decision_metrics.json"

// DecisionStats tracks resolved approval requests by outcome.
type DecisionStats struct {
	Approved       int64 `json:"approved"`
	AlwaysAllowed  int64 `json:"always_allowed"`
	Denied         int64 `json:"denied"`
	Expired        int64 `json:"expired"`
	DispatchErrors int64 `json:"dispatch_errors"`

	TotalLatencyMs int64 `json:"total_latency_ms"`
	MaxLatencyMs   int64 `json:"max_latency_ms"`
	LastLatencyMs  int64 `json:"last_latency_ms"`
}

// Total returns the number of resolved requests.
func (d DecisionStats) Total() int64 {
	return d.Approved + d.AlwaysAllowed + d.Denied + d.Expired
}

// ExpiryRatio returns expired/total in [0,1].
func (d DecisionStats) ExpiryRatio() float64 {
	total := d.Total()
	if total <= 0 {
		return 0
	}
	return float64(d.Expired) / float64(total)
}

// AvgLatencyMs returns average decision latency in milliseconds.
func (d DecisionStats) AvgLatencyMs() float64 {
	total := d.Total()
	if total <= 0 {
		return 0
	}
	return float64(d.TotalLatencyMs) / float64(total)
}

// Snapshot contains aggregated decision metrics.
type Snapshot struct {
	UpdatedAt time.Time     `json:"updated_at"`
	Decisions DecisionStats `json:"decisions"`
}

// HasData reports whether any decisions were recorded.
func (s Snapshot) HasData() bool {
	return s.Decisions.Total() > 0 || s.Decisions.DispatchErrors > 0
}

// Recorder records and persists decision metrics.
type Recorder struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	snap Snapshot
}

// NewRecorder creates a recorder rooted at <workspace>/state/decision_metrics.json.
func NewRecorder(workspace string) *Recorder {
	return &Recorder{
		path: decisionMetricsPath(workspace),
		now:  time.Now,
	}
}

// Snapshot returns the latest in-memory snapshot.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// RecordDecision updates decision metrics and persists the snapshot.
// Latency is the time from request receipt to the terminal decision.
func (r *Recorder) RecordDecision(kind approval.DecisionKind, latency time.Duration) (Snapshot, error) {
	if r == nil {
		return Snapshot{}, nil
	}

	latencyMs := latency.Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}

	r.mu.Lock()
	r.snap.UpdatedAt = r.now().UTC()
	switch kind {
	case approval.DecisionApprove:
		r.snap.Decisions.Approved++
	case approval.DecisionAlwaysAllow:
		r.snap.Decisions.AlwaysAllowed++
	case approval.DecisionAutoExpired:
		r.snap.Decisions.Expired++
	default:
		r.snap.Decisions.Denied++
	}
	r.snap.Decisions.TotalLatencyMs += latencyMs
	r.snap.Decisions.LastLatencyMs = latencyMs
	if latencyMs > r.snap.Decisions.MaxLatencyMs {
		r.snap.Decisions.MaxLatencyMs = latencyMs
	}
	snapshot := r.snap
	r.mu.Unlock()

	return snapshot, persistSnapshot(r.path, snapshot)
}

// RecordDispatchError counts a failed decision delivery.
func (r *Recorder) RecordDispatchError() (Snapshot, error) {
	if r == nil {
		return Snapshot{}, nil
	}

	r.mu.Lock()
	r.snap.UpdatedAt = r.now().UTC()
	r.snap.Decisions.DispatchErrors++
	snapshot := r.snap
	r.mu.Unlock()

	return snapshot, persistSnapshot(r.path, snapshot)
}

// ReadSnapshot reads the persisted snapshot from workspace state.
// If no file exists yet, it returns a zero-value snapshot and nil error.
func ReadSnapshot(workspace string) (Snapshot, error) {
	raw, err := os.ReadFile(decisionMetricsPath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("read decision metrics: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode decision metrics: %w", err)
	}
	return snap, nil
}

func decisionMetricsPath(workspace string) string {
	return filepath.Join(workspace, "state", decisionMetricsFileName)
}

func persistSnapshot(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decision metrics: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("write decision metrics: %w", err)
	}
	return nil
}
