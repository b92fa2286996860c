package history

import (
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
)

// Status is the recorded outcome of a resolved request.
type Status string

const (
	StatusApproved      Status = "approved"
	StatusAlwaysAllowed Status = "always_allowed"
	StatusDenied        Status = "denied"
	StatusExpired       Status = "expired"
)

// StatusForDecision maps a decision kind to its history status.
func StatusForDecision(kind approval.DecisionKind) Status {
	switch kind {
	case approval.DecisionApprove:
		return StatusApproved
	case approval.DecisionAlwaysAllow:
		return StatusAlwaysAllowed
	case approval.DecisionAutoExpired:
		return StatusExpired
	default:
		return StatusDenied
	}
}

// Record is one persisted resolved request.
type Record struct {
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	InputJSON  string    `json:"input_json,omitempty"`
	Status     Status    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
	DecidedAt  time.Time `json:"decided_at"`
	DecidedBy  string    `json:"decided_by,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// Query filters records when listing.
type Query struct {
	RequestID string
	Status    Status
	ToolName  string
	ProjectID string
}
