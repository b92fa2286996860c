package approval

import (
	"encoding/json"
	"strings"
	"time"
)

// Param is one named input value of a tool invocation. Order is preserved
// because it carries meaning for display ("command" before "description").
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request is one pending tool-permission check surfaced to the user.
type Request struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	Input      []Param   `json:"input,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Param returns the value of the named input parameter.
func (r Request) Param(name string) (string, bool) {
	for _, p := range r.Input {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// InputJSON renders the input parameters as a compact JSON object string.
func (r Request) InputJSON() string {
	if len(r.Input) == 0 {
		return "{}"
	}
	pairs := make(map[string]string, len(r.Input))
	for _, p := range r.Input {
		pairs[p.Name] = p.Value
	}
	encoded, err := json.Marshal(pairs)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// FlatInput joins input parameters into a single matchable string.
func (r Request) FlatInput() string {
	parts := make([]string, 0, len(r.Input))
	for _, p := range r.Input {
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, " ")
}

// DecisionKind is the terminal outcome recorded for a request.
type DecisionKind string

const (
	DecisionApprove     DecisionKind = "approve"
	DecisionAlwaysAllow DecisionKind = "always_allow"
	DecisionDeny        DecisionKind = "deny"
	DecisionAutoExpired DecisionKind = "auto_expired_deny"
)

// Behavior returns the wire behavior sent to the backend. An auto-expired
// request is indistinguishable from an explicit deny on the wire.
func (k DecisionKind) Behavior() string {
	switch k {
	case DecisionApprove, DecisionAlwaysAllow:
		return "allow"
	default:
		return "deny"
	}
}

// Valid reports whether k is a known decision kind.
func (k DecisionKind) Valid() bool {
	switch k {
	case DecisionApprove, DecisionAlwaysAllow, DecisionDeny, DecisionAutoExpired:
		return true
	}
	return false
}

// Decision resolves exactly one request. Once emitted it is owned by the
// dispatcher until the backend acknowledges it.
type Decision struct {
	RequestID string       `json:"request_id"`
	Kind      DecisionKind `json:"kind"`
	ToolName  string       `json:"tool_name,omitempty"`
	ProjectID string       `json:"project_id,omitempty"`
	DecidedBy string       `json:"decided_by,omitempty"`
	DecidedAt time.Time    `json:"decided_at"`
}
