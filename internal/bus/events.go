package bus

import (
	"context"
	"strings"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// ApprovalEvent is the inbound backend event that activates the approval
// flow. Exactly one such event may be live per session at a time; later
// arrivals are queued by the coordinator.
type ApprovalEvent struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id,omitempty"`
	ProjectID  string           `json:"project_id,omitempty"`
	ToolName   string           `json:"tool_name"`
	Input      []approval.Param `json:"input,omitempty"`
	ReceivedAt time.Time        `json:"received_at,omitempty"`
	RequestID  string           `json:"-"`
}

// Request converts the wire event into the domain request. A missing
// ReceivedAt is stamped with now so the countdown starts on arrival.
func (e ApprovalEvent) Request(now time.Time) approval.Request {
	receivedAt := e.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	return approval.Request{
		ID:         strings.TrimSpace(e.ID),
		SessionID:  strings.TrimSpace(e.SessionID),
		ProjectID:  strings.TrimSpace(e.ProjectID),
		ToolName:   strings.TrimSpace(e.ToolName),
		Input:      e.Input,
		ReceivedAt: receivedAt,
	}
}

// NewRequestID creates a request id for tracing.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext reads request id from context.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDContextKey{})
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
