package bus

import (
	"context"
	"testing"
	"time"
)

func TestApprovalEvent_RequestStampsMissingReceivedAt(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	req := ApprovalEvent{ID: " req-1 ", ToolName: " Bash "}.Request(now)
	if req.ID != "req-1" || req.ToolName != "Bash" {
		t.Fatalf("expected trimmed fields, got %+v", req)
	}
	if !req.ReceivedAt.Equal(now) {
		t.Fatalf("expected stamped received_at, got %s", req.ReceivedAt)
	}

	explicit := now.Add(-4 * time.Minute)
	req = ApprovalEvent{ID: "req-2", ToolName: "Read", ReceivedAt: explicit}.Request(now)
	if !req.ReceivedAt.Equal(explicit) {
		t.Fatalf("explicit received_at must be preserved, got %s", req.ReceivedAt)
	}
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}

	rid := NewRequestID()
	if rid == "" {
		t.Fatal("expected non-empty request id")
	}

	ctx = WithRequestID(ctx, rid)
	if got := RequestIDFromContext(ctx); got != rid {
		t.Fatalf("expected %q, got %q", rid, got)
	}

	if sameCtx := WithRequestID(context.Background(), "   "); RequestIDFromContext(sameCtx) != "" {
		t.Fatal("blank request id must not be stored")
	}
}
