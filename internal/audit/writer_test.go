package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
)

func TestWriter_AppendsJSONLines(t *testing.T) {
	workspace := t.TempDir()
	w := NewWriter(workspace)

	events := []Event{
		{Type: TypeRequestReceived, RequestID: "req-1", Tool: "Bash"},
		{Type: TypeDecision, RequestID: "req-1", Tool: "Bash", Decision: "approve"},
	}
	for _, ev := range events {
		if err := w.Append(ev); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	file, err := os.Open(filepath.Join(workspace, "state", "audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer file.Close()

	var lines []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("parse audit line: %v", err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(lines))
	}
	if lines[0].Type != TypeRequestReceived || lines[1].Decision != "approve" {
		t.Fatalf("unexpected audit lines: %+v", lines)
	}
	if lines[0].Time.IsZero() {
		t.Fatal("expected append to stamp missing time")
	}
}

func TestDecisionEvent_AutoExpiryIsDistinct(t *testing.T) {
	decidedAt := time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC)

	expired := DecisionEvent(approval.Decision{
		RequestID: "req-1",
		Kind:      approval.DecisionAutoExpired,
		ToolName:  "Bash",
		DecidedAt: decidedAt,
	})
	if expired.Type != TypeAutoExpired {
		t.Fatalf("expected auto_expired type, got %q", expired.Type)
	}

	denied := DecisionEvent(approval.Decision{
		RequestID: "req-2",
		Kind:      approval.DecisionDeny,
		DecidedAt: decidedAt,
	})
	if denied.Type != TypeDecision {
		t.Fatalf("expected decision type for explicit deny, got %q", denied.Type)
	}
}
