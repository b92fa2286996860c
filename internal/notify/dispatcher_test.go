package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
)

func TestDispatcher_PostsWebhook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{WebhookURL: srv.URL})
	req := approval.Request{
		ID:       "req-1",
		ToolName: "Bash",
		Input:    []approval.Param{{Name: "command", Value: "ls"}},
	}
	d.Notify(context.Background(), PendingEvent(req))

	if got["event"] != string(EventPending) {
		t.Fatalf("unexpected event type %v", got["event"])
	}
	if got["request_id"] != "req-1" || got["tool"] != "Bash" {
		t.Fatalf("unexpected payload %v", got)
	}
	if got["message"] != "ls" {
		t.Fatalf("expected command as message, got %v", got["message"])
	}
}

func TestResolvedEvent_ExpiryHasOwnType(t *testing.T) {
	req := approval.Request{ID: "req-1", ToolName: "Bash"}

	ev := ResolvedEvent(req, approval.Decision{RequestID: "req-1", Kind: approval.DecisionAutoExpired})
	if ev.Type != EventExpired {
		t.Fatalf("expected expired event type, got %q", ev.Type)
	}

	ev = ResolvedEvent(req, approval.Decision{RequestID: "req-1", Kind: approval.DecisionDeny})
	if ev.Type != EventResolved {
		t.Fatalf("expected resolved event type, got %q", ev.Type)
	}
}

func TestWarningEvent_MentionsRemaining(t *testing.T) {
	ev := WarningEvent(approval.Request{ID: "req-1", ToolName: "Bash"}, 50*time.Second)
	if ev.Type != EventWarning {
		t.Fatalf("expected warning type, got %q", ev.Type)
	}
	if ev.Message != "Approval expires in 50s" {
		t.Fatalf("unexpected message %q", ev.Message)
	}
}

func TestDispatcher_NoChannelsIsNoop(t *testing.T) {
	d := NewDispatcher(Config{})
	d.Notify(context.Background(), Event{Type: EventPending, RequestID: "req-1"})
}
