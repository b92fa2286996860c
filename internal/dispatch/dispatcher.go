// Package dispatch delivers terminal approval decisions to the backend
// bridge service.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
)

const defaultRequestTimeout = 10 * time.Second

// ErrorKind categorizes a failed dispatch. None of these are retried
// internally; the caller decides whether to re-offer the decision.
type ErrorKind string

const (
	ErrNetworkUnavailable ErrorKind = "network_unavailable"
	ErrBackendRejected    ErrorKind = "backend_rejected"
	ErrTimeout            ErrorKind = "timeout"
)

// Error is a failed decision delivery.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("dispatch failed (%s): %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("dispatch failed (%s)", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the dispatch error kind from an error chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// AllowList records project-scoped always-allow rules.
type AllowList interface {
	Add(tool, projectID string) error
}

// Config contains backend connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Dispatcher posts one-shot permission responses to the backend bridge.
//
// Dispatching is idempotent per request id: once a decision has been
// acknowledged, repeated dispatches for the same request are no-ops, and
// the allow-list side effect of an always-allow decision is applied at
// most once even when the wire delivery is retried.
type Dispatcher struct {
	cfg       Config
	client    *http.Client
	allowList AllowList

	mu           sync.Mutex
	acked        map[string]approval.DecisionKind
	allowApplied map[string]bool
}

// New creates a dispatcher for the configured backend.
func New(cfg Config, allowList AllowList) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Dispatcher{
		cfg:          cfg,
		client:       &http.Client{Timeout: timeout},
		allowList:    allowList,
		acked:        make(map[string]approval.DecisionKind),
		allowApplied: make(map[string]bool),
	}
}

type permissionResponse struct {
	RequestID string `json:"request_id"`
	Behavior  string `json:"behavior"`
	Decision  string `json:"decision"`
	ToolName  string `json:"tool_name,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
	DecidedAt string `json:"decided_at,omitempty"`
}

// Dispatch delivers the decision for exactly the request id it carries.
func (d *Dispatcher) Dispatch(ctx context.Context, decision approval.Decision) error {
	requestID := strings.TrimSpace(decision.RequestID)
	if requestID == "" {
		return fmt.Errorf("decision request id is required")
	}
	if !decision.Kind.Valid() {
		return fmt.Errorf("unknown decision kind: %q", decision.Kind)
	}

	d.mu.Lock()
	if _, ok := d.acked[requestID]; ok {
		d.mu.Unlock()
		return nil
	}
	applyAllow := decision.Kind == approval.DecisionAlwaysAllow &&
		d.allowList != nil && !d.allowApplied[requestID]
	d.mu.Unlock()

	// Record the persistent rule before the wire call so a delivery retry
	// cannot apply it twice.
	if applyAllow {
		if err := d.allowList.Add(decision.ToolName, decision.ProjectID); err != nil {
			return fmt.Errorf("record always-allow rule: %w", err)
		}
		d.mu.Lock()
		d.allowApplied[requestID] = true
		d.mu.Unlock()
	}

	if err := d.post(ctx, decision); err != nil {
		return err
	}

	d.mu.Lock()
	d.acked[requestID] = decision.Kind
	d.mu.Unlock()

	slog.Debug("decision dispatched",
		"request_id", requestID,
		"decision", string(decision.Kind),
		"behavior", decision.Kind.Behavior(),
	)
	return nil
}

// Acked reports whether a decision for the request id has been delivered.
func (d *Dispatcher) Acked(requestID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.acked[requestID]
	return ok
}

func (d *Dispatcher) post(ctx context.Context, decision approval.Decision) error {
	payload := permissionResponse{
		RequestID: decision.RequestID,
		Behavior:  decision.Kind.Behavior(),
		Decision:  string(decision.Kind),
		ToolName:  decision.ToolName,
		ProjectID: decision.ProjectID,
		DecidedBy: decision.DecidedBy,
		DecidedAt: decision.DecidedAt.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal permission response: %w", err)
	}

	endpoint := strings.TrimRight(d.cfg.BaseURL, "/") + "/permissions/" + url.PathEscape(decision.RequestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build permission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(d.cfg.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &Error{
		Kind:   ErrBackendRejected,
		Reason: rejectionReason(resp),
		Err:    fmt.Errorf("backend returned status %d", resp.StatusCode),
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Reason: "request deadline exceeded", Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Kind: ErrTimeout, Reason: "request timed out", Err: err}
	}
	return &Error{Kind: ErrNetworkUnavailable, Reason: err.Error(), Err: err}
}

func rejectionReason(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.Status
	}
	var parsed struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	reason := strings.TrimSpace(string(raw))
	if reason == "" {
		return resp.Status
	}
	return reason
}
