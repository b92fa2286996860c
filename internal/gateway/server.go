// Package gateway exposes the approval coordinator over a local HTTP API:
// the backend bridge posts inbound permission requests, and local clients
// (CLI, interactive prompt) read the active request and submit decisions.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
	"github.com/codingbridge/codingbridge/internal/bus"
	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/codingbridge/codingbridge/internal/dispatch"
	"github.com/codingbridge/codingbridge/internal/session"
	"github.com/codingbridge/codingbridge/internal/version"
)

// ApprovalCoordinator is the surface the gateway drives.
type ApprovalCoordinator interface {
	Submit(ctx context.Context, req approval.Request) error
	Decide(ctx context.Context, requestID, action string) error
	ActiveSnapshot() (approval.Snapshot, bool)
	QueuedRequests() []approval.Request
}

// ActiveResponse is the wire shape of the active approval request.
type ActiveResponse struct {
	RequestID        string           `json:"request_id"`
	SessionID        string           `json:"session_id,omitempty"`
	ProjectID        string           `json:"project_id,omitempty"`
	ToolName         string           `json:"tool_name"`
	Input            []approval.Param `json:"input,omitempty"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Phase            string           `json:"phase"`
	ElapsedSeconds   int              `json:"elapsed_seconds"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Confirming       bool             `json:"confirming"`
	Resolved         bool             `json:"resolved"`
	Acked            bool             `json:"acked"`
	Decision         string           `json:"decision,omitempty"`
	QueueLength      int              `json:"queue_length"`
}

// DecisionRequest is the wire shape of a decision submission.
type DecisionRequest struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
}

type Server struct {
	cfg         config.GatewayConfig
	coordinator ApprovalCoordinator
	httpServer  *http.Server
}

func New(cfg config.GatewayConfig, coordinator ApprovalCoordinator) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18820
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:         cfg,
		coordinator: coordinator,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	mux := NewHandler(s.cfg.Token, s.coordinator)
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func NewHandler(token string, coordinator ApprovalCoordinator) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/approvals", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if strings.TrimSpace(token) != "" && !isAuthorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if coordinator == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "approval coordinator is not configured")
			return
		}

		var event bus.ApprovalEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		req := event.Request(time.Now().UTC())
		if strings.TrimSpace(req.ID) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "id is required")
			return
		}
		if strings.TrimSpace(req.ToolName) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "tool_name is required")
			return
		}

		if err := coordinator.Submit(bus.WithRequestID(r.Context(), requestID), req); err != nil {
			if errors.Is(err, session.ErrQueueFull) {
				writeError(w, requestID, http.StatusConflict, "queue_full", "approval queue is full")
				return
			}
			var dispatchErr *dispatch.Error
			if errors.As(err, &dispatchErr) {
				writeError(w, requestID, http.StatusBadGateway, "dispatch_failed", dispatchErr.Error())
				return
			}
			slog.Error("gateway submit failed", "request_id", requestID, "approval_id", req.ID, "error", err)
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to accept approval request")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"accepted":   true,
			"id":         req.ID,
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/approvals/active", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if strings.TrimSpace(token) != "" && !isAuthorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if coordinator == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "approval coordinator is not configured")
			return
		}

		snap, ok := coordinator.ActiveSnapshot()
		if !ok {
			writeError(w, requestID, http.StatusNotFound, "not_found", "no active approval request")
			return
		}
		writeJSON(w, http.StatusOK, activeResponse(snap, len(coordinator.QueuedRequests())))
	})
	mux.HandleFunc("/approvals/decision", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if strings.TrimSpace(token) != "" && !isAuthorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if coordinator == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "approval coordinator is not configured")
			return
		}

		var req DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(req.Action) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "action is required")
			return
		}

		if err := coordinator.Decide(bus.WithRequestID(r.Context(), requestID), req.RequestID, req.Action); err != nil {
			writeDecisionError(w, requestID, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"applied":    true,
			"action":     req.Action,
			"request_id": requestID,
		})
	})
	return mux
}

func writeDecisionError(w http.ResponseWriter, requestID string, req DecisionRequest, err error) {
	switch {
	case errors.Is(err, session.ErrNoActiveRequest):
		writeError(w, requestID, http.StatusNotFound, "not_found", "no active approval request")
	case errors.Is(err, session.ErrRequestMismatch):
		writeError(w, requestID, http.StatusConflict, "request_mismatch", "request id does not match active request")
	case errors.Is(err, approval.ErrAlreadyResolved):
		writeError(w, requestID, http.StatusConflict, "already_resolved", "approval request already resolved")
	case errors.Is(err, approval.ErrNotConfirming):
		writeError(w, requestID, http.StatusConflict, "not_confirming", "no always-allow confirmation in progress")
	case errors.Is(err, approval.ErrNotResolved):
		writeError(w, requestID, http.StatusConflict, "not_resolved", "approval request not resolved")
	default:
		var dispatchErr *dispatch.Error
		if errors.As(err, &dispatchErr) {
			writeError(w, requestID, http.StatusBadGateway, "dispatch_failed", dispatchErr.Error())
			return
		}
		if strings.Contains(err.Error(), "unknown decision action") {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		slog.Error("gateway decision failed", "request_id", requestID, "action", req.Action, "error", err)
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to apply decision")
	}
}

func activeResponse(snap approval.Snapshot, queued int) ActiveResponse {
	resp := ActiveResponse{
		RequestID:        snap.Request.ID,
		SessionID:        snap.Request.SessionID,
		ProjectID:        snap.Request.ProjectID,
		ToolName:         snap.Request.ToolName,
		Input:            snap.Request.Input,
		Title:            snap.Request.DisplayTitle(),
		Description:      snap.Request.DisplayDescription(),
		Phase:            string(snap.Phase),
		ElapsedSeconds:   int(snap.Elapsed.Seconds()),
		RemainingSeconds: int(snap.Remaining.Seconds()),
		Confirming:       snap.Confirming,
		Resolved:         snap.Resolved,
		Acked:            snap.Acked,
		QueueLength:      queued,
	}
	if snap.Decision != nil {
		resp.Decision = string(snap.Decision.Kind)
	}
	return resp
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return bus.NewRequestID()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
