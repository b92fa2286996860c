// Package session coordinates the approval lifecycle for one bridge
// session: at most one request is active at a time, later arrivals wait
// in a FIFO queue, and the permission gate may decide a request before a
// prompt is ever surfaced.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
	"github.com/codingbridge/codingbridge/internal/audit"
	"github.com/codingbridge/codingbridge/internal/bus"
	"github.com/codingbridge/codingbridge/internal/history"
	"github.com/codingbridge/codingbridge/internal/metrics"
	"github.com/codingbridge/codingbridge/internal/notify"
	"github.com/codingbridge/codingbridge/internal/policy"
	"github.com/codingbridge/codingbridge/internal/state"
)

var (
	// ErrNoActiveRequest is returned by decision entry points when no
	// request is currently surfaced.
	ErrNoActiveRequest = errors.New("no active approval request")

	// ErrRequestMismatch is returned when a decision names a request id
	// other than the active one.
	ErrRequestMismatch = errors.New("request id does not match active request")

	// ErrQueueFull is returned when the pending queue is at capacity.
	ErrQueueFull = errors.New("approval queue is full")
)

// Decision actions accepted by Decide.
const (
	ActionApprove       = "approve"
	ActionDeny          = "deny"
	ActionRequestAlways = "request_always"
	ActionConfirmAlways = "confirm_always"
	ActionConfirmOnce   = "confirm_once"
	ActionCancelAlways  = "cancel_always"
	ActionRedispatch    = "redispatch"
)

// Gate decides whether a request is allowed, denied or surfaced.
type Gate interface {
	Evaluate(input policy.Input) (policy.Result, error)
}

// Notifier delivers lifecycle notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event)
}

// Options wires the coordinator's collaborators. Dispatcher and Timeout
// are required; everything else may be nil and is then skipped.
type Options struct {
	Timeout    approval.TimeoutPolicy
	Dispatcher approval.Dispatcher
	Gate       Gate
	History    *history.Service
	Audit      *audit.Writer
	Metrics    *metrics.Recorder
	Notifier   Notifier
	States     *state.Manager
	QueueLimit int
}

// Coordinator owns the live controller and the FIFO queue of waiting
// requests for a session.
type Coordinator struct {
	opts Options
	now  func() time.Time

	mu          sync.Mutex
	active      *approval.Controller
	queue       []approval.Request
	watchCancel func()
	// lastResolved keeps the most recent terminal controller around so an
	// unacknowledged decision can still be redispatched after the queue
	// has advanced.
	lastResolved *approval.Controller
	closed       bool
}

// NewCoordinator creates a coordinator. QueueLimit <= 0 disables the
// queue: a second request while one is pending is rejected.
func NewCoordinator(opts Options) *Coordinator {
	return &Coordinator{
		opts: opts,
		now:  time.Now,
	}
}

// Submit runs the permission gate and, when the verdict is ask, surfaces
// the request or queues it behind the active one.
func (c *Coordinator) Submit(ctx context.Context, req approval.Request) error {
	if strings.TrimSpace(req.ID) == "" {
		return fmt.Errorf("request id is required")
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = c.now().UTC()
	}

	verdict, err := c.gateVerdict(req)
	if err != nil {
		return err
	}
	trace := bus.RequestIDFromContext(ctx)
	switch verdict.Action {
	case policy.ActionAllow:
		slog.Info("request allowed by policy", "request_id", req.ID, "tool", req.ToolName, "reason", verdict.Reason, "trace_id", trace)
		return c.autoDecide(ctx, req, approval.DecisionApprove, verdict.Reason)
	case policy.ActionDeny:
		slog.Info("request denied by policy", "request_id", req.ID, "tool", req.ToolName, "reason", verdict.Reason, "trace_id", trace)
		return c.autoDecide(ctx, req, approval.DecisionDeny, verdict.Reason)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if c.active != nil {
		if len(c.queue) >= c.opts.QueueLimit {
			c.mu.Unlock()
			return ErrQueueFull
		}
		c.queue = append(c.queue, req)
		c.persistLocked()
		c.mu.Unlock()

		c.appendAudit(audit.Event{Type: audit.TypeRequestQueued, RequestID: req.ID, Tool: req.ToolName})
		return nil
	}
	c.activateLocked(req)
	c.persistLocked()
	c.mu.Unlock()

	c.appendAudit(audit.Event{Type: audit.TypeRequestReceived, RequestID: req.ID, Tool: req.ToolName})
	c.sendNotify(notify.PendingEvent(req))
	return nil
}

func (c *Coordinator) gateVerdict(req approval.Request) (policy.Result, error) {
	if c.opts.Gate == nil {
		return policy.Result{Action: policy.ActionAsk}, nil
	}
	verdict, err := c.opts.Gate.Evaluate(policy.Input{
		ToolName:  req.ToolName,
		ProjectID: req.ProjectID,
		FlatInput: req.FlatInput(),
	})
	if err != nil {
		return policy.Result{}, fmt.Errorf("evaluate permission gate: %w", err)
	}
	return verdict, nil
}

// autoDecide resolves a request the gate decided without a prompt.
func (c *Coordinator) autoDecide(ctx context.Context, req approval.Request, kind approval.DecisionKind, reason string) error {
	decision := approval.Decision{
		RequestID: req.ID,
		Kind:      kind,
		ToolName:  req.ToolName,
		ProjectID: req.ProjectID,
		DecidedBy: "policy",
		DecidedAt: c.now().UTC(),
	}

	var dispatchErr error
	if c.opts.Dispatcher != nil {
		dispatchErr = c.opts.Dispatcher.Dispatch(ctx, decision)
	}
	c.finalize(req, decision, dispatchErr)

	if dispatchErr != nil {
		return fmt.Errorf("dispatch policy decision for request %s: %w", req.ID, dispatchErr)
	}
	return nil
}

// activateLocked surfaces the request. Caller holds c.mu.
func (c *Coordinator) activateLocked(req approval.Request) {
	ctrl := approval.NewController(req, c.opts.Timeout, c.opts.Dispatcher)
	snapshots, cancel := ctrl.Subscribe()
	c.active = ctrl
	c.watchCancel = cancel
	go c.watch(ctrl, snapshots)
	ctrl.Start()
}

// watch follows one controller to its terminal state: it raises the
// warning notification once and runs the resolution bookkeeping when a
// decision lands.
func (c *Coordinator) watch(ctrl *approval.Controller, snapshots <-chan approval.Snapshot) {
	warned := false
	for snap := range snapshots {
		if snap.Resolved {
			c.finalize(snap.Request, *snap.Decision, nil)
			c.advance(ctrl)
			return
		}
		if snap.Phase == approval.PhaseWarning && !warned {
			warned = true
			c.sendNotify(notify.WarningEvent(snap.Request, snap.Remaining))
		}
	}
}

// finalize records a terminal decision in history, audit and metrics and
// raises the resolved notification.
func (c *Coordinator) finalize(req approval.Request, decision approval.Decision, dispatchErr error) {
	if c.opts.History != nil {
		if _, err := c.opts.History.RecordDecision(req, decision); err != nil {
			slog.Warn("record history failed", "request_id", decision.RequestID, "error", err)
		}
	}

	c.appendAudit(audit.DecisionEvent(decision))
	if dispatchErr != nil {
		c.appendAudit(audit.Event{
			Type:      audit.TypeDispatchFailed,
			RequestID: decision.RequestID,
			Tool:      decision.ToolName,
			Detail:    dispatchErr.Error(),
		})
	}

	if c.opts.Metrics != nil {
		latency := decision.DecidedAt.Sub(req.ReceivedAt)
		if _, err := c.opts.Metrics.RecordDecision(decision.Kind, latency); err != nil {
			slog.Warn("record metrics failed", "request_id", decision.RequestID, "error", err)
		}
		if dispatchErr != nil {
			if _, err := c.opts.Metrics.RecordDispatchError(); err != nil {
				slog.Warn("record dispatch error failed", "request_id", decision.RequestID, "error", err)
			}
		}
	}

	c.sendNotify(notify.ResolvedEvent(req, decision))
}

// advance releases the resolved controller and surfaces the next queued
// request, if any.
func (c *Coordinator) advance(resolved *approval.Controller) {
	c.mu.Lock()
	if c.active != resolved {
		c.mu.Unlock()
		return
	}
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	c.active = nil
	c.lastResolved = resolved

	var next *approval.Request
	if !c.closed && len(c.queue) > 0 {
		head := c.queue[0]
		c.queue = append([]approval.Request(nil), c.queue[1:]...)
		c.activateLocked(head)
		next = &head
	}
	c.persistLocked()
	c.mu.Unlock()

	if next != nil {
		c.appendAudit(audit.Event{Type: audit.TypeRequestReceived, RequestID: next.ID, Tool: next.ToolName})
		c.sendNotify(notify.PendingEvent(*next))
	}
}

// Resume restores the active request and queue persisted by an earlier
// process. The countdown continues from the original ReceivedAt.
func (c *Coordinator) Resume(ctx context.Context) error {
	if c.opts.States == nil {
		return nil
	}
	st, err := c.opts.States.LoadPendingState()
	if err != nil {
		return fmt.Errorf("load pending state: %w", err)
	}

	c.mu.Lock()
	c.queue = append([]approval.Request(nil), st.Queue...)
	var resumed *approval.Request
	if st.Active != nil {
		c.activateLocked(*st.Active)
		resumed = st.Active
	} else if len(c.queue) > 0 {
		head := c.queue[0]
		c.queue = append([]approval.Request(nil), c.queue[1:]...)
		c.activateLocked(head)
		resumed = &head
	}
	c.persistLocked()
	c.mu.Unlock()

	if resumed != nil {
		slog.Info("resumed pending approval", "request_id", resumed.ID, "tool", resumed.ToolName)
	}
	return nil
}

// Decide applies a user action to the active request. An empty requestID
// targets the active request; a mismatched one is rejected.
func (c *Coordinator) Decide(ctx context.Context, requestID, action string) error {
	c.mu.Lock()
	ctrl := c.active
	// Redispatch targets the unacknowledged decision, which may belong to
	// the previous request when the queue has already advanced: an explicit
	// id names it directly, and without an id an unresolved active request
	// cannot be the target.
	if action == ActionRedispatch {
		if last := c.lastResolved; last != nil {
			switch id := strings.TrimSpace(requestID); {
			case ctrl == nil, id == last.Request().ID:
				ctrl = last
			case id == "":
				if _, resolved := ctrl.Resolved(); !resolved {
					ctrl = last
				}
			}
		}
	}
	c.mu.Unlock()

	if ctrl == nil {
		return ErrNoActiveRequest
	}
	if strings.TrimSpace(requestID) != "" && requestID != ctrl.Request().ID {
		return ErrRequestMismatch
	}

	var err error
	switch action {
	case ActionApprove:
		err = ctrl.Approve(ctx)
	case ActionDeny:
		err = ctrl.Deny(ctx)
	case ActionRequestAlways:
		return ctrl.RequestAlwaysAllow()
	case ActionConfirmAlways:
		err = ctrl.ConfirmAlways(ctx)
	case ActionConfirmOnce:
		err = ctrl.ConfirmOnce(ctx)
	case ActionCancelAlways:
		return ctrl.CancelConfirm()
	case ActionRedispatch:
		err = ctrl.Redispatch(ctx)
	default:
		return fmt.Errorf("unknown decision action %q", action)
	}

	if err != nil && !errors.Is(err, ErrNoActiveRequest) &&
		!errors.Is(err, approval.ErrAlreadyResolved) &&
		!errors.Is(err, approval.ErrNotConfirming) &&
		!errors.Is(err, approval.ErrNotResolved) {
		c.recordDispatchFailure(ctrl.Request(), err)
	}
	return err
}

// recordDispatchFailure audits a decision that was recorded locally but
// could not be delivered. The request never reverts to pending.
func (c *Coordinator) recordDispatchFailure(req approval.Request, dispatchErr error) {
	c.appendAudit(audit.Event{
		Type:      audit.TypeDispatchFailed,
		RequestID: req.ID,
		Tool:      req.ToolName,
		Detail:    dispatchErr.Error(),
	})
	if c.opts.Metrics != nil {
		if _, err := c.opts.Metrics.RecordDispatchError(); err != nil {
			slog.Warn("record dispatch error failed", "request_id", req.ID, "error", err)
		}
	}
}

// ActiveSnapshot returns the state of the active request.
func (c *Coordinator) ActiveSnapshot() (approval.Snapshot, bool) {
	c.mu.Lock()
	ctrl := c.active
	c.mu.Unlock()

	if ctrl == nil {
		return approval.Snapshot{}, false
	}
	return ctrl.Snapshot(), true
}

// QueuedRequests returns a copy of the waiting queue.
func (c *Coordinator) QueuedRequests() []approval.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]approval.Request(nil), c.queue...)
}

// Close dismisses the session without resolving the active request. The
// pending state stays persisted so a restart resumes the countdown.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ctrl := c.active
	cancel := c.watchCancel
	c.watchCancel = nil
	c.persistLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ctrl != nil {
		ctrl.Stop()
	}
	return nil
}

// persistLocked saves the active request and queue. Caller holds c.mu.
func (c *Coordinator) persistLocked() {
	if c.opts.States == nil {
		return
	}
	st := state.PendingState{Queue: append([]approval.Request(nil), c.queue...)}
	if c.active != nil {
		req := c.active.Request()
		st.Active = &req
	}
	if err := c.opts.States.SavePendingState(st); err != nil {
		slog.Warn("persist pending state failed", "error", err)
	}
}

func (c *Coordinator) appendAudit(event audit.Event) {
	if c.opts.Audit == nil {
		return
	}
	if err := c.opts.Audit.Append(event); err != nil {
		slog.Warn("append audit event failed", "type", event.Type, "error", err)
	}
}

func (c *Coordinator) sendNotify(event notify.Event) {
	if c.opts.Notifier == nil {
		return
	}
	c.opts.Notifier.Notify(context.Background(), event)
}
