package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultTickInterval = time.Second

var (
	// ErrAlreadyResolved is returned when a decision entry point is called
	// after a terminal decision has been recorded for the request.
	ErrAlreadyResolved = errors.New("approval request already resolved")

	// ErrNotConfirming is returned when a confirmation entry point is
	// called without an always-allow confirmation in progress.
	ErrNotConfirming = errors.New("no always-allow confirmation in progress")

	// ErrNotResolved is returned by Redispatch before a terminal decision
	// has been recorded.
	ErrNotResolved = errors.New("approval request not resolved")
)

// Dispatcher forwards a terminal decision to the permission backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, decision Decision) error
}

// Snapshot is the observable state of a controller at one instant.
type Snapshot struct {
	Request    Request
	Phase      Phase
	Elapsed    time.Duration
	Remaining  time.Duration
	Confirming bool
	Resolved   bool
	Acked      bool
	Decision   *Decision
}

// Controller drives a single request from pending to a terminal decision.
//
// A 1 Hz tick recomputes elapsed time from the request's ReceivedAt, so a
// controller resumed after a process restart continues the countdown rather
// than restarting it. The only automatic transition is expiry: when the
// timeout policy classifies the elapsed time as expired and no decision has
// been recorded, the controller synthesizes an auto-expired deny. All other
// transitions require an explicit user action. The first caller to record a
// decision wins; later callers get ErrAlreadyResolved.
type Controller struct {
	req        Request
	timeout    TimeoutPolicy
	dispatcher Dispatcher

	now          func() time.Time
	tickInterval time.Duration

	mu         sync.Mutex
	resolved   bool
	acked      bool
	confirming bool
	decision   Decision
	running    bool
	stopCh     chan struct{}
	stopped    chan struct{}

	subMu   sync.RWMutex
	subs    map[int]chan Snapshot
	nextSub int
}

// NewController creates a controller for one pending request.
func NewController(req Request, timeout TimeoutPolicy, dispatcher Dispatcher) *Controller {
	return &Controller{
		req:          req,
		timeout:      timeout.normalized(),
		dispatcher:   dispatcher,
		now:          time.Now,
		tickInterval: defaultTickInterval,
		subs:         make(map[int]chan Snapshot),
	}
}

// Request returns the request this controller owns.
func (c *Controller) Request() Request {
	return c.req
}

// Start launches the periodic tick loop. Starting a resolved or already
// running controller is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running || c.resolved {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	c.stopped = make(chan struct{})
	c.running = true
	stopCh, stopped := c.stopCh, c.stopped
	c.mu.Unlock()

	go c.loop(stopCh, stopped)
}

// Stop releases the tick loop without recording a decision. It is the
// dismissal path: the request stays pending and the timer is not leaked.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stopCh, stopped := c.stopCh, c.stopped
	c.running = false
	c.stopCh = nil
	c.stopped = nil
	c.mu.Unlock()

	close(stopCh)
	<-stopped
}

func (c *Controller) loop(stopCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if done := c.onTick(); done {
				return
			}
		}
	}
}

// onTick recomputes elapsed time, publishes a snapshot and performs the
// expiry transition when due. It returns true once the controller has
// reached a terminal state.
func (c *Controller) onTick() bool {
	elapsed := c.Elapsed()
	if c.timeout.Classify(elapsed) != PhaseExpired {
		c.publish()
		return false
	}

	decision, err := c.resolve(DecisionAutoExpired, "system")
	if err != nil {
		// A user decision won the race.
		return true
	}

	slog.Info("approval request auto-expired",
		"request_id", decision.RequestID,
		"tool", decision.ToolName,
		"elapsed", elapsed.String(),
	)

	// Fire-and-forget: the tick path must not block on the network.
	go func() {
		if err := c.dispatch(context.Background(), decision); err != nil {
			slog.Warn("auto-expiry dispatch failed", "request_id", decision.RequestID, "error", err)
		}
	}()
	return true
}

// Elapsed returns how long the request has been pending.
func (c *Controller) Elapsed() time.Duration {
	elapsed := c.now().Sub(c.req.ReceivedAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Approve records an explicit user approval and dispatches it.
func (c *Controller) Approve(ctx context.Context) error {
	return c.decide(ctx, DecisionApprove)
}

// Deny records an explicit user denial and dispatches it.
func (c *Controller) Deny(ctx context.Context) error {
	return c.decide(ctx, DecisionDeny)
}

// RequestAlwaysAllow opens the always-allow confirmation step. The request
// stays pending and its elapsed time keeps counting.
func (c *Controller) RequestAlwaysAllow() error {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return ErrAlreadyResolved
	}
	c.confirming = true
	c.mu.Unlock()

	c.publish()
	return nil
}

// ConfirmAlways completes the confirmation with a persistent always-allow.
func (c *Controller) ConfirmAlways(ctx context.Context) error {
	if err := c.requireConfirming(); err != nil {
		return err
	}
	return c.decide(ctx, DecisionAlwaysAllow)
}

// ConfirmOnce completes the confirmation with a one-time approval. The
// allow-list is not touched.
func (c *Controller) ConfirmOnce(ctx context.Context) error {
	if err := c.requireConfirming(); err != nil {
		return err
	}
	return c.decide(ctx, DecisionApprove)
}

// CancelConfirm abandons the confirmation and returns to pending. Elapsed
// time is preserved, not reset.
func (c *Controller) CancelConfirm() error {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return ErrAlreadyResolved
	}
	if !c.confirming {
		c.mu.Unlock()
		return ErrNotConfirming
	}
	c.confirming = false
	c.mu.Unlock()

	c.publish()
	return nil
}

func (c *Controller) requireConfirming() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return ErrAlreadyResolved
	}
	if !c.confirming {
		return ErrNotConfirming
	}
	return nil
}

func (c *Controller) decide(ctx context.Context, kind DecisionKind) error {
	decision, err := c.resolve(kind, "user")
	if err != nil {
		return err
	}
	return c.dispatch(ctx, decision)
}

// resolve records the terminal decision. The terminal flag is set under the
// lock before any dispatch begins, so a user action and an expiry tick can
// race safely: exactly one wins.
func (c *Controller) resolve(kind DecisionKind, decidedBy string) (Decision, error) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return Decision{}, ErrAlreadyResolved
	}
	c.resolved = true
	c.confirming = false
	c.decision = Decision{
		RequestID: c.req.ID,
		Kind:      kind,
		ToolName:  c.req.ToolName,
		ProjectID: c.req.ProjectID,
		DecidedBy: decidedBy,
		DecidedAt: c.now(),
	}
	decision := c.decision

	var stopCh chan struct{}
	if c.running {
		stopCh = c.stopCh
		c.running = false
		c.stopCh = nil
		c.stopped = nil
	}
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	c.publish()
	return decision, nil
}

// dispatch forwards the decision. On failure the controller stays resolved
// but unacknowledged; it never reverts to pending. Redispatch may retry.
func (c *Controller) dispatch(ctx context.Context, decision Decision) error {
	if c.dispatcher == nil {
		return nil
	}
	if err := c.dispatcher.Dispatch(ctx, decision); err != nil {
		return fmt.Errorf("dispatch decision for request %s: %w", decision.RequestID, err)
	}

	c.mu.Lock()
	c.acked = true
	c.mu.Unlock()

	c.publish()
	return nil
}

// Redispatch retries delivery of an already recorded decision. It is a
// no-op when the decision has been acknowledged.
func (c *Controller) Redispatch(ctx context.Context) error {
	c.mu.Lock()
	if !c.resolved {
		c.mu.Unlock()
		return ErrNotResolved
	}
	if c.acked {
		c.mu.Unlock()
		return nil
	}
	decision := c.decision
	c.mu.Unlock()

	return c.dispatch(ctx, decision)
}

// Resolved reports the terminal decision, if one has been recorded.
func (c *Controller) Resolved() (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision, c.resolved
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	elapsed := c.Elapsed()

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Request:    c.req,
		Phase:      c.timeout.Classify(elapsed),
		Elapsed:    elapsed,
		Remaining:  c.timeout.Remaining(elapsed),
		Confirming: c.confirming,
		Resolved:   c.resolved,
		Acked:      c.acked,
	}
	if c.resolved {
		decision := c.decision
		snap.Decision = &decision
	}
	return snap
}

// Subscribe registers a listener for state snapshots. Slow listeners drop
// updates rather than blocking the tick loop. The cancel func must be
// called to release the subscription.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan Snapshot, 16)
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; !ok {
			return
		}
		delete(c.subs, id)
		close(ch)
	}
	return ch, cancel
}

func (c *Controller) publish() {
	snap := c.Snapshot()

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
