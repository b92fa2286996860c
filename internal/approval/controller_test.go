package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	decisions []Decision
	failures  int
	err       error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, decision Decision) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return d.err
	}
	d.decisions = append(d.decisions, decision)
	return nil
}

func (d *fakeDispatcher) dispatched() []Decision {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Decision, len(d.decisions))
	copy(out, d.decisions)
	return out
}

func testRequest(receivedAt time.Time) Request {
	return Request{
		ID:         "req-1",
		SessionID:  "sess-1",
		ProjectID:  "proj-1",
		ToolName:   "Bash",
		Input:      []Param{{Name: "command", Value: "ls"}},
		ReceivedAt: receivedAt,
	}
}

func TestController_ResumeReportsWarningWithRemaining(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), &fakeDispatcher{})
	c.now = func() time.Time { return base.Add(250 * time.Second) }

	snap := c.Snapshot()
	if snap.Phase != PhaseWarning {
		t.Fatalf("expected warning phase after resume, got %q", snap.Phase)
	}
	if snap.Remaining != 50*time.Second {
		t.Fatalf("expected 50s remaining, got %s", snap.Remaining)
	}
	if snap.Elapsed != 250*time.Second {
		t.Fatalf("expected 250s elapsed, got %s", snap.Elapsed)
	}
}

func TestController_ApproveDispatchesOnce(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := &fakeDispatcher{}
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), d)
	c.now = func() time.Time { return base.Add(10 * time.Second) }

	if err := c.Approve(context.Background()); err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if err := c.Approve(context.Background()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second Approve = %v, want ErrAlreadyResolved", err)
	}
	if err := c.Deny(context.Background()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("Deny after approve = %v, want ErrAlreadyResolved", err)
	}

	got := d.dispatched()
	if len(got) != 1 {
		t.Fatalf("expected 1 dispatched decision, got %d", len(got))
	}
	if got[0].Kind != DecisionApprove {
		t.Fatalf("expected approve decision, got %q", got[0].Kind)
	}
	if got[0].RequestID != "req-1" {
		t.Fatalf("unexpected request id %q", got[0].RequestID)
	}
	if got[0].DecidedBy != "user" {
		t.Fatalf("expected decided_by user, got %q", got[0].DecidedBy)
	}
}

func TestController_TickAutoExpires(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := &fakeDispatcher{}
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), d)
	c.now = func() time.Time { return base.Add(300 * time.Second) }

	if done := c.onTick(); !done {
		t.Fatal("expected tick at expiration to terminate the loop")
	}

	decision, ok := c.Resolved()
	if !ok {
		t.Fatal("expected resolved controller")
	}
	if decision.Kind != DecisionAutoExpired {
		t.Fatalf("expected auto-expired decision, got %q", decision.Kind)
	}
	if decision.DecidedBy != "system" {
		t.Fatalf("expected decided_by system, got %q", decision.DecidedBy)
	}

	// Dispatch happens off the tick path.
	deadline := time.Now().Add(2 * time.Second)
	for len(d.dispatched()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("auto-expired decision never dispatched")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.Approve(context.Background()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("Approve after expiry = %v, want ErrAlreadyResolved", err)
	}
	if len(d.dispatched()) != 1 {
		t.Fatalf("expected exactly 1 dispatch, got %d", len(d.dispatched()))
	}
}

func TestController_TickBeforeExpiryKeepsPending(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), &fakeDispatcher{})
	c.now = func() time.Time { return base.Add(121 * time.Second) }

	if done := c.onTick(); done {
		t.Fatal("tick in warning phase must not terminate")
	}
	snap := c.Snapshot()
	if snap.Resolved {
		t.Fatal("expected pending controller")
	}
	if snap.Phase != PhaseWarning {
		t.Fatalf("expected warning phase, got %q", snap.Phase)
	}
	if snap.Remaining != 179*time.Second {
		t.Fatalf("expected 179s remaining, got %s", snap.Remaining)
	}
}

func TestController_UserExpiryRaceSingleWinner(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := &fakeDispatcher{}
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), d)
	c.now = func() time.Time { return base.Add(300 * time.Second) }

	approveErr := c.Approve(context.Background())
	c.onTick()

	decision, ok := c.Resolved()
	if !ok {
		t.Fatal("expected resolved controller")
	}
	if approveErr == nil && decision.Kind != DecisionApprove {
		t.Fatalf("approve won but recorded decision is %q", decision.Kind)
	}

	// Allow the expiry goroutine, if any, to finish.
	time.Sleep(20 * time.Millisecond)
	if len(d.dispatched()) != 1 {
		t.Fatalf("expected exactly 1 dispatched decision, got %d", len(d.dispatched()))
	}
}

func TestController_AlwaysAllowConfirmationFlow(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := &fakeDispatcher{}
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), d)
	c.now = func() time.Time { return base.Add(10 * time.Second) }

	if err := c.ConfirmAlways(context.Background()); !errors.Is(err, ErrNotConfirming) {
		t.Fatalf("ConfirmAlways without prompt = %v, want ErrNotConfirming", err)
	}

	if err := c.RequestAlwaysAllow(); err != nil {
		t.Fatalf("RequestAlwaysAllow error: %v", err)
	}
	if !c.Snapshot().Confirming {
		t.Fatal("expected confirming snapshot")
	}

	// Cancel preserves elapsed time.
	if err := c.CancelConfirm(); err != nil {
		t.Fatalf("CancelConfirm error: %v", err)
	}
	snap := c.Snapshot()
	if snap.Confirming || snap.Resolved {
		t.Fatal("expected pending, non-confirming state after cancel")
	}
	if snap.Elapsed != 10*time.Second {
		t.Fatalf("cancel must preserve elapsed time, got %s", snap.Elapsed)
	}

	if err := c.RequestAlwaysAllow(); err != nil {
		t.Fatalf("RequestAlwaysAllow error: %v", err)
	}
	if err := c.ConfirmAlways(context.Background()); err != nil {
		t.Fatalf("ConfirmAlways error: %v", err)
	}

	got := d.dispatched()
	if len(got) != 1 || got[0].Kind != DecisionAlwaysAllow {
		t.Fatalf("expected single always-allow dispatch, got %+v", got)
	}
}

func TestController_ConfirmOnceDispatchesApprove(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := &fakeDispatcher{}
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), d)
	c.now = func() time.Time { return base.Add(10 * time.Second) }

	if err := c.RequestAlwaysAllow(); err != nil {
		t.Fatalf("RequestAlwaysAllow error: %v", err)
	}
	if err := c.ConfirmOnce(context.Background()); err != nil {
		t.Fatalf("ConfirmOnce error: %v", err)
	}

	got := d.dispatched()
	if len(got) != 1 || got[0].Kind != DecisionApprove {
		t.Fatalf("expected single approve dispatch, got %+v", got)
	}
}

func TestController_DispatchFailureStaysResolvedAndRedispatches(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	netErr := errors.New("network unavailable")
	d := &fakeDispatcher{failures: 1, err: netErr}
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), d)
	c.now = func() time.Time { return base.Add(10 * time.Second) }

	if err := c.Deny(context.Background()); !errors.Is(err, netErr) {
		t.Fatalf("Deny = %v, want wrapped network error", err)
	}

	snap := c.Snapshot()
	if !snap.Resolved {
		t.Fatal("failed dispatch must not revert to pending")
	}
	if snap.Acked {
		t.Fatal("expected unacknowledged decision after failed dispatch")
	}
	if err := c.Approve(context.Background()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("Approve after failed deny = %v, want ErrAlreadyResolved", err)
	}

	if err := c.Redispatch(context.Background()); err != nil {
		t.Fatalf("Redispatch error: %v", err)
	}
	if !c.Snapshot().Acked {
		t.Fatal("expected acked after successful redispatch")
	}
	got := d.dispatched()
	if len(got) != 1 || got[0].Kind != DecisionDeny {
		t.Fatalf("expected single deny dispatch, got %+v", got)
	}

	// Acked redispatch is a no-op.
	if err := c.Redispatch(context.Background()); err != nil {
		t.Fatalf("Redispatch after ack error: %v", err)
	}
	if len(d.dispatched()) != 1 {
		t.Fatal("redispatch after ack must not dispatch again")
	}
}

func TestController_StopReleasesTickerWithoutResolving(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), &fakeDispatcher{})
	c.now = func() time.Time { return base.Add(10 * time.Second) }
	c.tickInterval = time.Millisecond

	c.Start()
	c.Stop()
	c.Stop() // idempotent

	if _, ok := c.Resolved(); ok {
		t.Fatal("Stop must not record a decision")
	}
	snap := c.Snapshot()
	if snap.Resolved {
		t.Fatal("expected pending state after dismissal")
	}
}

func TestController_TickLoopExpiresAndStopsItself(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d := &fakeDispatcher{}
	c := NewController(testRequest(base), TimeoutPolicy{Warning: time.Second, Expiration: 2 * time.Second}, d)
	c.now = func() time.Time { return base.Add(5 * time.Second) }
	c.tickInterval = time.Millisecond

	updates, cancel := c.Subscribe()
	defer cancel()

	c.Start()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Resolved {
				if snap.Decision == nil || snap.Decision.Kind != DecisionAutoExpired {
					t.Fatalf("expected auto-expired decision, got %+v", snap.Decision)
				}
				return
			}
		case <-deadline:
			t.Fatal("controller never auto-expired")
		}
	}
}

func TestController_SubscribeCancelIsIdempotent(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewController(testRequest(base), DefaultTimeoutPolicy(), &fakeDispatcher{})

	_, cancel := c.Subscribe()
	cancel()
	cancel()
}
