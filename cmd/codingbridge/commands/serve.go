package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/codingbridge/codingbridge/internal/allowlist"
	"github.com/codingbridge/codingbridge/internal/audit"
	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/codingbridge/codingbridge/internal/dispatch"
	"github.com/codingbridge/codingbridge/internal/gateway"
	"github.com/codingbridge/codingbridge/internal/history"
	"github.com/codingbridge/codingbridge/internal/metrics"
	"github.com/codingbridge/codingbridge/internal/notify"
	"github.com/codingbridge/codingbridge/internal/policy"
	"github.com/codingbridge/codingbridge/internal/session"
	"github.com/codingbridge/codingbridge/internal/state"
	"github.com/spf13/cobra"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CodingBridge daemon",
		RunE:  runServe,
	}

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspace := cfg.WorkspacePath()

	allowStore := allowlist.NewStore(workspace)
	dispatcher := dispatch.New(dispatch.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	}, allowStore)

	gate, err := policy.NewEngine(policy.Mode(cfg.Policy.Mode), cfg.Policy.RulesFile, allowStore)
	if err != nil {
		return fmt.Errorf("failed to load permission rules: %w", err)
	}

	notifier := notify.NewDispatcher(notify.Config{
		Desktop:    cfg.Notifications.Desktop,
		WebhookURL: cfg.Notifications.WebhookURL,
		Telegram: notify.TelegramConfig{
			Enabled: cfg.Notifications.Telegram.Enabled,
			Token:   cfg.Notifications.Telegram.Token,
			ChatID:  cfg.Notifications.Telegram.ChatID,
		},
	})

	coordinator := session.NewCoordinator(session.Options{
		Timeout:    cfg.TimeoutPolicy(),
		Dispatcher: dispatcher,
		Gate:       gate,
		History:    history.NewService(workspace),
		Audit:      audit.NewWriter(workspace),
		Metrics:    metrics.NewRecorder(workspace),
		Notifier:   notifier,
		States:     state.NewManager(workspace),
		QueueLimit: cfg.Approval.QueueLimit,
	})
	defer coordinator.Close()

	if err := coordinator.Resume(ctx); err != nil {
		slog.Warn("failed to resume pending approvals", "error", err)
	}
	if snap, ok := coordinator.ActiveSnapshot(); ok {
		slog.Info("pending approval resumed",
			"request_id", snap.Request.ID,
			"tool", snap.Request.ToolName,
			"remaining", snap.Remaining.Round(time.Second).String(),
		)
	}

	gatewayServer := gateway.New(cfg.Gateway, coordinator)
	errCh := make(chan error, 1)
	go func() {
		if err := gatewayServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server failed: %w", err)
		}
	}()

	fmt.Printf("CodingBridge daemon running. Gateway: http://%s\nPress Ctrl+C to stop.\n", gatewayServer.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("gateway shutdown failed", "error", err)
	}

	return runErr
}
