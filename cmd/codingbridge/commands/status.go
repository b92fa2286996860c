package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/codingbridge/codingbridge/internal/allowlist"
	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/codingbridge/codingbridge/internal/metrics"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show CodingBridge configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspace := cfg.WorkspacePath()

	fmt.Println("=== CodingBridge Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'codingbridge init')")
	}

	fmt.Printf("\nWorkspace: %s\n", workspace)
	if _, err := os.Stat(workspace); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found")
	}

	fmt.Println("\nApproval:")
	fmt.Printf("  Warning after: %ds\n", cfg.Approval.WarningSeconds)
	fmt.Printf("  Expires after: %ds\n", cfg.Approval.ExpirationSeconds)
	fmt.Printf("  Queue limit: %d\n", cfg.Approval.QueueLimit)

	mode := strings.TrimSpace(cfg.Policy.Mode)
	if mode == "" {
		mode = "default"
	}
	fmt.Println("\nPolicy:")
	fmt.Printf("  Mode: %s\n", mode)
	rulesStatus := "none"
	if strings.TrimSpace(cfg.Policy.RulesFile) != "" {
		rulesStatus = cfg.Policy.RulesFile
		if _, err := os.Stat(cfg.Policy.RulesFile); err != nil {
			rulesStatus += " (missing)"
		}
	}
	fmt.Printf("  Rules: %s\n", rulesStatus)

	fmt.Println("\nBackend:")
	fmt.Printf("  URL: %s\n", cfg.Backend.BaseURL)
	tokenStatus := "Not configured"
	if strings.TrimSpace(cfg.Backend.Token) != "" {
		tokenStatus = "Configured"
	}
	fmt.Printf("  Token: %s\n", tokenStatus)

	fmt.Println("\nGateway:")
	fmt.Printf("  Address: %s\n", cfg.GatewayAddr())
	authStatus := "disabled"
	if strings.TrimSpace(cfg.Gateway.Token) != "" {
		authStatus = "bearer token"
	}
	fmt.Printf("  Auth: %s\n", authStatus)

	fmt.Println("\nNotifications:")
	desktopStatus := "disabled"
	if cfg.Notifications.Desktop {
		desktopStatus = "enabled"
	}
	fmt.Printf("  Desktop: %s\n", desktopStatus)
	webhookStatus := "disabled"
	if strings.TrimSpace(cfg.Notifications.WebhookURL) != "" {
		webhookStatus = "enabled"
	}
	fmt.Printf("  Webhook: %s\n", webhookStatus)
	telegramStatus := "disabled"
	if cfg.Notifications.Telegram.Enabled {
		telegramStatus = "enabled"
	}
	fmt.Printf("  Telegram: %s\n", telegramStatus)

	if entries, err := allowlist.NewStore(workspace).List(""); err == nil {
		fmt.Printf("\nAlways-allow entries: %d\n", len(entries))
	}

	snap, err := metrics.ReadSnapshot(workspace)
	if err == nil && snap.HasData() {
		fmt.Println("\nDecisions:")
		fmt.Printf("  Approved: %d\n", snap.Decisions.Approved)
		fmt.Printf("  Always allowed: %d\n", snap.Decisions.AlwaysAllowed)
		fmt.Printf("  Denied: %d\n", snap.Decisions.Denied)
		fmt.Printf("  Expired: %d (%.0f%%)\n", snap.Decisions.Expired, snap.Decisions.ExpiryRatio()*100)
		fmt.Printf("  Dispatch errors: %d\n", snap.Decisions.DispatchErrors)
		fmt.Printf("  Avg decision latency: %.0fms\n", snap.Decisions.AvgLatencyMs())
	}

	return nil
}
