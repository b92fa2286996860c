package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/codingbridge/codingbridge/internal/gateway"
	"github.com/codingbridge/codingbridge/internal/history"
	"github.com/codingbridge/codingbridge/internal/render"
	"github.com/spf13/cobra"
)

func NewApprovalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Inspect and decide approval requests",
	}

	cmd.AddCommand(
		newApprovalsActiveCmd(),
		newApprovalsApproveCmd(),
		newApprovalsDenyCmd(),
		newApprovalsAlwaysCmd(),
		newApprovalsHistoryCmd(),
	)

	return cmd
}

func newApprovalsActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the active approval request",
		RunE:  runApprovalsActive,
	}
}

func newApprovalsApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve [id]",
		Short: "Approve the active request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalsDecision(cmd, args, "approve", "approved")
		},
	}
}

func newApprovalsDenyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deny [id]",
		Short: "Deny the active request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalsDecision(cmd, args, "deny", "denied")
		},
	}
}

func newApprovalsAlwaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "always [id]",
		Short: "Always allow the active request's tool for the project",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runApprovalsAlways,
	}
}

func newApprovalsHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List resolved approval requests",
		RunE:  runApprovalsHistory,
	}
	cmd.Flags().String("status", "", "Filter by status (approved|always_allowed|denied|expired)")
	cmd.Flags().String("tool", "", "Filter by tool name")
	return cmd
}

func loadGatewayClient() (*gateway.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return gateway.NewClient("http://"+cfg.GatewayAddr(), cfg.Gateway.Token), nil
}

func runApprovalsActive(cmd *cobra.Command, args []string) error {
	client, err := loadGatewayClient()
	if err != nil {
		return err
	}

	active, ok, err := client.Active(cmd.Context())
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No active approval request.")
		return nil
	}

	fmt.Printf("%s  %s\n", active.RequestID, active.Title)
	if active.Description != "" {
		fmt.Printf("  %s\n", active.Description)
	}
	fmt.Printf("  Phase: %s  Remaining: %s\n", active.Phase, render.FormatRemaining(time.Duration(active.RemainingSeconds)*time.Second))
	if active.QueueLength > 0 {
		fmt.Printf("  Queued behind it: %d\n", active.QueueLength)
	}
	return nil
}

func runApprovalsDecision(cmd *cobra.Command, args []string, action, done string) error {
	client, err := loadGatewayClient()
	if err != nil {
		return err
	}

	requestID := ""
	if len(args) > 0 {
		requestID = args[0]
	}
	if err := client.Decide(cmd.Context(), requestID, action); err != nil {
		return err
	}
	fmt.Printf("Request %s.\n", done)
	return nil
}

// runApprovalsAlways drives the two-step always-allow confirmation in one
// command: open the confirmation, then confirm it.
func runApprovalsAlways(cmd *cobra.Command, args []string) error {
	client, err := loadGatewayClient()
	if err != nil {
		return err
	}

	requestID := ""
	if len(args) > 0 {
		requestID = args[0]
	}
	if err := client.Decide(cmd.Context(), requestID, "request_always"); err != nil {
		return err
	}
	if err := client.Decide(cmd.Context(), requestID, "confirm_always"); err != nil {
		return err
	}
	fmt.Println("Request approved and tool added to the always-allow list.")
	return nil
}

func runApprovalsHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	statusFilter, _ := cmd.Flags().GetString("status")
	toolFilter, _ := cmd.Flags().GetString("tool")

	svc := history.NewService(cfg.WorkspacePath())
	records, err := svc.List(history.Query{
		Status:   history.Status(strings.TrimSpace(statusFilter)),
		ToolName: strings.TrimSpace(toolFilter),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No resolved approvals.")
		return nil
	}

	var (
		wID     = 12
		wTool   = 16
		wStatus = 14
		wWhen   = 20

		colHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8E4EC6")).
				Bold(true).
				MarginRight(1)

		cellStyle = lipgloss.NewStyle().
				MarginRight(1)

		dimCellStyle = cellStyle.
				Foreground(lipgloss.Color("245"))

		expiredColor = lipgloss.Color("#B8860B")
		deniedColor  = lipgloss.Color("#CD5C5C")
		allowedColor = lipgloss.Color("#2E8B57")
	)

	headers := lipgloss.JoinHorizontal(lipgloss.Top,
		colHeaderStyle.Width(wID).Render("ID"),
		colHeaderStyle.Width(wTool).Render("TOOL"),
		colHeaderStyle.Width(wStatus).Render("STATUS"),
		colHeaderStyle.Width(wWhen).Render("DECIDED AT"),
		colHeaderStyle.Render("BY"),
	)
	fmt.Printf("  %s\n", headers)

	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
	separator := lipgloss.JoinHorizontal(lipgloss.Top,
		sepStyle.Render(strings.Repeat("─", wID)),
		sepStyle.Render(strings.Repeat("─", wTool)),
		sepStyle.Render(strings.Repeat("─", wStatus)),
		sepStyle.Render(strings.Repeat("─", wWhen)),
		sepStyle.Render(strings.Repeat("─", 8)),
	)
	fmt.Printf("  %s\n", separator)

	for _, rec := range records {
		statusColor := allowedColor
		switch rec.Status {
		case history.StatusDenied:
			statusColor = deniedColor
		case history.StatusExpired:
			statusColor = expiredColor
		}

		row := lipgloss.JoinHorizontal(lipgloss.Top,
			dimCellStyle.Width(wID).Render(truncate(rec.RequestID, wID)),
			cellStyle.Width(wTool).Render(truncate(rec.ToolName, wTool)),
			cellStyle.Width(wStatus).Foreground(statusColor).Render(string(rec.Status)),
			dimCellStyle.Width(wWhen).Render(rec.DecidedAt.Local().Format("2006-01-02 15:04:05")),
			dimCellStyle.Render(rec.DecidedBy),
		)
		fmt.Printf("  %s\n", row)
	}

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
