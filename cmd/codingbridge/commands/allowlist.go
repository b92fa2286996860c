package commands

import (
	"fmt"

	"github.com/codingbridge/codingbridge/internal/allowlist"
	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/spf13/cobra"
)

func NewAllowlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Manage the project always-allow list",
	}

	cmd.AddCommand(
		newAllowlistListCmd(),
		newAllowlistAddCmd(),
		newAllowlistRemoveCmd(),
	)

	return cmd
}

func newAllowlistListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List always-allowed tools",
		RunE:  runAllowlistList,
	}
	cmd.Flags().String("project", "", "Filter by project id")
	return cmd
}

func newAllowlistAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <tool>",
		Short: "Always allow a tool for a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runAllowlistAdd,
	}
	cmd.Flags().String("project", "", "Project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newAllowlistRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <tool>",
		Short: "Remove a tool from the always-allow list",
		Args:  cobra.ExactArgs(1),
		RunE:  runAllowlistRemove,
	}
	cmd.Flags().String("project", "", "Project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func loadAllowlistStore() (*allowlist.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return allowlist.NewStore(cfg.WorkspacePath()), nil
}

func runAllowlistList(cmd *cobra.Command, args []string) error {
	store, err := loadAllowlistStore()
	if err != nil {
		return err
	}
	project, _ := cmd.Flags().GetString("project")

	entries, err := store.List(project)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Always-allow list is empty.")
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("%s  %s  (added %s)\n", entry.Tool, entry.ProjectID, entry.AddedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func runAllowlistAdd(cmd *cobra.Command, args []string) error {
	store, err := loadAllowlistStore()
	if err != nil {
		return err
	}
	project, _ := cmd.Flags().GetString("project")

	if err := store.Add(args[0], project); err != nil {
		return err
	}
	fmt.Printf("Tool %s always allowed for project %s.\n", args[0], project)
	return nil
}

func runAllowlistRemove(cmd *cobra.Command, args []string) error {
	store, err := loadAllowlistStore()
	if err != nil {
		return err
	}
	project, _ := cmd.Flags().GetString("project")

	removed, err := store.Remove(args[0], project)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Printf("Tool %s was not on the always-allow list for project %s.\n", args[0], project)
		return nil
	}
	fmt.Printf("Tool %s removed from the always-allow list for project %s.\n", args[0], project)
	return nil
}
