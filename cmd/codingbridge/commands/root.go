package commands

import (
	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codingbridge",
		Short: "CodingBridge - tool approval bridge for remote coding agents",
		Long:  `CodingBridge receives tool permission requests from a coding agent backend, runs the approval countdown, and dispatches decisions back.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride, false)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride, cmd.Name() == "prompt")
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewServeCmd(),
		NewPromptCmd(),
		NewApprovalsCmd(),
		NewAllowlistCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}
