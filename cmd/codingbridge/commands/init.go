package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/spf13/cobra"
)

const defaultRulesFile = `# Permission gate rules, evaluated first-match-wins.
# Tool and input patterns are regular expressions.
rules:
  - name: read-only-tools
    tool: "^(Read|Glob|Grep)$"
    action: allow
#  - name: block-force-push
#    tool: "^Bash$"
#    input: "git\\s+push\\s+.*--force"
#    action: deny
#    message: force pushes are blocked
settings:
  default_action: ask
`

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize CodingBridge configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := config.ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()

	dirs := []string{
		config.ConfigDir(),
		cfg.WorkspacePath(),
		filepath.Join(cfg.WorkspacePath(), "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	rulesPath := filepath.Join(config.ConfigDir(), "rules.yaml")
	if _, err := os.Stat(rulesPath); os.IsNotExist(err) {
		if err := os.WriteFile(rulesPath, []byte(defaultRulesFile), 0644); err != nil {
			return fmt.Errorf("failed to write rules file: %w", err)
		}
	}
	cfg.Policy.RulesFile = rulesPath

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("CodingBridge initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Workspace: %s\n", cfg.WorkspacePath())
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Edit %s to point backend.base_url at your bridge\n", configPath)
	fmt.Printf("2. Run 'codingbridge serve' to start the daemon\n")
	fmt.Printf("3. Run 'codingbridge prompt' to answer approval requests\n")

	return nil
}
