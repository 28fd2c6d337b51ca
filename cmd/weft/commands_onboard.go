package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// defaultConfigYAML is the starter configuration onboard writes. It
// keeps static routing (backward-compatible default) and a single
// OpenAI-compatible provider keyed by environment variable.
const defaultConfigYAML = `agents:
  defaults:
    model: %s
    workspace_root: %s
  catch_all: default

providers:
  openai:
    api_key_env: OPENAI_API_KEY

routing:
  mode: static

gateway:
  bus_capacity: 256
  overflow_policy: block_sender

logging:
  level: info
  format: text
`

// buildOnboardCmd creates the "onboard" command: interactive (or --yes
// non-interactive) first-time setup that writes a starter config file
// and the workspace root.
func buildOnboardCmd() *cobra.Command {
	var yes bool
	var dir string

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "First-time setup: write a starter config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			model := "gpt-4o-mini"
			if !yes {
				reader := bufio.NewReader(os.Stdin)
				fmt.Fprintf(out, "default model [%s]: ", model)
				line, err := reader.ReadString('\n')
				if err == nil {
					if trimmed := strings.TrimSpace(line); trimmed != "" {
						model = trimmed
					}
				}
			}

			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("onboard: create %s: %w", dir, err)
			}
			workspaceRoot := filepath.Join(dir, "workspaces")
			if err := os.MkdirAll(workspaceRoot, 0o700); err != nil {
				return fmt.Errorf("onboard: create workspace root: %w", err)
			}

			cfgPath := filepath.Join(dir, "weft.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("onboard: %s already exists, refusing to overwrite", cfgPath)
			}
			content := fmt.Sprintf(defaultConfigYAML, model, workspaceRoot)
			if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
				return fmt.Errorf("onboard: write config: %w", err)
			}

			fmt.Fprintf(out, "wrote %s\n", cfgPath)
			fmt.Fprintf(out, "workspace root: %s\n", workspaceRoot)
			fmt.Fprintln(out, "set OPENAI_API_KEY and run: weft agent --message \"hello\"")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept all defaults without prompting")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to initialize")
	return cmd
}
