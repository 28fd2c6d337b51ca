package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/security"
)

// buildSecurityCmd creates the "security" command group: local checks
// a deployer can run before trusting a workspace, not a runtime
// enforcement path (at runtime, internal/security validates the
// delegation Flow's command before it is spawned).
func buildSecurityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Run local security checks",
	}
	cmd.AddCommand(buildSecurityScanCmd(), buildSecurityAuditCmd(), buildSecurityHardenCmd())
	return cmd
}

func buildSecurityScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Check every configured MCP server command and its arguments for injection-unsafe values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			issues := 0
			for _, s := range cfg.MCPServers {
				if _, err := security.SanitizeCommandValue(s.Command); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "mcp server %s: %v\n", s.ID, err)
					issues++
				}
				if err := security.SanitizeArgs(s.Args); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "mcp server %s args: %v\n", s.ID, err)
					issues++
				}
			}
			if issues == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no issues found")
			}
			return nil
		},
	}
}

func buildSecurityAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Print each catalog agent with the workspace root it runs under",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			for id := range cfg.Agents.Catalog {
				fmt.Fprintf(cmd.OutOrStdout(), "agent %s: workspace=%s\n", id, cfg.Agents.Defaults.WorkspaceRoot)
			}
			return nil
		},
	}
}

func buildSecurityHardenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harden",
		Short: "Report configuration choices weaker than the recommended defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Tools.PerToolTimeout <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "tools.per_tool_timeout is unset; tool calls can run unbounded")
			}
			if cfg.Delegation.Timeout <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "delegation.timeout is unset; delegated subprocesses can run unbounded")
			}
			return nil
		},
	}
}
