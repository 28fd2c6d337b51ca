package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/config"
)

// buildStatusCmd creates the "status" command, a quick healthcheck of
// the resolved configuration (valid config file, provider secrets
// present) without starting the gateway.
func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report configuration and provider readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "config: %s\n", configPath)
			fmt.Fprintf(cmd.OutOrStdout(), "agents configured: %d\n", len(cfg.Agents.Catalog))
			fmt.Fprintf(cmd.OutOrStdout(), "cron jobs configured: %d\n", len(cfg.Cron.Jobs))
			fmt.Fprintf(cmd.OutOrStdout(), "mcp servers configured: %d\n", len(cfg.MCPServers))

			for name, provider := range cfg.Providers {
				_, ok := config.ResolveSecret(provider)
				status := "missing"
				if ok {
					status = "ok"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "provider %s: secret %s\n", name, status)
			}
			return nil
		},
	}
}
