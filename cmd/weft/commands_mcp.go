package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/config"
	"github.com/weave-logic-ai/weft/internal/mcp"
)

// buildMCPCmd creates the "mcp" command group for managing external
// MCP server connections.
func buildMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage external MCP server connections",
	}
	cmd.AddCommand(buildMCPAddCmd(), buildMCPListCmd(), buildMCPRemoveCmd())
	return cmd
}

func mcpServerConfigs() ([]config.MCPServerConfig, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.MCPServers, nil
}

func buildMCPListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := mcpServerConfigs()
			if err != nil {
				return err
			}
			for _, s := range servers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", s.ID, s.Transport, s.Command)
			}
			return nil
		},
	}
}

func buildMCPAddCmd() *cobra.Command {
	var command string
	var args []string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Connect to an MCP server and verify it responds to initialize",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			if command == "" {
				return fmt.Errorf("weft: --command is required")
			}
			manager := mcp.NewManager(nil)
			defer manager.CloseAll()
			err := manager.Add(cmd.Context(), mcp.ServerConfig{
				ID: cmdArgs[0], Transport: mcp.TransportStdio, Command: command, Args: args,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", cmdArgs[0])
			fmt.Fprintln(cmd.OutOrStdout(), "note: persist this server by adding it under mcp_servers in the config file")
			return nil
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "executable to launch the MCP server")
	cmd.Flags().StringSliceVar(&args, "arg", nil, "argument to pass the server command (repeatable)")
	return cmd
}

func buildMCPRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Print how to remove an MCP server from the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "remove %s from mcp_servers in the config file, then restart the gateway\n", args[0])
			return nil
		},
	}
}
