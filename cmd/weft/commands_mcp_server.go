package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/mcp"
	"github.com/weave-logic-ai/weft/internal/tools"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// buildMCPServerCmd creates the "mcp-server" command: weft acting as
// an MCP server, exposing its local tool registry over stdio to
// another agent runtime (spec.md §6).
func buildMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the local tool registry over stdio as an MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := tools.NewRegistry()
			perms := models.UserPermissions{ToolAccess: []string{"*"}}
			server := mcp.NewServer(registry, &perms, "weft", version, nil)
			return server.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
