package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/agent"
	"github.com/weave-logic-ai/weft/pkg/models"
)

// buildAgentCmd creates the "agent" command: a single-shot or
// interactive conversation with the default agent, bypassing the
// gateway and channels. CLI invocations carry admin permissions
// (spec.md §3's cli_default constructor).
func buildAgentCmd() *cobra.Command {
	var message string
	var sessionKey string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Talk to an agent from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			rt := buildRuntime(cfg)

			agentID := cfg.Agents.CatchAll
			if agentID == "" {
				agentID = "default"
			}
			agentCtx, err := rt.workspaces.EnsureAgentWorkspace(cmd.Context(), agentID)
			if err != nil {
				return err
			}

			chatID := sessionKey
			if chatID == "" {
				chatID = "local"
			}
			key := models.SessionKey(agentID, models.ChannelCLI, chatID)
			loop := agent.NewLoop(rt.pipelines, rt.executor, agentCtx.Sessions, agent.LoopConfig{}, rt.logger).
				WithSystemPrompt(agentCtx.SystemPrompt)
			auth := models.CLIDefaultAuthContext()

			runOnce := func(content string) error {
				msg := models.InboundMessage{
					Channel:   models.ChannelCLI,
					ChatID:    chatID,
					Content:   content,
					Timestamp: time.Now(),
				}
				result := loop.Run(cmd.Context(), key, agentID, msg, auth, nil)
				if result.Err != nil {
					return result.Err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Reply.Text)
				return nil
			}

			if message != "" {
				return runOnce(message)
			}

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprintln(cmd.OutOrStdout(), "weft agent - type a message, or \"exit\" to quit")
			for {
				fmt.Fprint(cmd.OutOrStdout(), "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}
				if err := runOnce(line); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Send a single message and exit")
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "Session key to continue")
	return cmd
}
