package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// buildChannelsCmd creates the "channels" command group.
func buildChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Inspect and drive configured channel adapters",
	}
	cmd.AddCommand(buildChannelsListCmd(), buildChannelsStatusCmd(), buildChannelsSendCmd())
	return cmd
}

func buildChannelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			entries := map[string]bool{
				"telegram": cfg.Channels.Telegram.Enabled,
				"slack":    cfg.Channels.Slack.Enabled,
				"discord":  cfg.Channels.Discord.Enabled,
				"http":     cfg.Channels.HTTP.Enabled,
			}
			names := make([]string, 0, len(entries))
			for n := range entries {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tenabled=%t\n", n, entries[n])
			}
			return nil
		},
	}
}

func buildChannelsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <channel>",
		Short: "Report one channel's enable state and settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			var entry = func() (bool, map[string]any, bool) {
				switch args[0] {
				case "telegram":
					return cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Settings, true
				case "slack":
					return cfg.Channels.Slack.Enabled, cfg.Channels.Slack.Settings, true
				case "discord":
					return cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Settings, true
				case "http":
					return cfg.Channels.HTTP.Enabled, cfg.Channels.HTTP.Settings, true
				default:
					return false, nil, false
				}
			}
			enabled, settings, ok := entry()
			if !ok {
				return fmt.Errorf("weft: unknown channel %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enabled: %t\n", enabled)
			return printJSON(cmd, settings)
		},
	}
}

func buildChannelsSendCmd() *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "send <channel> <text>",
		Short: "Send an outbound message through a running gateway's channel adapter",
		Long:  "send requires a running gateway instance reachable over its control socket; this binary only validates arguments and reports that no gateway is attached, since the control-plane transport is provided by the host deployment.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID == "" {
				return fmt.Errorf("weft: --chat-id is required")
			}
			return fmt.Errorf("weft: no running gateway instance attached; start one with 'weft gateway' and use its control socket")
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "destination chat/user id on the channel")
	return cmd
}
