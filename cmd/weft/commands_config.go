package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// buildConfigCmd creates the "config" command group for inspecting the
// resolved configuration tree.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(buildConfigShowCmd(), buildConfigSectionCmd())
	return cmd
}

func buildConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the fully-resolved configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		},
	}
}

func buildConfigSectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "section <name>",
		Short: "Print one top-level configuration section as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("weft: marshal config: %w", err)
			}
			var sections map[string]json.RawMessage
			if err := json.Unmarshal(raw, &sections); err != nil {
				return fmt.Errorf("weft: split config sections: %w", err)
			}
			section, ok := sections[args[0]]
			if !ok {
				return fmt.Errorf("weft: unknown config section %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(section))
			return nil
		},
	}
}

// printJSON marshals v as indented JSON to cmd's stdout.
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("weft: marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
