package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/cron"
)

// buildCronCmd creates the "cron" command group.
func buildCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(
		buildCronListCmd(),
		buildCronAddCmd(),
		buildCronRemoveCmd(),
		buildCronEnableCmd(),
		buildCronDisableCmd(),
		buildCronRunCmd(),
	)
	return cmd
}

// loadScheduler builds a Scheduler over the configured cron jobs. The
// runner logs invocations rather than dispatching to a live agent,
// since CLI subcommands operate without a running gateway.
func loadScheduler() (*cron.Scheduler, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	store := cron.NewStore()
	runner := cron.JobRunnerFunc(func(ctx context.Context, job cron.Job) error {
		slog.Info("cron job invoked via cli", "id", job.ID, "name", job.Name)
		return nil
	})
	scheduler := cron.NewScheduler(store, runner)
	for _, j := range cfg.Cron.Jobs {
		if err := scheduler.Add(cron.Job{
			ID: j.ID, Name: j.Name, Schedule: j.Schedule, Enabled: j.Enabled, Payload: j.Payload,
		}); err != nil {
			slog.Warn("skipping invalid cron job from config", "id", j.ID, "error", err)
		}
	}
	return scheduler, nil
}

func buildCronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured cron jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, err := loadScheduler()
			if err != nil {
				return err
			}
			for _, j := range scheduler.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tenabled=%t\tnext=%s\n", j.ID, j.Schedule, j.Enabled, j.NextRun)
			}
			return nil
		},
	}
}

func buildCronAddCmd() *cobra.Command {
	var name, schedule string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a cron job (in-memory for this CLI invocation; persist it by editing the config file)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, err := loadScheduler()
			if err != nil {
				return err
			}
			if err := scheduler.Add(cron.Job{ID: args[0], Name: name, Schedule: schedule, Enabled: true}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", args[0], schedule)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "human-readable job name")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression")
	return cmd
}

func buildCronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a cron job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, err := loadScheduler()
			if err != nil {
				return err
			}
			if !scheduler.Remove(args[0]) {
				return fmt.Errorf("weft: no such cron job %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func buildCronEnableCmd() *cobra.Command {
	return cronToggleCmd("enable", true)
}

func buildCronDisableCmd() *cobra.Command {
	return cronToggleCmd("disable", false)
}

func cronToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("%s a cron job", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, err := loadScheduler()
			if err != nil {
				return err
			}
			if !scheduler.SetEnabled(args[0], enabled) {
				return fmt.Errorf("weft: no such cron job %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, args[0])
			return nil
		},
	}
}

func buildCronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a cron job now, bypassing its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, err := loadScheduler()
			if err != nil {
				return err
			}
			return scheduler.Run(cmd.Context(), args[0])
		},
	}
}
