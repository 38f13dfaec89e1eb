package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "petrel",
		Short: "Petrel - automated rollouts of evaluator/target model conversations",
		Long: `Petrel runs automated multi-turn conversations between an evaluator model
and a target model under test, to surface a specified target behavior.

Each rollout is recorded as an immutable event-sourced transcript with
separate evaluator, target, and combined views.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newNewCommand())
	cmd.AddCommand(newRenderCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
