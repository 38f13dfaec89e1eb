package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petrel-evals/petrel/internal/wizard"
)

var newOutputPath string

func newNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Scaffold a new rollout spec interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  newCommandE,
	}

	cmd.Flags().StringVarP(&newOutputPath, "output", "o", "", "Output path (default: <name>.yaml)")

	return cmd
}

func newCommandE(cmd *cobra.Command, args []string) error {
	initialName := ""
	if len(args) > 0 {
		initialName = args[0]
	}

	draft, err := wizard.RunSpecWizard(cmd.InOrStdin(), cmd.OutOrStdout(), initialName)
	if err != nil {
		return err
	}

	content, err := wizard.GenerateSpecYAML(draft)
	if err != nil {
		return err
	}

	path := newOutputPath
	if path == "" {
		path = draft.Name + ".yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write spec: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}
