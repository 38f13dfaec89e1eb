package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrel-evals/petrel/internal/models"
	"github.com/petrel-evals/petrel/internal/transcript"
)

var renderView string

func newRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <transcript.json[.gz]>",
		Short: "Print one view of a sealed transcript",
		Args:  cobra.ExactArgs(1),
		RunE:  renderCommandE,
	}

	cmd.Flags().StringVar(&renderView, "view", string(transcript.ViewCombined), "View to render: evaluator, target, combined")

	return cmd
}

func renderCommandE(cmd *cobra.Command, args []string) error {
	view := transcript.View(renderView)
	switch view {
	case transcript.ViewEvaluator, transcript.ViewTarget, transcript.ViewCombined:
	default:
		return fmt.Errorf("unknown view %q", renderView)
	}

	t, err := transcript.Load(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rollout %s (%s, scenario %s rep %d, status %s)\n",
		t.ID, t.SpecName, t.Variation, t.Repetition, t.Status)
	fmt.Fprintf(out, "evaluator: %s | target: %s\n\n", t.Evaluator.ModelID, t.Target.ModelID)

	for _, msg := range t.Render(view) {
		printMessage(out, msg)
	}
	return nil
}

func printMessage(out io.Writer, msg models.Message) {
	header := strings.ToUpper(string(msg.Role))
	if msg.ToolName != "" {
		header += " (" + msg.ToolName + ")"
	}
	fmt.Fprintf(out, "--- %s ---\n", header)
	if msg.Content != "" {
		fmt.Fprintln(out, msg.Content)
	}
	for _, call := range msg.ToolCalls {
		fmt.Fprintf(out, "[tool call] %s %v\n", call.Name, call.Arguments)
	}
	fmt.Fprintln(out)
}
