package main

import (
	"fmt"
	"io"
	"time"

	"github.com/petrel-evals/petrel/internal/models"
	"github.com/petrel-evals/petrel/internal/orchestration"
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

func statusIcon(status models.RolloutStatus) string {
	switch status {
	case models.StatusSuccess:
		return "✓"
	case models.StatusPartial:
		return "~"
	default:
		return "✗"
	}
}

// newProgressReporter returns a listener that prints rollout progress to w.
func newProgressReporter(w io.Writer, verbose bool) orchestration.ProgressListener {
	return func(ev orchestration.ProgressEvent) {
		switch ev.EventType {
		case orchestration.EventRunStart:
			fmt.Fprintf(w, "Running %d rollouts for %s\n", ev.TotalRollouts, ev.SpecName)
		case orchestration.EventRolloutStart:
			if verbose {
				fmt.Fprintf(w, "[%d/%d] scenario %d rep %d started\n",
					ev.RolloutNum, ev.TotalRollouts, ev.Variation, ev.Repetition)
			}
		case orchestration.EventRolloutComplete:
			line := fmt.Sprintf("[%d/%d] %s scenario %d rep %d (%s, %s)",
				ev.RolloutNum, ev.TotalRollouts, statusIcon(ev.Status),
				ev.Variation, ev.Repetition, ev.Status,
				formatDuration(time.Duration(ev.DurationMs)*time.Millisecond))
			if errMsg, ok := ev.Details["error"].(string); ok && errMsg != "" && verbose {
				line += " - " + errMsg
			}
			fmt.Fprintln(w, line)
		}
	}
}

// printSummary prints the run's final tallies.
func printSummary(w io.Writer, summary *models.RunSummary) {
	fmt.Fprintf(w, "\nRun %s complete: %d launched, %d succeeded, %d failed, %d partial\n",
		summary.RunID, summary.Launched, summary.Succeeded, summary.Failed, summary.Partial)
	for _, o := range summary.Outcomes {
		if o.Status == models.StatusSuccess || o.ErrorMsg == "" {
			continue
		}
		fmt.Fprintf(w, "  %s scenario %d rep %d: %s\n", statusIcon(o.Status), o.Variation, o.Repetition, o.ErrorMsg)
	}
}
