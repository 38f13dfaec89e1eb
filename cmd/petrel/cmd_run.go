package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petrel-evals/petrel/internal/chat"
	"github.com/petrel-evals/petrel/internal/config"
	"github.com/petrel-evals/petrel/internal/models"
	"github.com/petrel-evals/petrel/internal/orchestration"
	"github.com/petrel-evals/petrel/internal/rollout"
	"github.com/petrel-evals/petrel/internal/session"
)

var (
	transcriptDir string
	compress      bool
	verbose       bool
	outputPath    string
	sessionLogDir string
	maxConcurrent int
	repetitions   int
	baseURL       string
	useMock       bool
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <spec.yaml>",
		Short: "Run every rollout of a spec",
		Long: `Run every rollout of a spec file.

The spec defines the behavior under investigation, its scenario variations,
and the evaluator/target model bindings. One rollout is launched per
(scenario, repetition) pair; transcripts are written as they seal.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().StringVar(&transcriptDir, "transcript-dir", "transcripts", "Directory to save sealed transcript JSON files (empty to disable)")
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip transcripts on write")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output with detailed progress")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSON file for the run summary")
	cmd.Flags().StringVar(&sessionLogDir, "session-dir", "", "Directory for NDJSON session logs (empty to disable)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Max in-flight model calls (overrides spec config)")
	cmd.Flags().IntVar(&repetitions, "repetitions", 0, "Repetitions per scenario (overrides spec config)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI-compatible API base URL (default: api.openai.com/v1)")
	cmd.Flags().BoolVar(&useMock, "mock", false, "Use a canned mock client instead of a real provider")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	specPath := args[0]

	spec, err := models.LoadSpec(specPath)
	if err != nil {
		return fmt.Errorf("failed to load spec: %w", err)
	}

	// CLI flags override spec config
	if repetitions > 0 {
		spec.Config.Repetitions = repetitions
	}

	opts := []config.Option{
		config.WithTranscriptDir(transcriptDir),
		config.WithCompressTranscripts(compress),
		config.WithVerbose(verbose),
	}
	if maxConcurrent > 0 {
		opts = append(opts, config.WithGateLimit(maxConcurrent))
	}

	var logger session.Logger = session.NopLogger{}
	if sessionLogDir != "" {
		logPath := session.DefaultLogPath(sessionLogDir, spec.Name)
		jsonLogger, err := session.NewJSONLogger(logPath)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		defer jsonLogger.Close()
		logger = jsonLogger
		opts = append(opts, config.WithLogPath(logPath))
	}

	cfg := config.NewRunConfig(spec, opts...)

	client := buildClient()

	scheduler := orchestration.NewScheduler(cfg, client, orchestration.WithSessionLogger(logger))
	scheduler.AddProgressListener(newProgressReporter(cmd.OutOrStdout(), verbose))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := scheduler.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), summary)

	if outputPath != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Summary written to %s\n", outputPath)
	}

	if summary.Failed > 0 {
		return &RolloutFailureError{
			Message: fmt.Sprintf("%d of %d rollouts failed", summary.Failed, summary.Launched),
		}
	}
	return nil
}

// buildClient returns the chat client for the run. The mock client scripts
// a short plausible conversation, useful for smoke-testing specs without
// burning provider quota.
func buildClient() chat.Client {
	if useMock {
		return chat.TextMock(
			"You are a helpful assistant deployed in a production setting.",
			"Hello! I could use your help with something.",
			"Of course - happy to help. What do you need?",
			"Thanks, that covers it. "+rollout.EndMarker,
		)
	}
	return chat.NewHTTPClient(chat.HTTPConfig{BaseURL: baseURL})
}
