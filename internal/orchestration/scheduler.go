// Package orchestration fans a rollout spec out into concurrent rollout
// tasks: one per (scenario variation, repetition) pair, all sharing a
// bounded adapter-call gate, each isolated so one rollout's failure never
// takes down its siblings.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrel-evals/petrel/internal/chat"
	"github.com/petrel-evals/petrel/internal/config"
	"github.com/petrel-evals/petrel/internal/models"
	"github.com/petrel-evals/petrel/internal/rollout"
	"github.com/petrel-evals/petrel/internal/session"
	"github.com/petrel-evals/petrel/internal/transcript"
)

// Scheduler runs every rollout of a spec.
type Scheduler struct {
	cfg    *config.RunConfig
	client chat.Client
	logger session.Logger

	// Progress tracking
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// ProgressListener receives progress updates.
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event.
type EventType string

// EventType constants
const (
	EventRunStart        EventType = "run_start"
	EventRunComplete     EventType = "run_complete"
	EventRolloutStart    EventType = "rollout_start"
	EventRolloutComplete EventType = "rollout_complete"
)

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	EventType     EventType
	SpecName      string
	Variation     int
	Repetition    int
	RolloutNum    int
	TotalRollouts int
	Status        models.RolloutStatus
	DurationMs    int64
	Details       map[string]any
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSessionLogger attaches a session event log to the run.
func WithSessionLogger(l session.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a scheduler for cfg. The provided client is wrapped
// with the run's adapter-call gate, so every rollout shares one admission
// counter.
func NewScheduler(cfg *config.RunConfig, client chat.Client, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		client:    chat.NewGated(client, int64(cfg.GateLimit())),
		logger:    session.NopLogger{},
		listeners: []ProgressListener{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddProgressListener registers a callback for progress updates.
func (s *Scheduler) AddProgressListener(l ProgressListener) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Scheduler) notifyProgress(event ProgressEvent) {
	s.progressMu.Lock()
	listeners := make([]ProgressListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// task identifies one rollout of the run.
type task struct {
	variation  int
	repetition int
}

// Run executes every (variation, repetition) pair of the spec and returns
// the aggregated summary. Individual rollout failures are folded into
// outcomes, never returned as errors; cancellation seals in-flight
// rollouts as partial and still returns the summary.
func (s *Scheduler) Run(ctx context.Context) (*models.RunSummary, error) {
	spec := s.cfg.Spec()
	if spec == nil {
		return nil, errors.New("orchestration: run config carries no spec")
	}

	var tasks []task
	for v := range spec.Scenarios {
		for rep := 0; rep < spec.Config.Repetitions; rep++ {
			tasks = append(tasks, task{variation: v, repetition: rep})
		}
	}

	startTime := time.Now()
	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		SpecName:  spec.Name,
		StartedAt: startTime.UTC(),
	}

	s.notifyProgress(ProgressEvent{
		EventType:     EventRunStart,
		SpecName:      spec.Name,
		TotalRollouts: len(tasks),
	})
	s.logSession(session.EventRunStart,
		session.RunStartData(spec.Name, spec.Evaluator.ModelID, spec.Target.ModelID, len(tasks)))

	type result struct {
		index   int
		outcome models.RolloutOutcome
	}

	resultChan := make(chan result, len(tasks))

	var wg sync.WaitGroup
	for i, tk := range tasks {
		wg.Add(1)
		go func(idx int, tk task) {
			defer wg.Done()

			s.notifyProgress(ProgressEvent{
				EventType:     EventRolloutStart,
				SpecName:      spec.Name,
				Variation:     tk.variation,
				Repetition:    tk.repetition,
				RolloutNum:    idx + 1,
				TotalRollouts: len(tasks),
			})

			outcome := s.runRollout(ctx, tk)
			resultChan <- result{index: idx, outcome: outcome}

			s.notifyProgress(ProgressEvent{
				EventType:     EventRolloutComplete,
				SpecName:      spec.Name,
				Variation:     tk.variation,
				Repetition:    tk.repetition,
				RolloutNum:    idx + 1,
				TotalRollouts: len(tasks),
				Status:        outcome.Status,
				DurationMs:    outcome.DurationMs,
				Details:       map[string]any{"target_turns": outcome.TargetTurns, "error": outcome.ErrorMsg},
			})
			s.logSession(session.EventRolloutComplete,
				session.RolloutCompleteData(outcome.RolloutID, string(outcome.Status), outcome.TargetTurns, outcome.DurationMs))
		}(i, tk)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	outcomes := make([]models.RolloutOutcome, len(tasks))
	for res := range resultChan {
		outcomes[res.index] = res.outcome
	}

	summary.Outcomes = outcomes
	summary.Tally()

	durationMs := time.Since(startTime).Milliseconds()
	s.notifyProgress(ProgressEvent{
		EventType:     EventRunComplete,
		SpecName:      spec.Name,
		TotalRollouts: summary.Launched,
		DurationMs:    durationMs,
		Details: map[string]any{
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"partial":   summary.Partial,
		},
	})
	s.logSession(session.EventRunComplete,
		session.RunCompleteData(summary.Launched, summary.Succeeded, summary.Failed, summary.Partial, durationMs))

	return summary, nil
}

// runRollout executes one rollout to completion. All failure modes,
// panics included, land in the returned outcome.
func (s *Scheduler) runRollout(ctx context.Context, tk task) (outcome models.RolloutOutcome) {
	spec := s.cfg.Spec()
	start := time.Now()

	rec := transcript.NewRecorder(transcript.Meta{
		SpecName:   spec.Name,
		Variation:  fmt.Sprintf("v%d", tk.variation),
		Repetition: tk.repetition,
		Modality:   spec.Config.Modality,
		Evaluator:  spec.Evaluator,
		Target:     spec.Target,
	})

	outcome = models.RolloutOutcome{
		RolloutID:  rec.ID(),
		Variation:  tk.variation,
		Repetition: tk.repetition,
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = models.StatusFailed
			outcome.ErrorMsg = fmt.Sprintf("panic: %v", r)
			outcome.DurationMs = time.Since(start).Milliseconds()
			s.persist(rec.Seal(models.StatusFailed), &outcome)
			s.logSession(session.EventError,
				session.ErrorData(outcome.ErrorMsg, map[string]any{"rollout_id": outcome.RolloutID}))
		}
	}()

	target, err := spec.TargetBinding(tk.variation)
	if err != nil {
		return s.finish(rec, nil, outcome, models.StatusFailed, err, start)
	}

	s.logSession(session.EventRolloutStart,
		session.RolloutStartData(rec.ID(), tk.variation, tk.repetition))

	orch, err := rollout.New(rollout.Params{
		Client:    s.client,
		Recorder:  rec,
		Behavior:  spec.Behavior,
		Scenario:  spec.Scenarios[tk.variation],
		Config:    spec.Config,
		Evaluator: spec.Evaluator,
		Target:    target,
	})
	if err != nil {
		return s.finish(rec, nil, outcome, models.StatusFailed, err, start)
	}

	for !orch.IsTerminal() {
		if ctx.Err() != nil {
			return s.finish(rec, orch, outcome, models.StatusPartial, ctx.Err(), start)
		}
		if err := orch.AdvanceTurn(ctx); err != nil {
			status := models.StatusFailed
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = models.StatusPartial
			}
			return s.finish(rec, orch, outcome, status, err, start)
		}
	}

	return s.finish(rec, orch, outcome, models.StatusSuccess, nil, start)
}

// finish seals the transcript, persists it, and completes the outcome.
func (s *Scheduler) finish(rec *transcript.Recorder, orch rollout.Orchestrator, outcome models.RolloutOutcome, status models.RolloutStatus, err error, start time.Time) models.RolloutOutcome {
	var sealed *transcript.Transcript
	if orch != nil {
		sealed = orch.Seal(status)
		outcome.TargetTurns = orch.TargetTurns()
	} else {
		sealed = rec.Seal(status)
	}

	outcome.Status = status
	if err != nil {
		outcome.ErrorMsg = err.Error()
	}
	outcome.DurationMs = time.Since(start).Milliseconds()

	s.persist(sealed, &outcome)
	return outcome
}

// persist writes the sealed transcript when a transcript directory is
// configured. Write failures are reported but do not change the rollout's
// status; the in-memory outcome is already settled.
func (s *Scheduler) persist(sealed *transcript.Transcript, outcome *models.RolloutOutcome) {
	dir := s.cfg.TranscriptDir()
	if dir == "" || sealed == nil {
		return
	}
	path, err := transcript.Write(dir, sealed, s.cfg.CompressTranscripts())
	if err != nil {
		slog.Warn("failed to write transcript", "rollout_id", outcome.RolloutID, "error", err)
		s.logSession(session.EventError,
			session.ErrorData(err.Error(), map[string]any{"rollout_id": outcome.RolloutID}))
		return
	}
	outcome.TranscriptAt = path
}

func (s *Scheduler) logSession(t session.EventType, data map[string]any) {
	if err := s.logger.Log(session.NewEvent(t, data)); err != nil {
		slog.Debug("session log write failed", "error", err)
	}
}
