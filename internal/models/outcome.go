package models

import "time"

// RolloutStatus is the terminal status of a single rollout.
type RolloutStatus string

const (
	StatusSuccess RolloutStatus = "success"
	StatusFailed  RolloutStatus = "failed"
	// StatusPartial marks rollouts cut short by run cancellation; their
	// transcripts are sealed and kept.
	StatusPartial RolloutStatus = "partial"
)

// RolloutOutcome is the result of one scheduler task.
type RolloutOutcome struct {
	RolloutID    string        `json:"rollout_id"`
	Variation    int           `json:"variation"`
	Repetition   int           `json:"repetition"`
	Status       RolloutStatus `json:"status"`
	ErrorMsg     string        `json:"error,omitempty"`
	TargetTurns  int           `json:"target_turns"`
	DurationMs   int64         `json:"duration_ms"`
	TranscriptAt string        `json:"transcript_path,omitempty"`
}

// RunSummary aggregates the outcomes of one scheduler run.
type RunSummary struct {
	RunID     string           `json:"run_id"`
	SpecName  string           `json:"spec_name"`
	StartedAt time.Time        `json:"started_at"`
	Launched  int              `json:"launched"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Partial   int              `json:"partial"`
	Outcomes  []RolloutOutcome `json:"rollouts"`
}

// Tally recomputes the summary counters from the outcome list.
func (s *RunSummary) Tally() {
	s.Launched = len(s.Outcomes)
	s.Succeeded, s.Failed, s.Partial = 0, 0, 0
	for _, o := range s.Outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusPartial:
			s.Partial++
		}
	}
}
