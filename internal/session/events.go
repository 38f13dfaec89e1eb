package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventRunStart        EventType = "run_start"
	EventRunComplete     EventType = "run_complete"
	EventRolloutStart    EventType = "rollout_start"
	EventRolloutComplete EventType = "rollout_complete"
	EventError           EventType = "error"
)

// Event is a single timestamped entry in a session log. Seq is assigned by
// the logger at write time, not by event constructors.
type Event struct {
	Seq       int            `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// RunStartData returns event data for a run start.
func RunStartData(specName, evaluatorModel, targetModel string, rolloutCount int) map[string]any {
	return map[string]any{
		"spec_name":       specName,
		"evaluator_model": evaluatorModel,
		"target_model":    targetModel,
		"rollout_count":   rolloutCount,
	}
}

// RunCompleteData returns event data for a run end.
func RunCompleteData(launched, succeeded, failed, partial int, durationMs int64) map[string]any {
	return map[string]any{
		"launched":    launched,
		"succeeded":   succeeded,
		"failed":      failed,
		"partial":     partial,
		"duration_ms": durationMs,
	}
}

// RolloutStartData returns event data for a rollout start.
func RolloutStartData(rolloutID string, variation, repetition int) map[string]any {
	return map[string]any{
		"rollout_id": rolloutID,
		"variation":  variation,
		"repetition": repetition,
	}
}

// RolloutCompleteData returns event data for a rollout completion.
func RolloutCompleteData(rolloutID, status string, targetTurns int, durationMs int64) map[string]any {
	return map[string]any{
		"rollout_id":   rolloutID,
		"status":       status,
		"target_turns": targetTurns,
		"duration_ms":  durationMs,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
