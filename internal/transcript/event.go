// Package transcript is the event-sourced record of a rollout. Every
// message that enters either participant's history is appended exactly once
// as an Event tagged with the views it belongs to; per-participant histories
// are projections over the same log, never separate copies.
package transcript

import (
	"time"

	"github.com/petrel-evals/petrel/internal/models"
)

// View names one projection of the event log.
type View string

const (
	// ViewEvaluator is what the evaluator model is allowed to see.
	ViewEvaluator View = "evaluator"
	// ViewTarget is what the target model is allowed to see.
	ViewTarget View = "target"
	// ViewCombined is the full interleaved record for human review.
	ViewCombined View = "combined"
)

// ViewSet is the set of views an event appears in.
type ViewSet []View

// Has reports whether v is in the set.
func (s ViewSet) Has(v View) bool {
	for _, have := range s {
		if have == v {
			return true
		}
	}
	return false
}

// Views builds a ViewSet.
func Views(vs ...View) ViewSet {
	return ViewSet(vs)
}

// AllViews tags an event into every projection.
func AllViews() ViewSet {
	return Views(ViewEvaluator, ViewTarget, ViewCombined)
}

// EditKind is the type of log edit an event carries.
type EditKind string

const (
	// EditAddMessage appends one message to the tagged views.
	EditAddMessage EditKind = "add_message"
)

// Event is one immutable entry in the rollout log. Seq is assigned by the
// recorder and strictly increases within a transcript.
type Event struct {
	Seq     int                    `json:"seq"`
	At      time.Time              `json:"at"`
	Kind    EditKind               `json:"kind"`
	Author  models.ParticipantRole `json:"author,omitempty"`
	Message models.Message         `json:"message"`
	Views   ViewSet                `json:"views"`
}

// renderEvents projects the messages of one view out of an event sequence,
// preserving log order.
func renderEvents(events []Event, view View) []models.Message {
	var out []models.Message
	for _, ev := range events {
		if ev.Kind != EditAddMessage {
			continue
		}
		if ev.Views.Has(view) {
			out = append(out, ev.Message)
		}
	}
	return out
}
