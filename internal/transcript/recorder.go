package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrel-evals/petrel/internal/models"
)

// ErrSealed is returned when code tries to append to a transcript that has
// already been sealed. Hitting it indicates a bug in the caller, not a
// recoverable runtime condition.
var ErrSealed = errors.New("transcript: recorder is sealed")

// Meta is the immutable identity of one rollout, fixed at recorder creation.
type Meta struct {
	SpecName   string
	Variation  string
	Repetition int
	Modality   models.Modality
	Evaluator  models.RoleBinding
	Target     models.RoleBinding
}

// Recorder accumulates the event log for a single rollout. It is safe for
// concurrent use, assigns strictly increasing sequence numbers, and becomes
// append-only-then-frozen: after Seal no further events are accepted.
type Recorder struct {
	mu           sync.Mutex
	meta         Meta
	id           string
	start        time.Time
	events       []Event
	targetSystem string
	sealed       *Transcript

	now func() time.Time // test hook
}

// NewRecorder opens the log for one rollout.
func NewRecorder(meta Meta) *Recorder {
	r := &Recorder{
		meta: meta,
		id:   uuid.NewString(),
		now:  time.Now,
	}
	r.start = r.now().UTC()
	return r
}

// ID returns the rollout's unique identifier.
func (r *Recorder) ID() string {
	return r.id
}

// AddMessage appends one message event tagged with views. The returned
// event carries the assigned sequence number.
func (r *Recorder) AddMessage(author models.ParticipantRole, msg models.Message, views ViewSet) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed != nil {
		return Event{}, ErrSealed
	}

	ev := Event{
		Seq:     len(r.events),
		At:      r.now().UTC(),
		Kind:    EditAddMessage,
		Author:  author,
		Message: msg,
		Views:   views,
	}
	r.events = append(r.events, ev)
	return ev, nil
}

// Render projects the current log into one view's message history. The
// result is a fresh slice; callers may modify it freely.
func (r *Recorder) Render(view View) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return renderEvents(r.events, view)
}

// SetTargetSystemPrompt captures the system prompt installed on the
// target, which the sealed transcript exposes as a top-level field for
// downstream consumers.
func (r *Recorder) SetTargetSystemPrompt(prompt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed != nil {
		return ErrSealed
	}
	r.targetSystem = prompt
	return nil
}

// Events returns a copy of the log recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of events recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Seal freezes the log and returns the finished transcript. Sealing is
// idempotent: later calls return the first result and ignore the status
// argument.
func (r *Recorder) Seal(status models.RolloutStatus) *Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed != nil {
		return r.sealed
	}

	events := make([]Event, len(r.events))
	copy(events, r.events)

	r.sealed = &Transcript{
		SchemaVersion:      SchemaVersion,
		ID:                 r.id,
		SpecName:           r.meta.SpecName,
		Variation:          r.meta.Variation,
		Repetition:         r.meta.Repetition,
		Modality:           r.meta.Modality,
		Evaluator:          r.meta.Evaluator,
		Target:             r.meta.Target,
		TargetSystemPrompt: r.targetSystem,
		Status:             status,
		StartedAt:          r.start,
		SealedAt:           r.now().UTC(),
		Events:             events,
	}
	return r.sealed
}
