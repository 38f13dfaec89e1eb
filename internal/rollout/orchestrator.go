// Package rollout drives single simulated conversations between an
// evaluator model and a target model. An orchestrator owns one rollout: it
// walks the turn state machine, calls both models through the chat adapter,
// and records every exchanged message into the rollout's transcript.
package rollout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petrel-evals/petrel/internal/chat"
	"github.com/petrel-evals/petrel/internal/models"
	"github.com/petrel-evals/petrel/internal/transcript"
)

var (
	// ErrEmptyTargetResponse means the target produced neither text nor
	// tool calls. Fatal for the rollout.
	ErrEmptyTargetResponse = errors.New("rollout: target returned an empty response")
	// ErrEmptyEvaluatorResponse means the evaluator produced no usable
	// text. Fatal for the rollout.
	ErrEmptyEvaluatorResponse = errors.New("rollout: evaluator returned an empty response")
)

// Orchestrator drives one rollout's turn loop. AdvanceTurn performs the
// next state transition; callers loop until IsTerminal and then Seal.
type Orchestrator interface {
	AdvanceTurn(ctx context.Context) error
	IsTerminal() bool
	TargetTurns() int
	Seal(status models.RolloutStatus) *transcript.Transcript
}

// Params carries everything an orchestrator needs for one rollout.
type Params struct {
	Client    chat.Client
	Recorder  *transcript.Recorder
	Behavior  string
	Scenario  models.Scenario
	Config    models.RunConfig
	Evaluator models.RoleBinding
	Target    models.RoleBinding
}

// New builds the orchestrator variant for the configured modality.
func New(p Params) (Orchestrator, error) {
	switch p.Config.Modality {
	case models.ModalityConversation:
		return newConversation(p), nil
	case models.ModalitySimEnv:
		return newSimEnv(p)
	default:
		return nil, fmt.Errorf("rollout: unknown modality %q", p.Config.Modality)
	}
}

type state int

const (
	stateSysprompt state = iota
	stateKickoff
	stateTurn
	stateTerminated
)

// base holds the machinery shared by both orchestrator variants.
type base struct {
	client    chat.Client
	rec       *transcript.Recorder
	behavior  string
	scenario  models.Scenario
	cfg       models.RunConfig
	evaluator models.RoleBinding
	target    models.RoleBinding

	state       state
	targetTurns int
	evalSystem  string
}

func newBase(p Params) base {
	return base{
		client:     p.Client,
		rec:        p.Recorder,
		behavior:   p.Behavior,
		scenario:   p.Scenario,
		cfg:        p.Config,
		evaluator:  p.Evaluator,
		target:     p.Target,
		state:      stateSysprompt,
		evalSystem: evaluatorSystemPrompt(p.Behavior, p.Scenario, p.Config),
	}
}

func (b *base) IsTerminal() bool {
	return b.state == stateTerminated
}

func (b *base) TargetTurns() int {
	return b.targetTurns
}

// Seal freezes the transcript with the given status. Safe to call in any
// state; an already-sealed transcript is returned unchanged.
func (b *base) Seal(status models.RolloutStatus) *transcript.Transcript {
	b.state = stateTerminated
	return b.rec.Seal(status)
}

func (b *base) record(author models.ParticipantRole, msg models.Message, views transcript.ViewSet) error {
	_, err := b.rec.AddMessage(author, msg, views)
	return err
}

// generateSysprompt runs the SYSPROMPT state: the evaluator writes the
// system prompt to install on the target. The generated prompt is recorded
// into the target and combined views only, so the evaluator's own history
// never carries it.
func (b *base) generateSysprompt(ctx context.Context) error {
	err := b.record(models.ParticipantEvaluator,
		models.Message{Role: models.RoleSystem, Content: b.evalSystem},
		transcript.Views(transcript.ViewEvaluator, transcript.ViewCombined))
	if err != nil {
		return err
	}

	comp, err := b.completeEvaluator(ctx, models.Message{Role: models.RoleUser, Content: syspromptInstruction})
	if err != nil {
		return fmt.Errorf("generate target system prompt: %w", err)
	}

	sys := strings.TrimSpace(comp.Content)
	if sys == "" {
		return ErrEmptyEvaluatorResponse
	}

	err = b.record(models.ParticipantEvaluator,
		models.Message{Role: models.RoleSystem, Content: sys},
		transcript.Views(transcript.ViewTarget, transcript.ViewCombined))
	if err != nil {
		return err
	}
	if err := b.rec.SetTargetSystemPrompt(sys); err != nil {
		return err
	}

	b.state = stateKickoff
	return nil
}

// kickoff runs the KICKOFF state: the evaluator, playing user, writes the
// opening message of the conversation.
func (b *base) kickoff(ctx context.Context) error {
	comp, err := b.completeEvaluator(ctx, models.Message{Role: models.RoleUser, Content: kickoffInstruction})
	if err != nil {
		return fmt.Errorf("generate kickoff message: %w", err)
	}
	if strings.TrimSpace(comp.Content) == "" {
		return ErrEmptyEvaluatorResponse
	}

	msg := models.Message{Role: models.RoleUser, Content: comp.Content, Reasoning: comp.Reasoning}
	if err := b.record(models.ParticipantEvaluator, msg, transcript.AllViews()); err != nil {
		return err
	}

	b.state = stateTurn
	return nil
}

// userTurn asks the evaluator for the next user message. Detecting the end
// marker terminates the loop; the final message is still recorded.
func (b *base) userTurn(ctx context.Context) error {
	comp, err := b.completeEvaluator(ctx)
	if err != nil {
		return fmt.Errorf("generate user turn: %w", err)
	}
	if strings.TrimSpace(comp.Content) == "" {
		return ErrEmptyEvaluatorResponse
	}

	msg := models.Message{Role: models.RoleUser, Content: comp.Content, Reasoning: comp.Reasoning}
	if err := b.record(models.ParticipantEvaluator, msg, transcript.AllViews()); err != nil {
		return err
	}

	if strings.Contains(msg.Content, EndMarker) {
		b.state = stateTerminated
	}
	return nil
}

// recordTargetReply validates and records one target turn.
func (b *base) recordTargetReply(comp *chat.Completion) error {
	msg := comp.Message()
	if msg.Empty() {
		return ErrEmptyTargetResponse
	}
	if err := b.record(models.ParticipantTarget, msg, transcript.AllViews()); err != nil {
		return err
	}
	b.targetTurns++
	return nil
}

// completeTarget calls the target model with its current visible history.
func (b *base) completeTarget(ctx context.Context, tools []models.ToolSignature, choice chat.ToolChoice) (*chat.Completion, error) {
	system, msgs := splitSystem(b.rec.Render(transcript.ViewTarget))
	req := &chat.Request{
		Model:           b.target.ModelID,
		System:          system,
		Messages:        msgs,
		MaxTokens:       b.target.Params.MaxTokens,
		Temperature:     b.target.Params.Temperature,
		ReasoningEffort: b.target.Params.ReasoningEffort,
		Tools:           tools,
		ToolChoice:      choice,
	}
	comp, err := b.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("target completion: %w", err)
	}
	return comp, nil
}

// completeEvaluator calls the evaluator model with its materialized history
// plus any transient instruction messages, which are never recorded.
func (b *base) completeEvaluator(ctx context.Context, extra ...models.Message) (*chat.Completion, error) {
	req := &chat.Request{
		Model:           b.evaluator.ModelID,
		System:          b.evalSystem,
		Messages:        append(b.evaluatorHistory(), extra...),
		MaxTokens:       b.evaluator.Params.MaxTokens,
		Temperature:     b.evaluator.Params.Temperature,
		ReasoningEffort: b.evaluator.Params.ReasoningEffort,
	}
	return b.client.Complete(ctx, req)
}

// evaluatorHistory materializes the evaluator's seat-inverted view of the
// conversation: its own authored turns replay as assistant messages, the
// target's turns as user messages. Tool traffic is rendered as text since
// the evaluator sees tool calls as content to respond to, not as protocol.
func (b *base) evaluatorHistory() []models.Message {
	var out []models.Message
	for _, ev := range b.rec.Events() {
		if !ev.Views.Has(transcript.ViewEvaluator) || ev.Message.Role == models.RoleSystem {
			continue
		}

		msg := ev.Message
		if ev.Author == models.ParticipantEvaluator {
			content := msg.Content
			if msg.Role == models.RoleTool {
				content = formatToolResult(msg.ToolName, msg.Content)
			}
			out = append(out, models.Message{Role: models.RoleAssistant, Content: content})
			continue
		}

		content := msg.Content
		if len(msg.ToolCalls) > 0 {
			calls := formatToolCalls(msg.ToolCalls)
			if content == "" {
				content = calls
			} else {
				content = content + "\n" + calls
			}
		}
		out = append(out, models.Message{Role: models.RoleUser, Content: content})
	}
	return out
}

// splitSystem separates leading system messages from the dialogue so the
// adapter can carry them in the request's system slot.
func splitSystem(msgs []models.Message) (string, []models.Message) {
	var system []string
	var rest []models.Message
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
