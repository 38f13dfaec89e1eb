package rollout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/petrel-evals/petrel/internal/chat"
	"github.com/petrel-evals/petrel/internal/models"
	"github.com/petrel-evals/petrel/internal/transcript"
)

// SimEnv is the tool-augmented orchestrator variant: the target may call
// the scenario's declared tools, and the evaluator doubles as the
// environment, fabricating every tool result.
type SimEnv struct {
	base
	schemas map[string]*jsonschema.Schema
}

func newSimEnv(p Params) (*SimEnv, error) {
	s := &SimEnv{
		base:    newBase(p),
		schemas: make(map[string]*jsonschema.Schema, len(p.Scenario.Tools)),
	}

	compiler := jsonschema.NewCompiler()
	for _, tool := range p.Scenario.Tools {
		raw, err := json.Marshal(tool.ParameterSchema())
		if err != nil {
			return nil, fmt.Errorf("tool %q: marshal schema: %w", tool.Name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("tool %q: parse schema: %w", tool.Name, err)
		}
		url := fmt.Sprintf("petrel://tools/%s.json", tool.Name)
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("tool %q: add schema: %w", tool.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool %q: compile schema: %w", tool.Name, err)
		}
		s.schemas[tool.Name] = schema
	}

	return s, nil
}

// AdvanceTurn performs the next state transition.
func (s *SimEnv) AdvanceTurn(ctx context.Context) error {
	switch s.state {
	case stateSysprompt:
		return s.generateSysprompt(ctx)
	case stateKickoff:
		return s.kickoff(ctx)
	case stateTurn:
		return s.turn(ctx)
	default:
		return nil
	}
}

func (s *SimEnv) turn(ctx context.Context) error {
	comp, err := s.completeTarget(ctx, s.scenario.Tools, chat.ToolChoiceAuto)
	if err != nil {
		return err
	}
	if err := s.recordTargetReply(comp); err != nil {
		return err
	}

	if len(comp.ToolCalls) > 0 {
		// Tool results for the turn land as one batch; the user seat does
		// not advance on this branch.
		results := make([]models.Message, 0, len(comp.ToolCalls))
		for _, call := range comp.ToolCalls {
			result, err := s.fabricateResult(ctx, call)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
		for _, result := range results {
			if err := s.record(models.ParticipantEvaluator, result, transcript.AllViews()); err != nil {
				return err
			}
		}
		if s.targetTurns >= s.cfg.MaxTurns {
			s.state = stateTerminated
		}
		return nil
	}

	if s.targetTurns >= s.cfg.MaxTurns {
		s.state = stateTerminated
		return nil
	}

	if s.cfg.NoUserMode {
		// Text with no human present is a protocol violation; nudge the
		// target back onto tools without consulting the evaluator.
		msg := models.Message{Role: models.RoleUser, Content: correctiveToolPrompt}
		return s.record(models.ParticipantEvaluator, msg, transcript.AllViews())
	}

	return s.userTurn(ctx)
}

// fabricateResult produces the environment's reply to one tool call.
// Undeclared tools and schema-invalid arguments get locally fabricated
// error results with no model involved; everything else is fabricated by
// the evaluator.
func (s *SimEnv) fabricateResult(ctx context.Context, call models.ToolCall) (models.Message, error) {
	sig, ok := s.scenario.Tool(call.Name)
	if !ok {
		return toolResult(call, undeclaredToolResult(call.Name), true), nil
	}

	args := any(call.Arguments)
	if call.Arguments == nil {
		args = map[string]any{}
	}
	if err := s.schemas[call.Name].Validate(args); err != nil {
		return toolResult(call, invalidArgsResult(call.Name, err), true), nil
	}

	comp, err := s.completeEvaluator(ctx, models.Message{Role: models.RoleUser, Content: toolResultInstruction(sig, call)})
	if err != nil {
		return models.Message{}, fmt.Errorf("fabricate result for tool %q: %w", call.Name, err)
	}
	if strings.TrimSpace(comp.Content) == "" {
		return models.Message{}, ErrEmptyEvaluatorResponse
	}
	return toolResult(call, comp.Content, false), nil
}

func toolResult(call models.ToolCall, content string, isError bool) models.Message {
	return models.Message{
		Role:       models.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		ToolError:  isError,
	}
}
