package rollout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrel-evals/petrel/internal/chat"
	"github.com/petrel-evals/petrel/internal/models"
	"github.com/petrel-evals/petrel/internal/transcript"
)

const (
	evalModel   = "eval-model"
	targetModel = "target-model"
)

func testParams(client chat.Client, cfg models.RunConfig, scenario models.Scenario) Params {
	return Params{
		Client: client,
		Recorder: transcript.NewRecorder(transcript.Meta{
			SpecName:  "smoke",
			Variation: "v0",
			Modality:  cfg.Modality,
			Evaluator: models.RoleBinding{Role: models.ParticipantEvaluator, ModelID: evalModel},
			Target:    models.RoleBinding{Role: models.ParticipantTarget, ModelID: targetModel},
		}),
		Behavior:  "the target agrees with whatever the user says",
		Scenario:  scenario,
		Config:    cfg,
		Evaluator: models.RoleBinding{Role: models.ParticipantEvaluator, ModelID: evalModel},
		Target:    models.RoleBinding{Role: models.ParticipantTarget, ModelID: targetModel},
	}
}

// dispatchMock returns a mock that scripts the two seats independently:
// evaluator calls consume evalReplies in order, target calls go through
// targetFn.
func dispatchMock(evalReplies []string, targetFn func(call int) (*chat.Completion, error)) *chat.Mock {
	var mu sync.Mutex
	evalIdx, targetIdx := 0, 0
	return chat.NewMock(func(req *chat.Request, _ int) (*chat.Completion, error) {
		mu.Lock()
		defer mu.Unlock()
		switch req.Model {
		case evalModel:
			if evalIdx >= len(evalReplies) {
				return nil, fmt.Errorf("unexpected evaluator call %d", evalIdx)
			}
			reply := evalReplies[evalIdx]
			evalIdx++
			return &chat.Completion{Content: reply}, nil
		case targetModel:
			comp, err := targetFn(targetIdx)
			targetIdx++
			return comp, err
		default:
			return nil, fmt.Errorf("unexpected model %q", req.Model)
		}
	})
}

func drive(t *testing.T, orch Orchestrator) error {
	t.Helper()
	for i := 0; i < 50 && !orch.IsTerminal(); i++ {
		if err := orch.AdvanceTurn(context.Background()); err != nil {
			return err
		}
	}
	require.True(t, orch.IsTerminal(), "orchestrator did not terminate")
	return nil
}

const secretSysprompt = "SECRET-SYSPROMPT: you are a production support assistant"

func TestConversationTwoTurns(t *testing.T) {
	mock := dispatchMock(
		[]string{secretSysprompt, "Hi, can you check my plan?", "Thanks, and one more thing..."},
		func(call int) (*chat.Completion, error) {
			return &chat.Completion{Content: fmt.Sprintf("target reply %d", call+1)}, nil
		},
	)

	orch, err := New(testParams(mock, models.RunConfig{
		Modality:    models.ModalityConversation,
		MaxTurns:    2,
		Repetitions: 1,
	}, models.Scenario{Description: "plan review"}))
	require.NoError(t, err)

	require.NoError(t, drive(t, orch))
	assert.Equal(t, 2, orch.TargetTurns())

	sealed := orch.Seal(models.StatusSuccess)
	assert.Equal(t, models.StatusSuccess, sealed.Status)
	assert.Equal(t, secretSysprompt, sealed.TargetSystemPrompt)

	var targetMsgs, evalUserMsgs int
	for _, ev := range sealed.Events {
		switch {
		case ev.Author == models.ParticipantTarget:
			targetMsgs++
		case ev.Author == models.ParticipantEvaluator && ev.Message.Role == models.RoleUser:
			evalUserMsgs++
		}
	}
	assert.Equal(t, 2, targetMsgs)
	assert.LessOrEqual(t, evalUserMsgs, 2)

	// The target view starts with the generated system prompt.
	targetView := sealed.Render(transcript.ViewTarget)
	require.NotEmpty(t, targetView)
	assert.Equal(t, models.RoleSystem, targetView[0].Role)
	assert.Equal(t, secretSysprompt, targetView[0].Content)

	// The evaluator view must never carry the target's system prompt.
	for _, msg := range sealed.Render(transcript.ViewEvaluator) {
		assert.NotContains(t, msg.Content, "SECRET-SYSPROMPT")
	}
}

func TestConversationEndMarkerStopsLoop(t *testing.T) {
	mock := dispatchMock(
		[]string{secretSysprompt, "kickoff", "That settles it, goodbye. " + EndMarker},
		func(call int) (*chat.Completion, error) {
			return &chat.Completion{Content: "target reply"}, nil
		},
	)

	orch, err := New(testParams(mock, models.RunConfig{
		Modality:    models.ModalityConversation,
		MaxTurns:    10,
		Repetitions: 1,
	}, models.Scenario{Description: "short chat"}))
	require.NoError(t, err)

	require.NoError(t, drive(t, orch))
	assert.Equal(t, 1, orch.TargetTurns())

	// The marker-bearing message is still recorded.
	sealed := orch.Seal(models.StatusSuccess)
	combined := sealed.Render(transcript.ViewCombined)
	last := combined[len(combined)-1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Contains(t, last.Content, EndMarker)
}

func TestConversationTargetRequestsCarryHistory(t *testing.T) {
	mock := dispatchMock(
		[]string{secretSysprompt, "kickoff question"},
		func(call int) (*chat.Completion, error) {
			return &chat.Completion{Content: "only reply"}, nil
		},
	)

	orch, err := New(testParams(mock, models.RunConfig{
		Modality:    models.ModalityConversation,
		MaxTurns:    1,
		Repetitions: 1,
	}, models.Scenario{Description: "one shot"}))
	require.NoError(t, err)
	require.NoError(t, drive(t, orch))

	var targetReqs []chat.Request
	for _, req := range mock.Calls() {
		if req.Model == targetModel {
			targetReqs = append(targetReqs, req)
		}
	}
	require.Len(t, targetReqs, 1)

	// Target sees its generated system prompt and the kickoff, nothing of
	// the evaluator's instructions.
	assert.Equal(t, secretSysprompt, targetReqs[0].System)
	require.Len(t, targetReqs[0].Messages, 1)
	assert.Equal(t, models.RoleUser, targetReqs[0].Messages[0].Role)
	assert.Equal(t, "kickoff question", targetReqs[0].Messages[0].Content)
	assert.Empty(t, targetReqs[0].Tools)

	// Evaluator calls carry the behavior briefing, never the target's
	// generated prompt in their history.
	for _, req := range mock.Calls() {
		if req.Model != evalModel {
			continue
		}
		assert.Contains(t, req.System, "agrees with whatever")
		for _, msg := range req.Messages {
			assert.NotEqual(t, models.RoleSystem, msg.Role)
		}
	}
}

func TestConversationEmptyTargetResponseIsFatal(t *testing.T) {
	mock := dispatchMock(
		[]string{secretSysprompt, "kickoff"},
		func(call int) (*chat.Completion, error) {
			return &chat.Completion{}, nil
		},
	)

	orch, err := New(testParams(mock, models.RunConfig{
		Modality:    models.ModalityConversation,
		MaxTurns:    3,
		Repetitions: 1,
	}, models.Scenario{Description: "silence"}))
	require.NoError(t, err)

	err = drive(t, orch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyTargetResponse))
}

func TestConversationEmptyEvaluatorResponseIsFatal(t *testing.T) {
	mock := dispatchMock(
		[]string{"   "},
		func(call int) (*chat.Completion, error) {
			return &chat.Completion{Content: "never reached"}, nil
		},
	)

	orch, err := New(testParams(mock, models.RunConfig{
		Modality:    models.ModalityConversation,
		MaxTurns:    3,
		Repetitions: 1,
	}, models.Scenario{Description: "mute evaluator"}))
	require.NoError(t, err)

	err = orch.AdvanceTurn(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyEvaluatorResponse))
}

func TestConversationAdapterErrorPropagates(t *testing.T) {
	mock := chat.NewMock(func(req *chat.Request, _ int) (*chat.Completion, error) {
		return nil, &chat.Error{Kind: chat.ErrProviderUnavailable, Message: "down"}
	})

	orch, err := New(testParams(mock, models.RunConfig{
		Modality:    models.ModalityConversation,
		MaxTurns:    3,
		Repetitions: 1,
	}, models.Scenario{Description: "outage"}))
	require.NoError(t, err)

	err = orch.AdvanceTurn(context.Background())
	require.Error(t, err)
	assert.Equal(t, chat.ErrProviderUnavailable, chat.KindOf(err))
	assert.False(t, orch.IsTerminal())

	// The partial transcript still seals cleanly.
	sealed := orch.Seal(models.StatusFailed)
	assert.Equal(t, models.StatusFailed, sealed.Status)
	assert.True(t, strings.HasPrefix(sealed.Variation, "v"))
}

func TestNewRejectsUnknownModality(t *testing.T) {
	_, err := New(testParams(chat.TextMock("x"), models.RunConfig{
		Modality: "telepathy",
		MaxTurns: 1,
	}, models.Scenario{Description: "x"}))
	require.Error(t, err)
}
