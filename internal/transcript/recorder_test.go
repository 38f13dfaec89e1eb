package transcript

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrel-evals/petrel/internal/models"
)

func testMeta() Meta {
	return Meta{
		SpecName:   "smoke",
		Variation:  "v0",
		Repetition: 0,
		Modality:   models.ModalityConversation,
		Evaluator:  models.RoleBinding{Role: models.ParticipantEvaluator, ModelID: "eval-model"},
		Target:     models.RoleBinding{Role: models.ParticipantTarget, ModelID: "target-model"},
	}
}

func TestRecorderAssignsMonotonicSeq(t *testing.T) {
	rec := NewRecorder(testMeta())

	for i := 0; i < 5; i++ {
		ev, err := rec.AddMessage(models.ParticipantTarget,
			models.Message{Role: models.RoleAssistant, Content: fmt.Sprintf("m%d", i)},
			AllViews())
		require.NoError(t, err)
		assert.Equal(t, i, ev.Seq)
	}

	events := rec.Events()
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, i, ev.Seq)
	}
}

func TestRecorderRenderFiltersByView(t *testing.T) {
	rec := NewRecorder(testMeta())

	_, err := rec.AddMessage(models.ParticipantEvaluator,
		models.Message{Role: models.RoleSystem, Content: "evaluator instructions"},
		Views(ViewEvaluator, ViewCombined))
	require.NoError(t, err)

	_, err = rec.AddMessage(models.ParticipantEvaluator,
		models.Message{Role: models.RoleSystem, Content: "target system prompt"},
		Views(ViewTarget, ViewCombined))
	require.NoError(t, err)

	_, err = rec.AddMessage(models.ParticipantEvaluator,
		models.Message{Role: models.RoleUser, Content: "hello"},
		AllViews())
	require.NoError(t, err)

	evalView := rec.Render(ViewEvaluator)
	require.Len(t, evalView, 2)
	assert.Equal(t, "evaluator instructions", evalView[0].Content)
	assert.Equal(t, "hello", evalView[1].Content)

	targetView := rec.Render(ViewTarget)
	require.Len(t, targetView, 2)
	assert.Equal(t, "target system prompt", targetView[0].Content)

	combined := rec.Render(ViewCombined)
	assert.Len(t, combined, 3)
}

// The combined order must be a valid merge of each narrower view's order.
func TestCombinedViewIsValidMerge(t *testing.T) {
	rec := NewRecorder(testMeta())

	views := []ViewSet{
		Views(ViewEvaluator, ViewCombined),
		Views(ViewTarget, ViewCombined),
		AllViews(),
		Views(ViewTarget, ViewCombined),
		Views(ViewEvaluator, ViewCombined),
		AllViews(),
	}
	for i, vs := range views {
		_, err := rec.AddMessage(models.ParticipantTarget,
			models.Message{Role: models.RoleAssistant, Content: fmt.Sprintf("m%d", i)},
			vs)
		require.NoError(t, err)
	}

	combined := rec.Render(ViewCombined)
	for _, narrow := range []View{ViewEvaluator, ViewTarget} {
		restricted := make([]string, 0)
		for _, ev := range rec.Events() {
			if ev.Views.Has(narrow) {
				restricted = append(restricted, ev.Message.Content)
			}
		}

		// Walk the combined order and check the narrow view's messages
		// appear in the same relative order.
		i := 0
		for _, msg := range combined {
			if i < len(restricted) && msg.Content == restricted[i] {
				i++
			}
		}
		assert.Equal(t, len(restricted), i, "view %s order contradicted by combined order", narrow)
	}
}

func TestSealIsIdempotent(t *testing.T) {
	rec := NewRecorder(testMeta())

	_, err := rec.AddMessage(models.ParticipantTarget,
		models.Message{Role: models.RoleAssistant, Content: "hi"}, AllViews())
	require.NoError(t, err)

	first := rec.Seal(models.StatusSuccess)
	require.NotNil(t, first)
	assert.Equal(t, models.StatusSuccess, first.Status)
	assert.Equal(t, SchemaVersion, first.SchemaVersion)
	assert.Len(t, first.Events, 1)

	// A second seal returns the same transcript regardless of status.
	second := rec.Seal(models.StatusFailed)
	assert.Same(t, first, second)
	assert.Equal(t, models.StatusSuccess, second.Status)
}

func TestRecordAfterSealFails(t *testing.T) {
	rec := NewRecorder(testMeta())
	rec.Seal(models.StatusPartial)

	_, err := rec.AddMessage(models.ParticipantTarget,
		models.Message{Role: models.RoleAssistant, Content: "late"}, AllViews())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSealed))
	assert.Equal(t, 0, rec.Len())
}
