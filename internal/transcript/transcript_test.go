package transcript

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrel-evals/petrel/internal/models"
)

func sealedTranscript(t *testing.T) *Transcript {
	t.Helper()
	rec := NewRecorder(testMeta())

	_, err := rec.AddMessage(models.ParticipantEvaluator,
		models.Message{Role: models.RoleSystem, Content: "target system prompt"},
		Views(ViewTarget, ViewCombined))
	require.NoError(t, err)
	require.NoError(t, rec.SetTargetSystemPrompt("target system prompt"))
	_, err = rec.AddMessage(models.ParticipantEvaluator,
		models.Message{Role: models.RoleUser, Content: "hello"}, AllViews())
	require.NoError(t, err)
	_, err = rec.AddMessage(models.ParticipantTarget,
		models.Message{Role: models.RoleAssistant, Content: "hi there"}, AllViews())
	require.NoError(t, err)

	return rec.Seal(models.StatusSuccess)
}

func TestWriteLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	sealed := sealedTranscript(t)

	path, err := Write(dir, sealed, false)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json"))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, sealed.ID, loaded.ID)
	assert.Equal(t, sealed.Status, loaded.Status)
	assert.Equal(t, "target system prompt", loaded.TargetSystemPrompt)
	require.Len(t, loaded.Events, len(sealed.Events))
	for i, ev := range loaded.Events {
		assert.Equal(t, sealed.Events[i].Seq, ev.Seq)
		assert.Equal(t, sealed.Events[i].Message.Content, ev.Message.Content)
		assert.Equal(t, sealed.Events[i].Views, ev.Views)
	}

	// Views survive the roundtrip as projections.
	assert.Equal(t, sealed.Render(ViewTarget), loaded.Render(ViewTarget))
}

func TestTranscriptCarriesTargetSystemPrompt(t *testing.T) {
	sealed := sealedTranscript(t)
	assert.Equal(t, "target system prompt", sealed.TargetSystemPrompt)

	// The prompt is a top-level field of the persisted document, not just
	// an entry buried in the event log.
	data, err := json.Marshal(sealed)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"target_system_prompt":"target system prompt"`)
}

func TestSetTargetSystemPromptAfterSeal(t *testing.T) {
	rec := NewRecorder(testMeta())
	rec.Seal(models.StatusSuccess)
	require.ErrorIs(t, rec.SetTargetSystemPrompt("late"), ErrSealed)
}

func TestWriteLoadGzip(t *testing.T) {
	dir := t.TempDir()
	sealed := sealedTranscript(t)

	path, err := Write(dir, sealed, true)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json.gz"))

	// The raw bytes must not be plain JSON.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, json.Valid(raw))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sealed.ID, loaded.ID)
	assert.Len(t, loaded.Events, len(sealed.Events))
}

func TestLoadRejectsUnknownSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	sealed := sealedTranscript(t)
	sealed.SchemaVersion = SchemaVersion + 1

	path, err := Write(dir, sealed, false)
	require.NoError(t, err)

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version")
}

func TestFilenameSanitizes(t *testing.T) {
	sealed := sealedTranscript(t)
	name := Filename("My Run!", "v 1", 3, sealed.StartedAt)

	assert.False(t, strings.ContainsAny(name, " !"))
	assert.True(t, strings.HasPrefix(name, "my-run-v-1-r3-"))
	assert.True(t, strings.HasSuffix(name, ".json"))

	assert.True(t, strings.HasPrefix(Filename("", "", 0, sealed.StartedAt), "unnamed-unnamed-r0-"))
}
