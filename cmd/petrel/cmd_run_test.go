package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrel-evals/petrel/internal/models"
)

func writeTestSpec(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "spec.yaml")
	content := `name: smoke-run
behavior: the target agrees with everything
config:
  modality: conversation
  max_turns: 1
  repetitions: 1
evaluator:
  role: evaluator
  model: eval-model
target:
  role: target
  model: target-model
scenarios:
  - description: a short exchange
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCommandWithMockClient(t *testing.T) {
	dir := t.TempDir()
	specPath := writeTestSpec(t, dir)
	transcripts := filepath.Join(dir, "transcripts")
	summaryPath := filepath.Join(dir, "summary.json")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"run", specPath,
		"--mock",
		"--transcript-dir", transcripts,
		"--output", summaryPath,
	})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Running 1 rollouts")
	assert.Contains(t, out.String(), "1 succeeded")

	entries, err := os.ReadDir(transcripts)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 1, summary.Launched)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, models.StatusSuccess, summary.Outcomes[0].Status)
}

func TestRenderCommandPrintsView(t *testing.T) {
	dir := t.TempDir()
	specPath := writeTestSpec(t, dir)
	transcripts := filepath.Join(dir, "transcripts")

	runCmd := newRootCommand()
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetArgs([]string{"run", specPath, "--mock", "--transcript-dir", transcripts})
	require.NoError(t, runCmd.Execute())

	entries, err := os.ReadDir(transcripts)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	transcriptPath := filepath.Join(transcripts, entries[0].Name())

	var out bytes.Buffer
	renderCmd := newRootCommand()
	renderCmd.SetOut(&out)
	renderCmd.SetArgs([]string{"render", transcriptPath, "--view", "target"})
	require.NoError(t, renderCmd.Execute())

	assert.Contains(t, out.String(), "smoke-run")
	assert.Contains(t, out.String(), "SYSTEM")

	badCmd := newRootCommand()
	badCmd.SetOut(&bytes.Buffer{})
	badCmd.SetErr(&bytes.Buffer{})
	badCmd.SetArgs([]string{"render", transcriptPath, "--view", "omniscient"})
	require.Error(t, badCmd.Execute())
}

func TestRunCommandRejectsBadSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: broken\n"), 0o644))

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", path, "--mock"})
	require.Error(t, cmd.Execute())
}
