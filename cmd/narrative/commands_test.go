package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/persist"
)

// captureStdout redirects command output into a buffer for the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })
	return &buf
}

func projectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("NARRATIVE_STORE_SNAPSHOT_PATH", filepath.Join(dir, "snapshot.json"))
	t.Setenv("NARRATIVE_LOG_LEVEL", "error")
	return dir
}

func TestHistoryCommand(t *testing.T) {
	dir := projectDir(t)
	journalPath := filepath.Join(dir, "history.db")
	t.Setenv("NARRATIVE_STORE_JOURNAL_PATH", journalPath)
	ctx := context.Background()

	j, err := persist.OpenJournal(journalPath)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, continuity.SceneState{Unit: "ch1", Seq: 1, Characters: []string{"Li"}}))
	require.NoError(t, j.Append(ctx, continuity.SceneState{Unit: "ch2", Seq: 2}))
	require.NoError(t, j.Close())

	out := captureStdout(t)
	require.NoError(t, newCommand().Run(ctx, []string{"narrative", "-C", dir, "history"}))

	var scenes []continuity.SceneState
	require.NoError(t, json.Unmarshal(out.Bytes(), &scenes))
	require.Len(t, scenes, 2)
	assert.Equal(t, "ch1", scenes[0].Unit)
	assert.Equal(t, []string{"Li"}, scenes[0].Characters)
	assert.Equal(t, 2, scenes[1].Seq)

	out.Reset()
	require.NoError(t, newCommand().Run(ctx, []string{"narrative", "-C", dir, "history", "--unit", "ch2"}))
	scenes = nil
	require.NoError(t, json.Unmarshal(out.Bytes(), &scenes))
	require.Len(t, scenes, 1)
	assert.Equal(t, "ch2", scenes[0].Unit)
}

func TestHistoryCommand_NoJournal(t *testing.T) {
	dir := projectDir(t)
	captureStdout(t)

	err := newCommand().Run(context.Background(), []string{"narrative", "-C", dir, "history"})
	assert.ErrorContains(t, err, "no history journal configured")
}
