package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/engine"
	"github.com/dusk-indust/narrative/internal/foreshadow"
	"github.com/dusk-indust/narrative/internal/graph"
	"github.com/dusk-indust/narrative/internal/story"
)

func fixture(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	e := engine.New(graph.NewMemStore(), engine.DefaultOptions(), nil)
	t.Cleanup(e.Close)
	titles := []string{"The \"Harbor\"", "", "Storm"}
	for i, title := range titles {
		require.NoError(t, e.RegisterUnit(ctx, story.Unit{ID: fmt.Sprintf("ch%d", i+1), Ordinal: i + 1, Title: title}))
	}
	_, err := e.AddDependency(ctx, dependency.Dependency{Source: "ch2", Target: "ch3", Kind: dependency.KindPlot, Strength: 6})
	require.NoError(t, err)
	_, err = e.Ingest(ctx, engine.Report{
		Scene:  continuity.SceneState{Unit: "ch1", OpenThreads: []string{"the letter"}},
		Plants: []foreshadow.PlantRequest{{ID: "F1", Description: "a torn sail", RevealUnit: "ch3"}},
	})
	require.NoError(t, err)
	return e
}

func TestGenerateMermaid(t *testing.T) {
	out := GenerateMermaid(fixture(t).Snapshot())

	assert.True(t, strings.HasPrefix(out, "graph LR\n"))
	assert.Contains(t, out, `U0["ch1: The #quot;Harbor#quot;"]:::committed`)
	assert.Contains(t, out, `U1["ch2"]`+"\n")
	assert.Contains(t, out, "U1 -.->|plot 6| U2")
	assert.Contains(t, out, "U0 ==>|foreshadowing", "the reveal edge is hard")
	assert.Contains(t, out, "linkStyle", "committing ch1 resolved the reveal edge")
}

func TestGenerateMermaid_Empty(t *testing.T) {
	out := GenerateMermaid(engine.Snapshot{})
	assert.NotContains(t, out, "-->")
	assert.NotContains(t, out, "linkStyle")
}

func TestExportStory(t *testing.T) {
	e := fixture(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	exp := ExportStory(e, now)

	assert.Equal(t, "2025-01-02T03:04:05Z", exp.ExportedAt)
	require.Len(t, exp.Units, 3)
	assert.True(t, exp.Units[0].Committed)
	assert.Equal(t, 1, exp.Units[0].Seq)
	assert.Equal(t, []string{"the letter"}, exp.Units[0].OpenThreads)
	assert.False(t, exp.Units[2].Committed)
	assert.Len(t, exp.Edges, 2)
	require.Len(t, exp.Foreshadow, 1)
	assert.Equal(t, 1, exp.Audit.Total)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, exp))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "audit")
}
