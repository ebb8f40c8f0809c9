package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/engine"
	"github.com/dusk-indust/narrative/internal/foreshadow"
)

const wellFormed = `{
  "unit": "ch3",
  "characters": ["Li"],
  "entities": [{"name": "Li", "location": "tower", "knowledge": ["fact_7"]}],
  "knowledgeReveals": [{"entity": "Li", "fact": "fact_9"}],
  "plants": [{"id": "F1", "description": "the locket", "revealUnit": "ch9", "importance": "major", "visibility": 0.3}],
  "echoes": ["F0"],
  "reveals": [{"element": "F2", "note": "at last", "override": true}],
  "resolvedEdges": [4]
}`

func TestDecode_WellFormed(t *testing.T) {
	r, err := Decode([]byte(wellFormed))
	require.NoError(t, err)
	assert.Equal(t, "ch3", r.Unit)
	require.Len(t, r.Plants, 1)
	assert.Equal(t, 0.3, r.Plants[0].Visibility)
}

func TestDecode_RepairsCollaboratorOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"double encoded", `"{\"unit\": \"ch3\", \"echoes\": [\"F0\"]}"`},
		{"trailing comma", `{"unit": "ch3", "echoes": ["F0",],}`},
		{"single quotes", `{'unit': 'ch3', 'echoes': ['F0']}`},
		{"unquoted keys", `{unit: "ch3", echoes: ["F0"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, "ch3", r.Unit)
			assert.Equal(t, []string{"F0"}, r.Echoes)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing unit", `{"characters": ["Li"]}`},
		{"entity without name", `{"unit": "u", "entities": [{"location": "x"}]}`},
		{"plant without description", `{"unit": "u", "plants": [{"revealUnit": "v"}]}`},
		{"visibility out of range", `{"unit": "u", "plants": [{"description": "d", "visibility": 3}]}`},
		{"unknown importance", `{"unit": "u", "plants": [{"description": "d", "importance": "epic"}]}`},
		{"reveal without element", `{"unit": "u", "reveals": [{"note": "n"}]}`},
		{"blank echo", `{"unit": "u", "echoes": [""]}`},
		{"zero edge id", `{"unit": "u", "resolvedEdges": [0]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}
}

func TestToEngine(t *testing.T) {
	r, err := Decode([]byte(wellFormed))
	require.NoError(t, err)

	got := r.ToEngine()
	assert.Equal(t, engine.Report{
		Scene: continuity.SceneState{
			Unit:             "ch3",
			Characters:       []string{"Li"},
			EntityDeltas:     map[string]continuity.EntityState{"Li": {Location: "tower", Knowledge: []string{"fact_7"}}},
			KnowledgeReveals: []continuity.KnowledgeReveal{{Entity: "Li", Fact: "fact_9"}},
		},
		Plants: []foreshadow.PlantRequest{{
			ID: "F1", Description: "the locket", PlantUnit: "ch3", RevealUnit: "ch9",
			Importance: foreshadow.ImportanceMajor, Visibility: 0.3,
		}},
		Echoes:   []string{"F0"},
		Reveals:  []engine.RevealReport{{Element: "F2", Note: "at last", Override: true}},
		Resolved: []dependency.EdgeID{4},
	}, got)
}

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, false, doc["additionalProperties"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"unit", "entities", "plants", "echoes", "reveals", "resolvedEdges"} {
		assert.Contains(t, props, key)
	}
	assert.Contains(t, doc["required"], "unit")
}
