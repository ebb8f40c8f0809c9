package mcptools

import (
	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
)

// Timestamps cross the tool boundary as RFC 3339 strings.

// RegisterUnitInput is the input for the register_unit tool.
type RegisterUnitInput struct {
	ID       string `json:"id" jsonschema:"unit id (chapter or scene key)"`
	Ordinal  int    `json:"ordinal" jsonschema:"position of the unit in reading order"`
	Title    string `json:"title,omitempty"`
	Time     string `json:"time,omitempty" jsonschema:"story-clock time (RFC 3339)"`
	Location string `json:"location,omitempty" jsonschema:"primary setting of the unit"`
}

// RegisterUnitOutput is the result of the register_unit tool.
type RegisterUnitOutput struct {
	Unit  string `json:"unit"`
	Units int    `json:"units"`
}

// AddDependencyInput is the input for the add_dependency tool.
type AddDependencyInput struct {
	Source      string `json:"source" jsonschema:"unit that must come first"`
	Target      string `json:"target" jsonschema:"unit that depends on source"`
	Kind        string `json:"kind" jsonschema:"foreshadowing, plot, character, world, temporal, thematic or emotional"`
	Strength    int    `json:"strength" jsonschema:"1-10"`
	Hard        bool   `json:"hard,omitempty" jsonschema:"hard dependencies block the target until resolved"`
	Description string `json:"description,omitempty"`
}

// AddDependencyOutput is the result of the add_dependency tool.
type AddDependencyOutput struct {
	EdgeID dependency.EdgeID `json:"edgeId"`
}

// ResolveDependencyInput is the input for the resolve_dependency tool.
type ResolveDependencyInput struct {
	EdgeID dependency.EdgeID `json:"edgeId"`
	Note   string            `json:"note,omitempty"`
}

// ResolveDependencyOutput is the result of the resolve_dependency tool.
type ResolveDependencyOutput struct {
	EdgeID   dependency.EdgeID `json:"edgeId"`
	Resolved bool              `json:"resolved"`
}

// UnitInput names one unit.
type UnitInput struct {
	Unit string `json:"unit"`
}

// ExecutionOrderInput is the input for the execution_order tool.
type ExecutionOrderInput struct {
	Units []string `json:"units,omitempty" jsonschema:"units to order; all registered units when empty"`
}

// ExecutionOrderOutput is the result of the execution_order tool.
type ExecutionOrderOutput struct {
	Order []string `json:"order"`
}

// PlantInput is the input for the plant_foreshadow tool.
type PlantInput struct {
	ID            string   `json:"id,omitempty" jsonschema:"element id; generated when empty"`
	Description   string   `json:"description"`
	PlantUnit     string   `json:"plantUnit"`
	RevealUnit    string   `json:"revealUnit,omitempty" jsonschema:"planned reveal unit; empty for an orphan"`
	Importance    string   `json:"importance,omitempty" jsonschema:"critical, major or minor"`
	Visibility    float64  `json:"visibility" jsonschema:"0 hidden to 1 overt"`
	PlannedEchoes []string `json:"plannedEchoes,omitempty"`
}

// ElementInput names a foreshadow element and the unit acting on it.
type ElementInput struct {
	Element string `json:"element"`
	Unit    string `json:"unit"`
}

// RevealInput is the input for the reveal_foreshadow tool.
type RevealInput struct {
	Element  string `json:"element"`
	Unit     string `json:"unit"`
	Note     string `json:"note,omitempty"`
	Override bool   `json:"override,omitempty" jsonschema:"allow revealing in a unit other than the planned one"`
}

// AbandonInput is the input for the abandon_foreshadow tool.
type AbandonInput struct {
	Element string `json:"element"`
	Reason  string `json:"reason,omitempty"`
}

// AuditInput is the input for the audit_foreshadow tool.
type AuditInput struct{}

// RegisterEntityInput is the input for the register_entity tool.
type RegisterEntityInput struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind,omitempty" jsonschema:"character or object"`
	Aliases     []string `json:"aliases,omitempty"`
	Location    string   `json:"location,omitempty"`
	Possessions []string `json:"possessions,omitempty"`
	Knowledge   []string `json:"knowledge,omitempty"`
	Injuries    []string `json:"injuries,omitempty"`
	Emotion     string   `json:"emotion,omitempty"`
}

// ValidateEntryInput is the input for the validate_entry tool.
type ValidateEntryInput struct {
	Unit        string                      `json:"unit"`
	Location    string                      `json:"location,omitempty"`
	Timestamp   string                      `json:"timestamp,omitempty" jsonschema:"story-clock time at entry (RFC 3339)"`
	Entities    []continuity.DeclaredEntity `json:"entities"`
	Transitions []continuity.Transition     `json:"transitions,omitempty"`
}

// GuardsInput is the input for the get_guards tool.
type GuardsInput struct {
	Unit string   `json:"unit"`
	Cast []string `json:"cast,omitempty" jsonschema:"characters in the unit; the previous unit's cast when empty"`
}

// PredictExitInput is the input for the predict_exit tool.
type PredictExitInput struct {
	Unit        string                  `json:"unit"`
	Transitions []continuity.Transition `json:"transitions"`
}

// CommitSceneInput is the input for the commit_scene tool.
type CommitSceneInput struct {
	Report string `json:"report" jsonschema:"scene report JSON, see the scene report schema"`
}

// Scene is a committed or predicted exit snapshot.
type Scene struct {
	Unit             string                            `json:"unit"`
	Seq              int                               `json:"seq,omitempty"`
	Timestamp        string                            `json:"timestamp,omitempty"`
	Characters       []string                          `json:"characters,omitempty"`
	Objects          []string                          `json:"objects,omitempty"`
	EntityDeltas     map[string]continuity.EntityState `json:"entityDeltas,omitempty"`
	KnowledgeReveals []continuity.KnowledgeReveal      `json:"knowledgeReveals,omitempty"`
	OpenThreads      []string                          `json:"openThreads,omitempty"`
}

// CommitSceneOutput is the result of the commit_scene tool.
type CommitSceneOutput struct {
	Scene        Scene               `json:"scene"`
	Planted      []string            `json:"planted,omitempty"`
	AutoResolved []dependency.EdgeID `json:"autoResolved,omitempty"`
}

func sceneOf(s continuity.SceneState) Scene {
	out := Scene{
		Unit:             s.Unit,
		Seq:              s.Seq,
		Characters:       s.Characters,
		Objects:          s.Objects,
		EntityDeltas:     s.EntityDeltas,
		KnowledgeReveals: s.KnowledgeReveals,
		OpenThreads:      s.OpenThreads,
	}
	if !s.Timestamp.IsZero() {
		out.Timestamp = s.Timestamp.Format(timeLayout)
	}
	return out
}
