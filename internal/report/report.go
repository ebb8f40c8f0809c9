// Package report defines the scene report the generation collaborator sends
// back after writing a unit, and converts it into an engine report.
package report

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/engine"
	"github.com/dusk-indust/narrative/internal/foreshadow"
)

// SceneReport is the structured summary of one generated unit.
type SceneReport struct {
	Unit             string         `json:"unit" jsonschema:"description=ID of the unit that was written"`
	Timestamp        *time.Time     `json:"timestamp,omitempty" jsonschema:"description=Story-clock time at the end of the unit"`
	Characters       []string       `json:"characters,omitempty" jsonschema:"description=Characters present in the unit"`
	Objects          []string       `json:"objects,omitempty" jsonschema:"description=Objects present in the unit"`
	Entities         []EntityReport `json:"entities,omitempty" jsonschema:"description=Full exit state of every entity whose attributes changed"`
	KnowledgeReveals []FactReport   `json:"knowledgeReveals,omitempty" jsonschema:"description=Facts an entity learned during the unit"`
	OpenThreads      []string       `json:"openThreads,omitempty" jsonschema:"description=Unresolved issues the next unit must pick up"`
	Plants           []PlantReport  `json:"plants,omitempty" jsonschema:"description=Foreshadowing planted in this unit"`
	Echoes           []string       `json:"echoes,omitempty" jsonschema:"description=IDs of foreshadow elements echoed in this unit"`
	Reveals          []RevealReport `json:"reveals,omitempty" jsonschema:"description=Foreshadow elements revealed in this unit"`
	ResolvedEdges    []int64        `json:"resolvedEdges,omitempty" jsonschema:"description=Dependency edge IDs this unit satisfied"`
}

// EntityReport is the declared exit state of one entity.
type EntityReport struct {
	Name        string   `json:"name"`
	Location    string   `json:"location,omitempty"`
	Possessions []string `json:"possessions,omitempty"`
	Knowledge   []string `json:"knowledge,omitempty"`
	Injuries    []string `json:"injuries,omitempty"`
	Emotion     string   `json:"emotion,omitempty"`
}

// FactReport is a fact learned by an entity.
type FactReport struct {
	Entity string `json:"entity"`
	Fact   string `json:"fact"`
}

// PlantReport is a new foreshadow element.
type PlantReport struct {
	ID            string   `json:"id,omitempty"`
	Description   string   `json:"description"`
	RevealUnit    string   `json:"revealUnit,omitempty"`
	Importance    string   `json:"importance,omitempty" jsonschema:"enum=critical,enum=major,enum=minor"`
	Visibility    float64  `json:"visibility" jsonschema:"minimum=0,maximum=1"`
	PlannedEchoes []string `json:"plannedEchoes,omitempty"`
}

// RevealReport is a reveal made in the unit.
type RevealReport struct {
	Element  string `json:"element"`
	Note     string `json:"note,omitempty"`
	Override bool   `json:"override,omitempty" jsonschema:"description=Set when revealing earlier or later than planned"`
}

// Validate checks the report's shape. State-dependent checks happen in the engine.
func (r *SceneReport) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Unit, validation.Required),
		validation.Field(&r.Entities),
		validation.Field(&r.KnowledgeReveals),
		validation.Field(&r.Plants),
		validation.Field(&r.Reveals),
		validation.Field(&r.Echoes, validation.Each(validation.Required)),
		validation.Field(&r.ResolvedEdges, validation.Each(validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("%w: scene report: %v", apperr.ErrInvalidArgument, err)
	}
	return nil
}

// Validate checks an entity report.
func (e EntityReport) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required),
	)
}

// Validate checks a fact report.
func (f FactReport) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Entity, validation.Required),
		validation.Field(&f.Fact, validation.Required),
	)
}

// Validate checks a plant report.
func (p PlantReport) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Description, validation.Required),
		validation.Field(&p.Importance, validation.In(
			string(foreshadow.ImportanceCritical),
			string(foreshadow.ImportanceMajor),
			string(foreshadow.ImportanceMinor),
		)),
		validation.Field(&p.Visibility, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Validate checks a reveal report.
func (r RevealReport) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Element, validation.Required),
	)
}

// ToEngine converts the wire report into an engine report.
func (r *SceneReport) ToEngine() engine.Report {
	scene := continuity.SceneState{
		Unit:        r.Unit,
		Characters:  r.Characters,
		Objects:     r.Objects,
		OpenThreads: r.OpenThreads,
	}
	if r.Timestamp != nil {
		scene.Timestamp = *r.Timestamp
	}
	for _, e := range r.Entities {
		if scene.EntityDeltas == nil {
			scene.EntityDeltas = make(map[string]continuity.EntityState, len(r.Entities))
		}
		scene.EntityDeltas[e.Name] = continuity.EntityState{
			Location:    e.Location,
			Possessions: e.Possessions,
			Knowledge:   e.Knowledge,
			Injuries:    e.Injuries,
			Emotion:     e.Emotion,
		}
	}
	for _, f := range r.KnowledgeReveals {
		scene.KnowledgeReveals = append(scene.KnowledgeReveals, continuity.KnowledgeReveal{Entity: f.Entity, Fact: f.Fact})
	}

	out := engine.Report{Scene: scene, Echoes: r.Echoes}
	for _, p := range r.Plants {
		out.Plants = append(out.Plants, foreshadow.PlantRequest{
			ID:            p.ID,
			Description:   p.Description,
			PlantUnit:     r.Unit,
			RevealUnit:    p.RevealUnit,
			Importance:    foreshadow.Importance(p.Importance),
			Visibility:    p.Visibility,
			PlannedEchoes: p.PlannedEchoes,
		})
	}
	for _, rv := range r.Reveals {
		out.Reveals = append(out.Reveals, engine.RevealReport{Element: rv.Element, Note: rv.Note, Override: rv.Override})
	}
	for _, id := range r.ResolvedEdges {
		out.Resolved = append(out.Resolved, dependency.EdgeID(id))
	}
	return out
}
