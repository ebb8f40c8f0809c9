package mcptools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/engine"
	"github.com/dusk-indust/narrative/internal/foreshadow"
	"github.com/dusk-indust/narrative/internal/report"
	"github.com/dusk-indust/narrative/internal/story"
)

const timeLayout = time.RFC3339

// Service holds the engine used by MCP tool handlers.
type Service struct {
	eng *engine.Engine
}

// NewService creates a Service over eng.
func NewService(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, apperr.Invalid("%s: %v", field, err)
	}
	return t, nil
}

// RegisterUnit adds a narrative unit.
func (s *Service) RegisterUnit(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RegisterUnitInput,
) (*mcp.CallToolResult, RegisterUnitOutput, error) {
	at, err := parseTime("time", input.Time)
	if err != nil {
		return nil, RegisterUnitOutput{}, err
	}
	u := story.Unit{ID: input.ID, Ordinal: input.Ordinal, Title: input.Title, Time: at, Location: input.Location}
	if err := s.eng.RegisterUnit(ctx, u); err != nil {
		return nil, RegisterUnitOutput{}, err
	}
	return nil, RegisterUnitOutput{Unit: u.ID, Units: len(s.eng.Units())}, nil
}

// AddDependency records a typed edge between two units.
func (s *Service) AddDependency(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AddDependencyInput,
) (*mcp.CallToolResult, AddDependencyOutput, error) {
	id, err := s.eng.AddDependency(ctx, dependency.Dependency{
		Source:      input.Source,
		Target:      input.Target,
		Kind:        dependency.Kind(input.Kind),
		Strength:    input.Strength,
		Hard:        input.Hard,
		Description: input.Description,
	})
	if err != nil {
		return nil, AddDependencyOutput{}, err
	}
	return nil, AddDependencyOutput{EdgeID: id}, nil
}

// ResolveDependency marks an edge as satisfied.
func (s *Service) ResolveDependency(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ResolveDependencyInput,
) (*mcp.CallToolResult, ResolveDependencyOutput, error) {
	if err := s.eng.ResolveDependency(input.EdgeID, input.Note); err != nil {
		return nil, ResolveDependencyOutput{}, err
	}
	return nil, ResolveDependencyOutput{EdgeID: input.EdgeID, Resolved: true}, nil
}

// CheckReady reports whether a unit can be generated now.
func (s *Service) CheckReady(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input UnitInput,
) (*mcp.CallToolResult, dependency.Readiness, error) {
	r, err := s.eng.ValidateReady(input.Unit)
	return nil, r, err
}

// ExecutionOrder returns a generation order honoring every dependency.
func (s *Service) ExecutionOrder(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExecutionOrderInput,
) (*mcp.CallToolResult, ExecutionOrderOutput, error) {
	order, err := s.eng.ExecutionOrder(ctx, input.Units)
	if err != nil {
		return nil, ExecutionOrderOutput{}, err
	}
	return nil, ExecutionOrderOutput{Order: order}, nil
}

// PlantForeshadow registers a new foreshadow element.
func (s *Service) PlantForeshadow(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PlantInput,
) (*mcp.CallToolResult, foreshadow.Element, error) {
	el, err := s.eng.Plant(ctx, foreshadow.PlantRequest{
		ID:            input.ID,
		Description:   input.Description,
		PlantUnit:     input.PlantUnit,
		RevealUnit:    input.RevealUnit,
		Importance:    foreshadow.Importance(input.Importance),
		Visibility:    input.Visibility,
		PlannedEchoes: input.PlannedEchoes,
	})
	return nil, el, err
}

// EchoForeshadow records a reinforcement of an element in a unit.
func (s *Service) EchoForeshadow(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ElementInput,
) (*mcp.CallToolResult, foreshadow.Element, error) {
	if err := s.eng.Echo(ctx, input.Element, input.Unit); err != nil {
		return nil, foreshadow.Element{}, err
	}
	return s.element(input.Element)
}

// RevealForeshadow pays off an element.
func (s *Service) RevealForeshadow(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RevealInput,
) (*mcp.CallToolResult, foreshadow.Element, error) {
	if err := s.eng.Reveal(ctx, input.Element, input.Unit, input.Note, input.Override); err != nil {
		return nil, foreshadow.Element{}, err
	}
	return s.element(input.Element)
}

// AbandonForeshadow drops an element without a payoff.
func (s *Service) AbandonForeshadow(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input AbandonInput,
) (*mcp.CallToolResult, foreshadow.Element, error) {
	if err := s.eng.Abandon(input.Element, input.Reason); err != nil {
		return nil, foreshadow.Element{}, err
	}
	return s.element(input.Element)
}

func (s *Service) element(id string) (*mcp.CallToolResult, foreshadow.Element, error) {
	el, ok := s.eng.Element(id)
	if !ok {
		return nil, foreshadow.Element{}, apperr.NotFound("foreshadow element", id)
	}
	return nil, el, nil
}

// AuditForeshadow checks every chain against the current story position.
func (s *Service) AuditForeshadow(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ AuditInput,
) (*mcp.CallToolResult, foreshadow.IntegrityReport, error) {
	return nil, s.eng.Audit(), nil
}

// RegisterEntity seeds a character or object with its initial state.
func (s *Service) RegisterEntity(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input RegisterEntityInput,
) (*mcp.CallToolResult, continuity.Entity, error) {
	kind := continuity.Kind(input.Kind)
	if kind == "" {
		kind = continuity.KindCharacter
	}
	ent := continuity.Entity{
		Name:    input.Name,
		Kind:    kind,
		Aliases: input.Aliases,
		State: continuity.EntityState{
			Location:    input.Location,
			Possessions: input.Possessions,
			Knowledge:   input.Knowledge,
			Injuries:    input.Injuries,
			Emotion:     input.Emotion,
		},
	}
	if err := s.eng.RegisterEntity(ent); err != nil {
		return nil, continuity.Entity{}, err
	}
	got, _ := s.eng.Entity(input.Name)
	return nil, got, nil
}

// ValidateEntry checks a unit's declared entry state. A knowledge leak is
// reported in the result (valid=false), not as a tool error.
func (s *Service) ValidateEntry(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ValidateEntryInput,
) (*mcp.CallToolResult, continuity.ValidationResult, error) {
	at, err := parseTime("timestamp", input.Timestamp)
	if err != nil {
		return nil, continuity.ValidationResult{}, err
	}
	res, err := s.eng.ValidateEntry(continuity.Declaration{
		Unit:        input.Unit,
		Location:    input.Location,
		Timestamp:   at,
		Entities:    input.Entities,
		Transitions: input.Transitions,
	})
	var leak *apperr.KnowledgeLeakError
	if errors.As(err, &leak) {
		return nil, res, nil
	}
	return nil, res, err
}

// GetGuards returns the continuity and foreshadowing guards for a unit.
func (s *Service) GetGuards(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GuardsInput,
) (*mcp.CallToolResult, continuity.GuardSet, error) {
	g, err := s.eng.GuardsFor(input.Unit, input.Cast)
	return nil, g, err
}

// PrepareUnit returns readiness and guards in one call.
func (s *Service) PrepareUnit(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GuardsInput,
) (*mcp.CallToolResult, engine.Brief, error) {
	b, err := s.eng.Prepare(input.Unit, input.Cast)
	return nil, b, err
}

// PredictExit applies declared transitions to the last-known state.
func (s *Service) PredictExit(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input PredictExitInput,
) (*mcp.CallToolResult, Scene, error) {
	scene, err := s.eng.PredictExit(input.Unit, input.Transitions)
	if err != nil {
		return nil, Scene{}, err
	}
	return nil, sceneOf(scene), nil
}

// CommitScene ingests a scene report. Slightly malformed JSON is repaired.
func (s *Service) CommitScene(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CommitSceneInput,
) (*mcp.CallToolResult, CommitSceneOutput, error) {
	if input.Report == "" {
		return nil, CommitSceneOutput{}, fmt.Errorf("%w: report is required", apperr.ErrInvalidArgument)
	}
	res, err := report.Apply(ctx, s.eng, []byte(input.Report))
	if err != nil {
		return nil, CommitSceneOutput{}, err
	}
	return nil, CommitSceneOutput{
		Scene:        sceneOf(res.Scene),
		Planted:      res.Planted,
		AutoResolved: res.AutoResolved,
	}, nil
}
