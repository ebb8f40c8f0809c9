package foreshadow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/story"
)

// DefaultBrokenChainThreshold is the echo-hit ratio below which a revealed
// element counts as a broken chain.
const DefaultBrokenChainThreshold = 0.7

// idLength is the length of generated element IDs.
const idLength = 10

// PlantRequest is the input to Plant.
type PlantRequest struct {
	ID            string         `json:"id,omitempty"` // generated when empty
	Description   string         `json:"description"`
	PlantUnit     story.UnitID   `json:"plantUnit"`
	RevealUnit    story.UnitID   `json:"revealUnit,omitempty"`
	Importance    Importance     `json:"importance,omitempty"` // defaults to minor
	Visibility    float64        `json:"visibility"`
	PlannedEchoes []story.UnitID `json:"plannedEchoes,omitempty"`
}

// State is the serializable form of a Registry.
type State struct {
	Elements []Element `json:"elements"` // ID order
}

// Registry owns the foreshadow element table. Reveal edges live in the
// dependency manager it was built with. Not safe for concurrent use.
type Registry struct {
	deps      *dependency.Manager
	logger    *slog.Logger
	threshold float64
	elements  map[string]*Element
}

// New returns an empty Registry. A threshold outside (0, 1] falls back to
// DefaultBrokenChainThreshold.
func New(deps *dependency.Manager, threshold float64, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultBrokenChainThreshold
	}
	return &Registry{
		deps:      deps,
		logger:    logger,
		threshold: threshold,
		elements:  make(map[string]*Element),
	}
}

// Plant creates an element in Setup. When a reveal unit is given, a hard
// Foreshadowing edge plant -> reveal is added so the reveal can never be
// ordered before the plant.
func (r *Registry) Plant(ctx context.Context, req PlantRequest) (Element, error) {
	if err := r.checkPlant(&req); err != nil {
		return Element{}, err
	}
	if req.ID == "" {
		id, err := gonanoid.New(idLength)
		if err != nil {
			return Element{}, fmt.Errorf("foreshadow: generate id: %w", err)
		}
		req.ID = "fs-" + id
	}
	if _, ok := r.elements[req.ID]; ok {
		return Element{}, fmt.Errorf("%w: foreshadow element %s already exists", apperr.ErrConflict, req.ID)
	}

	e := &Element{
		ID:            req.ID,
		Description:   req.Description,
		PlantUnit:     req.PlantUnit,
		Visibility:    req.Visibility,
		Importance:    req.Importance,
		Status:        StatusSetup,
		PlannedEchoes: dedupe(req.PlannedEchoes),
		History:       []Transition{{To: StatusSetup, Unit: req.PlantUnit}},
	}
	if req.RevealUnit != "" {
		id, err := r.deps.AddDependency(ctx, revealDependency(e, req.RevealUnit))
		if err != nil {
			return Element{}, fmt.Errorf("foreshadow: plant %s: %w", req.ID, err)
		}
		e.RevealUnit = req.RevealUnit
		e.RevealEdge = id
	}
	r.elements[e.ID] = e
	r.logger.Debug("foreshadow: planted",
		slog.String("element", e.ID),
		slog.String("plant", e.PlantUnit),
		slog.String("reveal", e.RevealUnit))
	return e.clone(), nil
}

func (r *Registry) checkPlant(req *PlantRequest) error {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return apperr.Invalid("foreshadow description is required")
	}
	if req.Importance == "" {
		req.Importance = ImportanceMinor
	}
	if !req.Importance.Valid() {
		return apperr.Invalid("unknown importance %q", req.Importance)
	}
	if err := checkVisibility(req.Visibility); err != nil {
		return err
	}
	units := append([]story.UnitID{req.PlantUnit}, req.PlannedEchoes...)
	if req.RevealUnit != "" {
		units = append(units, req.RevealUnit)
	}
	for _, u := range units {
		if _, ok := r.deps.Unit(u); !ok {
			return apperr.NotFound("unit", u)
		}
	}
	return nil
}

// Activate moves an element from Setup to Active. Activating an Active
// element is a no-op.
func (r *Registry) Activate(id string, unit story.UnitID, note string) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	switch e.Status {
	case StatusActive:
		return nil
	case StatusSetup:
		e.transition(StatusActive, unit, note)
		return nil
	default:
		return &apperr.TransitionError{Element: id, From: string(e.Status), To: string(StatusActive)}
	}
}

// CanEcho reports, without changing anything, whether Echo would succeed.
func (r *Registry) CanEcho(ctx context.Context, id string, unit story.UnitID) error {
	return r.view().echo(ctx, id, unit)
}

// Echo records that unit echoed the element. The first echo moves Setup to
// Active; later echoes only extend the echo set.
func (r *Registry) Echo(ctx context.Context, id string, unit story.UnitID) error {
	if err := r.CanEcho(ctx, id, unit); err != nil {
		return err
	}
	e := r.elements[id]
	if r.needsEchoEdge(e, unit) {
		if _, err := r.deps.AddDependency(ctx, dependency.Dependency{
			Source:      e.PlantUnit,
			Target:      unit,
			Kind:        dependency.KindForeshadowing,
			Strength:    echoStrength,
			Description: "echo: " + e.Description,
		}); err != nil {
			return fmt.Errorf("foreshadow: echo %s: %w", id, err)
		}
	}
	if !e.Echoed(unit) {
		e.EchoUnits = append(e.EchoUnits, unit)
	}
	if e.Status == StatusSetup {
		e.transition(StatusActive, unit, "first echo")
	}
	r.logger.Debug("foreshadow: echoed", slog.String("element", id), slog.String("unit", unit))
	return nil
}

func (r *Registry) needsEchoEdge(e *Element, unit story.UnitID) bool {
	if unit == e.PlantUnit {
		return false
	}
	return !r.deps.HasDependency(e.PlantUnit, unit, dependency.KindForeshadowing)
}

// CanReveal reports, without changing anything, whether Reveal would succeed.
func (r *Registry) CanReveal(ctx context.Context, id string, unit story.UnitID, override bool) error {
	return r.view().reveal(ctx, id, unit, override)
}

// Reveal resolves the element at unit. Revealing anywhere but the planned
// reveal unit requires override; the actual unit is then recorded in
// RevealedIn and linked to the plant by a resolved hard edge.
func (r *Registry) Reveal(ctx context.Context, id string, unit story.UnitID, note string, override bool) error {
	if err := r.CanReveal(ctx, id, unit, override); err != nil {
		return err
	}
	e := r.elements[id]
	if r.needsRevealEdge(e, unit) {
		edge, err := r.deps.AddDependency(ctx, revealDependency(e, unit))
		if err != nil {
			return fmt.Errorf("foreshadow: reveal %s: %w", id, err)
		}
		_ = r.deps.Resolve(edge, "revealed early: "+note)
		if e.RevealUnit == "" {
			e.RevealUnit = unit
			e.RevealEdge = edge
		}
	}
	if e.RevealEdge != 0 {
		_ = r.deps.Resolve(e.RevealEdge, "revealed: "+note)
	}
	if e.RevealUnit == "" {
		// Revealed in its own plant unit with no target on record.
		e.RevealUnit = unit
	}
	e.RevealedIn = unit
	e.Note = note
	e.transition(StatusResolved, unit, note)
	r.logger.Debug("foreshadow: revealed",
		slog.String("element", id),
		slog.String("unit", unit),
		slog.Bool("override", override))
	return nil
}

func (r *Registry) needsRevealEdge(e *Element, unit story.UnitID) bool {
	return unit != e.RevealUnit && unit != e.PlantUnit
}

// Abandon retires an element for good. Its reveal edge is resolved so the
// planned reveal unit no longer waits on it.
func (r *Registry) Abandon(id, reason string) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return &apperr.TransitionError{Element: id, From: string(e.Status), To: string(StatusAbandoned)}
	}
	if e.RevealEdge != 0 {
		_ = r.deps.Resolve(e.RevealEdge, "abandoned: "+reason)
	}
	e.Note = reason
	e.transition(StatusAbandoned, "", reason)
	r.logger.Debug("foreshadow: abandoned", slog.String("element", id), slog.String("reason", reason))
	return nil
}

// AssignReveal gives an orphaned element its reveal target.
func (r *Registry) AssignReveal(ctx context.Context, id string, unit story.UnitID) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return &apperr.TransitionError{Element: id, From: string(e.Status), To: string(e.Status)}
	}
	if e.RevealUnit != "" {
		return fmt.Errorf("%w: element %s already reveals in %s", apperr.ErrConflict, id, e.RevealUnit)
	}
	if _, ok := r.deps.Unit(unit); !ok {
		return apperr.NotFound("unit", unit)
	}
	edge, err := r.deps.AddDependency(ctx, revealDependency(e, unit))
	if err != nil {
		return fmt.Errorf("foreshadow: assign reveal %s: %w", id, err)
	}
	e.RevealUnit = unit
	e.RevealEdge = edge
	return nil
}

// SetVisibility changes how openly an unresolved element may surface.
func (r *Registry) SetVisibility(id string, v float64) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	if err := checkVisibility(v); err != nil {
		return err
	}
	e.Visibility = v
	return nil
}

// Element returns a copy of the element with the given ID.
func (r *Registry) Element(id string) (Element, bool) {
	e, ok := r.elements[id]
	if !ok {
		return Element{}, false
	}
	return e.clone(), true
}

// Elements returns copies of every element ordered by ID.
func (r *Registry) Elements() []Element {
	src := r.sorted()
	out := make([]Element, len(src))
	for i, e := range src {
		out[i] = e.clone()
	}
	return out
}

// Snapshot returns the serializable state of the registry.
func (r *Registry) Snapshot() State {
	return State{Elements: r.Elements()}
}

// Restore replaces the registry's elements. Reveal edges are not recreated:
// the dependency manager restores its own state. Elements violating the
// lifecycle invariants are rejected and leave the registry empty.
func (r *Registry) Restore(st State) error {
	r.elements = make(map[string]*Element, len(st.Elements))
	for _, e := range st.Elements {
		if err := checkRestored(e); err != nil {
			r.elements = make(map[string]*Element)
			return err
		}
		cp := e.clone()
		r.elements[e.ID] = &cp
	}
	return nil
}

func checkRestored(e Element) error {
	if e.ID == "" {
		return apperr.Invalid("restored foreshadow element without id")
	}
	if e.Status == StatusResolved {
		if e.RevealUnit == "" {
			return apperr.Invalid("element %s is resolved without a reveal unit", e.ID)
		}
		prior := false
		for _, t := range e.History {
			if t.To == StatusSetup || t.To == StatusActive {
				prior = true
			}
		}
		if !prior {
			return apperr.Invalid("element %s is resolved without a prior setup", e.ID)
		}
	}
	return nil
}

func (r *Registry) get(id string) (*Element, error) {
	e, ok := r.elements[id]
	if !ok {
		return nil, apperr.NotFound("foreshadow element", id)
	}
	return e, nil
}

func (r *Registry) sorted() []*Element {
	out := make([]*Element, 0, len(r.elements))
	for _, e := range r.elements {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Element) transition(to Status, unit story.UnitID, note string) {
	e.History = append(e.History, Transition{From: e.Status, To: to, Unit: unit, Note: note})
	e.Status = to
}

func revealDependency(e *Element, target story.UnitID) dependency.Dependency {
	return dependency.Dependency{
		Source:      e.PlantUnit,
		Target:      target,
		Kind:        dependency.KindForeshadowing,
		Strength:    e.Importance.strength(),
		Hard:        true,
		Description: "reveal: " + e.Description,
	}
}

func checkVisibility(v float64) error {
	if v < 0 || v > 1 {
		return apperr.Invalid("visibility must be in 0..1, got %g", v)
	}
	return nil
}

func dedupe(units []story.UnitID) []story.UnitID {
	var out []story.UnitID
	for _, u := range units {
		if !containsUnit(out, u) {
			out = append(out, u)
		}
	}
	return out
}
