package foreshadow

import (
	"context"
	"fmt"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/story"
)

// RevealRequest is one reveal in a Batch.
type RevealRequest struct {
	Element  string
	Override bool
}

// Batch is the foreshadowing reported for one unit. It is applied as plants,
// then echoes, then reveals; echoes and reveals happen in Unit.
type Batch struct {
	Unit    story.UnitID
	Plants  []PlantRequest // plant unit defaults to Unit
	Echoes  []string
	Reveals []RevealRequest
}

// CheckBatch reports, without changing anything, whether b would apply
// cleanly. Elements planted by b may be echoed and revealed by it, and the
// edges b would add count towards cycle detection.
func (r *Registry) CheckBatch(ctx context.Context, b Batch) error {
	v := r.view()
	for _, p := range b.Plants {
		if p.PlantUnit == "" {
			p.PlantUnit = b.Unit
		}
		if err := v.plant(ctx, p); err != nil {
			return err
		}
	}
	for _, id := range b.Echoes {
		if err := v.echo(ctx, id, b.Unit); err != nil {
			return err
		}
	}
	for _, rv := range b.Reveals {
		if err := v.reveal(ctx, rv.Element, b.Unit, rv.Override); err != nil {
			return err
		}
	}
	return nil
}

// batchView plays changes against copies of the registry's elements and a
// list of edges not yet added.
type batchView struct {
	r       *Registry
	shadow  map[string]*Element
	pending []dependency.Link
}

func (r *Registry) view() *batchView {
	return &batchView{r: r, shadow: make(map[string]*Element)}
}

func (v *batchView) get(id string) (*Element, error) {
	if e, ok := v.shadow[id]; ok {
		return e, nil
	}
	e, err := v.r.get(id)
	if err != nil {
		return nil, err
	}
	cp := e.clone()
	v.shadow[id] = &cp
	return &cp, nil
}

func (v *batchView) link(ctx context.Context, source, target story.UnitID) error {
	cyc, err := v.r.deps.WouldCycleWith(ctx, source, target, v.pending)
	if err != nil {
		return err
	}
	if cyc {
		return &apperr.CycleError{Source: source, Target: target}
	}
	v.pending = append(v.pending, dependency.Link{Source: source, Target: target})
	return nil
}

func (v *batchView) hasLink(source, target story.UnitID) bool {
	if v.r.deps.HasDependency(source, target, dependency.KindForeshadowing) {
		return true
	}
	for _, l := range v.pending {
		if l.Source == source && l.Target == target {
			return true
		}
	}
	return false
}

func (v *batchView) plant(ctx context.Context, req PlantRequest) error {
	if err := v.r.checkPlant(&req); err != nil {
		return err
	}
	if req.ID != "" {
		_, stored := v.r.elements[req.ID]
		_, planted := v.shadow[req.ID]
		if stored || planted {
			return fmt.Errorf("%w: foreshadow element %s already exists", apperr.ErrConflict, req.ID)
		}
	}
	if req.RevealUnit != "" {
		if err := v.link(ctx, req.PlantUnit, req.RevealUnit); err != nil {
			return fmt.Errorf("foreshadow: plant %s: %w", req.ID, err)
		}
	}
	if req.ID != "" {
		v.shadow[req.ID] = &Element{
			ID:         req.ID,
			PlantUnit:  req.PlantUnit,
			RevealUnit: req.RevealUnit,
			Status:     StatusSetup,
		}
	}
	return nil
}

func (v *batchView) echo(ctx context.Context, id string, unit story.UnitID) error {
	e, err := v.get(id)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return &apperr.TransitionError{Element: id, From: string(e.Status), To: string(StatusActive)}
	}
	if _, ok := v.r.deps.Unit(unit); !ok {
		return apperr.NotFound("unit", unit)
	}
	if unit != e.PlantUnit && !v.hasLink(e.PlantUnit, unit) {
		if err := v.link(ctx, e.PlantUnit, unit); err != nil {
			return fmt.Errorf("foreshadow: echo %s: %w", id, err)
		}
	}
	if e.Status == StatusSetup {
		e.Status = StatusActive
	}
	return nil
}

func (v *batchView) reveal(ctx context.Context, id string, unit story.UnitID, override bool) error {
	e, err := v.get(id)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return &apperr.TransitionError{Element: id, From: string(e.Status), To: string(StatusResolved)}
	}
	if _, ok := v.r.deps.Unit(unit); !ok {
		return apperr.NotFound("unit", unit)
	}
	if unit != e.RevealUnit && !override {
		return &apperr.PrematureRevealError{Element: id, Planned: e.RevealUnit, Got: unit}
	}
	if v.r.needsRevealEdge(e, unit) {
		if err := v.link(ctx, e.PlantUnit, unit); err != nil {
			return fmt.Errorf("foreshadow: reveal %s: %w", id, err)
		}
	}
	if e.RevealUnit == "" {
		e.RevealUnit = unit
	}
	e.Status = StatusResolved
	return nil
}
