// Package engine composes the dependency manager, foreshadow registry and
// continuity store behind a single-writer, multi-reader lock.
//
// Every mutating call takes the write lock and either applies completely or
// leaves all state untouched. Queries take the read lock and always observe a
// fully applied state. No I/O happens under the lock: persistence subscribes
// to the engine's events and reads snapshots afterwards.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/foreshadow"
	"github.com/dusk-indust/narrative/internal/graph"
	"github.com/dusk-indust/narrative/internal/story"
)

// Options holds the engine tunables.
type Options struct {
	// BrokenChainThreshold is the echo-hit ratio below which a revealed
	// element is reported as a broken chain.
	BrokenChainThreshold float64

	// VariantMatchThreshold is the minimum fuzzy confidence for a declared
	// name to resolve to a known entity.
	VariantMatchThreshold float64

	// AutoResolveOnCommit resolves every outgoing edge of a unit when its
	// exit state is committed.
	AutoResolveOnCommit bool
}

// DefaultOptions returns the stock tunables.
func DefaultOptions() Options {
	return Options{
		BrokenChainThreshold:  foreshadow.DefaultBrokenChainThreshold,
		VariantMatchThreshold: continuity.DefaultVariantThreshold,
		AutoResolveOnCommit:   true,
	}
}

// Engine is the narrative consistency and dependency engine.
type Engine struct {
	mu         sync.RWMutex
	opts       Options
	logger     *slog.Logger
	events     *Notifier
	deps       *dependency.Manager
	foreshadow *foreshadow.Registry
	continuity *continuity.Store
}

// New builds an Engine over an initialized graph store. A nil logger
// discards output.
func New(store graph.Store, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	deps := dependency.New(store, logger)
	return &Engine{
		opts:       opts,
		logger:     logger,
		events:     NewNotifier(),
		deps:       deps,
		foreshadow: foreshadow.New(deps, opts.BrokenChainThreshold, logger),
		continuity: continuity.New(deps, opts.VariantMatchThreshold, logger),
	}
}

// Events returns the channel of applied mutations.
func (e *Engine) Events() <-chan Event {
	return e.events.Subscribe()
}

// Close stops event delivery.
func (e *Engine) Close() {
	e.events.Close()
}

func (e *Engine) emit(op Op, subject string, seq int) {
	e.events.Emit(Event{Op: op, Subject: subject, Seq: seq})
}

// --- units and dependencies ---

// RegisterUnit adds a narrative unit.
func (e *Engine) RegisterUnit(ctx context.Context, u story.Unit) error {
	e.mu.Lock()
	err := e.deps.RegisterUnit(ctx, u)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpRegisterUnit, u.ID, 0)
	return nil
}

// Unit returns the registered unit with the given ID.
func (e *Engine) Unit(id story.UnitID) (story.Unit, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.Unit(id)
}

// Units returns every registered unit by ordinal.
func (e *Engine) Units() []story.Unit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.Units()
}

// AddDependency adds an unresolved edge, rejecting cycles before commit.
func (e *Engine) AddDependency(ctx context.Context, d dependency.Dependency) (dependency.EdgeID, error) {
	e.mu.Lock()
	id, err := e.deps.AddDependency(ctx, d)
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}
	e.emit(OpAddDependency, fmt.Sprint(id), 0)
	return id, nil
}

// ResolveDependency marks an edge resolved. Idempotent.
func (e *Engine) ResolveDependency(id dependency.EdgeID, note string) error {
	e.mu.Lock()
	err := e.deps.Resolve(id, note)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpResolve, fmt.Sprint(id), 0)
	return nil
}

// ValidateReady reports whether unit's hard dependencies are all resolved.
func (e *Engine) ValidateReady(unit story.UnitID) (dependency.Readiness, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.ValidateReady(unit)
}

// ExecutionOrder returns a dependency-respecting order of units.
func (e *Engine) ExecutionOrder(ctx context.Context, units []story.UnitID) ([]story.UnitID, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.ExecutionOrder(ctx, units)
}

// Edges returns every dependency edge by ID.
func (e *Engine) Edges() []dependency.Edge {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.Edges()
}

// Storylines returns the independent groups of linked units.
func (e *Engine) Storylines(ctx context.Context) ([]graph.Storyline, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.Storylines(ctx)
}

// --- foreshadowing ---

// Plant creates a foreshadow element.
func (e *Engine) Plant(ctx context.Context, req foreshadow.PlantRequest) (foreshadow.Element, error) {
	e.mu.Lock()
	el, err := e.foreshadow.Plant(ctx, req)
	e.mu.Unlock()
	if err != nil {
		return foreshadow.Element{}, err
	}
	e.emit(OpPlant, el.ID, 0)
	return el, nil
}

// Echo records an echo of an element in unit.
func (e *Engine) Echo(ctx context.Context, id string, unit story.UnitID) error {
	e.mu.Lock()
	err := e.foreshadow.Echo(ctx, id, unit)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpEcho, id, 0)
	return nil
}

// Activate moves an element from Setup to Active.
func (e *Engine) Activate(id string, unit story.UnitID, note string) error {
	e.mu.Lock()
	err := e.foreshadow.Activate(id, unit, note)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpActivate, id, 0)
	return nil
}

// Reveal resolves an element at unit.
func (e *Engine) Reveal(ctx context.Context, id string, unit story.UnitID, note string, override bool) error {
	e.mu.Lock()
	err := e.foreshadow.Reveal(ctx, id, unit, note, override)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpReveal, id, 0)
	return nil
}

// Abandon retires an element.
func (e *Engine) Abandon(id, reason string) error {
	e.mu.Lock()
	err := e.foreshadow.Abandon(id, reason)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpAbandon, id, 0)
	return nil
}

// AssignReveal gives an orphaned element a reveal target.
func (e *Engine) AssignReveal(ctx context.Context, id string, unit story.UnitID) error {
	e.mu.Lock()
	err := e.foreshadow.AssignReveal(ctx, id, unit)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpAssignReveal, id, 0)
	return nil
}

// SetVisibility changes an element's visibility.
func (e *Engine) SetVisibility(id string, v float64) error {
	e.mu.Lock()
	err := e.foreshadow.SetVisibility(id, v)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpSetVisibility, id, 0)
	return nil
}

// Element returns a foreshadow element by ID.
func (e *Engine) Element(id string) (foreshadow.Element, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.foreshadow.Element(id)
}

// Elements returns every foreshadow element by ID.
func (e *Engine) Elements() []foreshadow.Element {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.foreshadow.Elements()
}

// Audit checks every foreshadow chain against the furthest committed unit.
func (e *Engine) Audit() foreshadow.IntegrityReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.foreshadow.Audit(e.continuity.Position())
}

// --- continuity ---

// RegisterEntity seeds an entity's initial attributes.
func (e *Engine) RegisterEntity(ent continuity.Entity) error {
	e.mu.Lock()
	err := e.continuity.RegisterEntity(ent)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.emit(OpRegisterEntity, ent.Name, 0)
	return nil
}

// Entity returns an entity by canonical name.
func (e *Engine) Entity(name string) (continuity.Entity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.continuity.Entity(name)
}

// Entities returns every entity by name.
func (e *Engine) Entities() []continuity.Entity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.continuity.Entities()
}

// History returns every committed exit snapshot in commit order.
func (e *Engine) History() []continuity.SceneState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.continuity.History()
}

// ValidateEntry checks a unit's declaration against last-known state.
func (e *Engine) ValidateEntry(decl continuity.Declaration) (continuity.ValidationResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.continuity.ValidateEntry(decl)
}

// PredictExit applies transitions to last-known state without committing.
func (e *Engine) PredictExit(unit story.UnitID, transitions []continuity.Transition) (continuity.SceneState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.continuity.PredictExit(unit, transitions)
}

// GuardsFor merges the continuity guards of unit with the foreshadow
// obligations due there: planned echoes and reveals become mandatory
// mentions, other unresolved elements become prohibited reveals.
func (e *Engine) GuardsFor(unit story.UnitID, cast []string) (continuity.GuardSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.guardsLocked(unit, cast)
}

func (e *Engine) guardsLocked(unit story.UnitID, cast []string) (continuity.GuardSet, error) {
	g, err := e.continuity.GuardsFor(unit, cast)
	if err != nil {
		return continuity.GuardSet{}, err
	}
	for _, o := range e.foreshadow.Obligations(unit) {
		reason := string(o.Kind) + " (" + string(o.Hint) + ")"
		g.MandatoryMentions = append(g.MandatoryMentions, continuity.Mention{
			Subject: o.Element,
			Detail:  o.Description,
			Reason:  reason,
		})
	}
	for _, s := range e.foreshadow.Secrets(unit) {
		reason := "unrevealed foreshadowing"
		if s.RevealUnit != "" {
			reason = "reveal planned for " + s.RevealUnit
		}
		g.ProhibitedMentions = append(g.ProhibitedMentions, continuity.Mention{
			Subject: s.Element,
			Detail:  s.Description,
			Reason:  reason,
		})
	}
	return g, nil
}

// Brief is everything the generation collaborator needs before writing a unit.
type Brief struct {
	Readiness dependency.Readiness `json:"readiness"`
	Guards    continuity.GuardSet  `json:"guards"`
}

// Prepare returns the readiness and guards of unit under one read lock.
func (e *Engine) Prepare(unit story.UnitID, cast []string) (Brief, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, err := e.deps.ValidateReady(unit)
	if err != nil {
		return Brief{}, err
	}
	g, err := e.guardsLocked(unit, cast)
	if err != nil {
		return Brief{}, err
	}
	return Brief{Readiness: r, Guards: g}, nil
}

// CommitExit folds a unit's exit snapshot into state. It is Ingest with a
// report that carries nothing but the scene.
func (e *Engine) CommitExit(ctx context.Context, scene continuity.SceneState) (IngestResult, error) {
	return e.Ingest(ctx, Report{Scene: scene})
}
