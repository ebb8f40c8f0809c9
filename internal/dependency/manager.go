// Package dependency manages typed dependency edges between narrative units
// on top of a graph.Store, and answers readiness and ordering questions.
//
// The Manager is not safe for concurrent use on its own; the engine package
// serializes access to it.
package dependency

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/graph"
	"github.com/dusk-indust/narrative/internal/story"
)

// Kind classifies why one unit depends on another.
type Kind string

const (
	KindForeshadowing Kind = "foreshadowing"
	KindPlot          Kind = "plot"
	KindCharacter     Kind = "character"
	KindWorld         Kind = "world"
	KindTemporal      Kind = "temporal"
	KindThematic      Kind = "thematic"
	KindEmotional     Kind = "emotional"
)

// Kinds lists every valid dependency kind.
var Kinds = []Kind{
	KindForeshadowing, KindPlot, KindCharacter, KindWorld,
	KindTemporal, KindThematic, KindEmotional,
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// Strength bounds.
const (
	MinStrength = 1
	MaxStrength = 10
)

// EdgeID identifies a dependency edge.
type EdgeID = graph.EdgeID

// Dependency is the input to AddDependency.
type Dependency struct {
	Source      story.UnitID `json:"source"`
	Target      story.UnitID `json:"target"`
	Kind        Kind         `json:"kind"`
	Strength    int          `json:"strength"`
	Hard        bool         `json:"hard"`
	Description string       `json:"description,omitempty"`
}

// Edge is a stored dependency. Resolved (and its note) is the only state
// that changes after creation.
type Edge struct {
	ID          EdgeID       `json:"id"`
	Source      story.UnitID `json:"source"`
	Target      story.UnitID `json:"target"`
	Kind        Kind         `json:"kind"`
	Strength    int          `json:"strength"`
	Hard        bool         `json:"hard"`
	Description string       `json:"description,omitempty"`
	Resolved    bool         `json:"resolved"`
	Note        string       `json:"note,omitempty"`
}

// Readiness is the answer to "can this unit be generated now?".
type Readiness struct {
	Unit     story.UnitID `json:"unit"`
	Ready    bool         `json:"ready"`
	Blocking []Edge       `json:"blocking"`          // unresolved hard incoming edges
	Context  []Edge       `json:"context,omitempty"` // soft incoming edges, advisory only
}

// State is the serializable form of a Manager.
type State struct {
	Units  []story.Unit `json:"units"` // registration order
	Edges  []Edge       `json:"edges"` // ID order
	NextID EdgeID       `json:"nextId"`
}

// Manager owns the dependency edge table and mirrors topology into a graph.Store.
type Manager struct {
	store     graph.Store
	logger    *slog.Logger
	units     map[story.UnitID]story.Unit
	unitOrder []story.UnitID
	edges     map[EdgeID]*Edge
	nextID    EdgeID
}

// Compile-time assertion: *Manager satisfies story.UnitIndex.
var _ story.UnitIndex = (*Manager)(nil)

// New returns a Manager backed by store. A nil logger discards output.
func New(store graph.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Manager{store: store, logger: logger}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.units = make(map[story.UnitID]story.Unit)
	m.unitOrder = nil
	m.edges = make(map[EdgeID]*Edge)
	m.nextID = 0
}

// RegisterUnit adds a unit as a graph node. Registering the same unit twice
// is a no-op; registering a different unit under an existing ID is a conflict.
func (m *Manager) RegisterUnit(ctx context.Context, u story.Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if existing, ok := m.units[u.ID]; ok {
		if existing.Equal(u) {
			return nil
		}
		return fmt.Errorf("%w: unit %s already registered with different metadata", apperr.ErrConflict, u.ID)
	}
	if err := m.store.AddNode(ctx, u.ID); err != nil {
		return fmt.Errorf("dependency: register unit %s: %w", u.ID, err)
	}
	m.units[u.ID] = u
	m.unitOrder = append(m.unitOrder, u.ID)
	m.logger.Debug("dependency: unit registered", slog.String("unit", u.ID), slog.Int("ordinal", u.Ordinal))
	return nil
}

// Unit returns the registered unit with the given ID.
func (m *Manager) Unit(id story.UnitID) (story.Unit, bool) {
	u, ok := m.units[id]
	return u, ok
}

// Units returns every registered unit ordered by ordinal, then ID.
func (m *Manager) Units() []story.Unit {
	out := make([]story.Unit, 0, len(m.units))
	for _, id := range m.unitOrder {
		out = append(out, m.units[id])
	}
	sortUnits(out)
	return out
}

// AddDependency stores a new unresolved edge. The graph store rejects the
// edge before writing anything if it would close a cycle.
func (m *Manager) AddDependency(ctx context.Context, d Dependency) (EdgeID, error) {
	if !d.Kind.Valid() {
		return 0, apperr.Invalid("unknown dependency kind %q", d.Kind)
	}
	if d.Strength < MinStrength || d.Strength > MaxStrength {
		return 0, apperr.Invalid("strength must be in %d..%d, got %d", MinStrength, MaxStrength, d.Strength)
	}
	for _, id := range []story.UnitID{d.Source, d.Target} {
		if _, ok := m.units[id]; !ok {
			return 0, apperr.NotFound("unit", id)
		}
	}

	id := m.nextID + 1
	if err := m.store.AddEdge(ctx, graph.Edge{ID: id, Source: d.Source, Target: d.Target, Label: string(d.Kind)}); err != nil {
		return 0, fmt.Errorf("dependency: add %s -> %s: %w", d.Source, d.Target, err)
	}
	m.nextID = id
	m.edges[id] = &Edge{
		ID:          id,
		Source:      d.Source,
		Target:      d.Target,
		Kind:        d.Kind,
		Strength:    d.Strength,
		Hard:        d.Hard,
		Description: d.Description,
	}
	m.logger.Debug("dependency: added",
		slog.Int64("edge", int64(id)),
		slog.String("source", d.Source),
		slog.String("target", d.Target),
		slog.String("kind", string(d.Kind)),
		slog.Bool("hard", d.Hard))
	return id, nil
}

// WouldCycle reports whether source -> target would be rejected.
func (m *Manager) WouldCycle(ctx context.Context, source, target story.UnitID) (bool, error) {
	return m.store.WouldCycle(ctx, source, target)
}

// Link is an edge that has not been added yet.
type Link struct {
	Source story.UnitID
	Target story.UnitID
}

// WouldCycleWith is WouldCycle over the stored edges plus pending. Nothing
// is written to the store.
func (m *Manager) WouldCycleWith(ctx context.Context, source, target story.UnitID, pending []Link) (bool, error) {
	if len(pending) == 0 {
		return m.WouldCycle(ctx, source, target)
	}
	succ := make(map[story.UnitID][]story.UnitID, len(m.units))
	for _, e := range m.edges {
		succ[e.Source] = append(succ[e.Source], e.Target)
	}
	for _, l := range pending {
		succ[l.Source] = append(succ[l.Source], l.Target)
	}
	return graph.ClosesCycle(func(id graph.NodeID) []graph.NodeID { return succ[id] }, source, target), nil
}

// Resolve marks an edge resolved. Resolving a resolved edge is a no-op and
// keeps the original note.
func (m *Manager) Resolve(id EdgeID, note string) error {
	e, ok := m.edges[id]
	if !ok {
		return apperr.NotFound("edge", fmt.Sprint(id))
	}
	if e.Resolved {
		return nil
	}
	e.Resolved = true
	e.Note = note
	m.logger.Debug("dependency: resolved", slog.Int64("edge", int64(id)), slog.String("note", note))
	return nil
}

// ResolveOutgoing resolves every unresolved edge whose source is unit and
// returns the IDs it flipped.
func (m *Manager) ResolveOutgoing(unit story.UnitID, note string) []EdgeID {
	var flipped []EdgeID
	for _, e := range m.sortedEdges() {
		if e.Source != unit || e.Resolved {
			continue
		}
		_ = m.Resolve(e.ID, note)
		flipped = append(flipped, e.ID)
	}
	return flipped
}

// ValidateReady reports whether every hard edge into unit is resolved.
// Soft edges never block; they are returned as advisory context.
func (m *Manager) ValidateReady(unit story.UnitID) (Readiness, error) {
	if _, ok := m.units[unit]; !ok {
		return Readiness{}, apperr.NotFound("unit", unit)
	}
	r := Readiness{Unit: unit, Blocking: []Edge{}}
	for _, e := range m.EdgesInto(unit) {
		switch {
		case e.Hard && !e.Resolved:
			r.Blocking = append(r.Blocking, e)
		case !e.Hard:
			r.Context = append(r.Context, e)
		}
	}
	r.Ready = len(r.Blocking) == 0
	return r, nil
}

// RelevantContext returns the soft edges pointing at unit.
func (m *Manager) RelevantContext(unit story.UnitID) []Edge {
	var out []Edge
	for _, e := range m.EdgesInto(unit) {
		if !e.Hard {
			out = append(out, e)
		}
	}
	return out
}

// Storylines groups units into independent storylines: sets of units
// linked by any dependency, directly or transitively.
func (m *Manager) Storylines(ctx context.Context) ([]graph.Storyline, error) {
	return graph.Storylines(ctx, m.store)
}

// ExecutionOrder sorts units topologically over the induced subgraph. Units
// that are unconstrained keep their ordinal position. An empty input orders
// every registered unit.
func (m *Manager) ExecutionOrder(ctx context.Context, units []story.UnitID) ([]story.UnitID, error) {
	if len(units) == 0 {
		units = m.unitOrder
	}
	succ := make(map[story.UnitID][]story.UnitID, len(units))
	for _, id := range units {
		if _, ok := m.units[id]; !ok {
			return nil, apperr.NotFound("unit", id)
		}
		next, err := m.store.Successors(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("dependency: successors of %s: %w", id, err)
		}
		succ[id] = next
	}
	order, err := graph.SortTopological(units,
		func(id story.UnitID) []story.UnitID { return succ[id] },
		func(id story.UnitID) int { return m.units[id].Ordinal },
	)
	if err != nil {
		return nil, fmt.Errorf("dependency: execution order: %w", err)
	}
	return order, nil
}

// Edge returns a copy of the edge with the given ID.
func (m *Manager) Edge(id EdgeID) (Edge, bool) {
	e, ok := m.edges[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Edges returns copies of every edge ordered by ID.
func (m *Manager) Edges() []Edge {
	src := m.sortedEdges()
	out := make([]Edge, len(src))
	for i, e := range src {
		out[i] = *e
	}
	return out
}

// EdgesInto returns copies of every edge whose target is unit, by ID.
func (m *Manager) EdgesInto(unit story.UnitID) []Edge {
	var out []Edge
	for _, e := range m.sortedEdges() {
		if e.Target == unit {
			out = append(out, *e)
		}
	}
	return out
}

// HasDependency reports whether an edge of the given kind links source to target.
func (m *Manager) HasDependency(source, target story.UnitID, kind Kind) bool {
	for _, e := range m.edges {
		if e.Source == source && e.Target == target && e.Kind == kind {
			return true
		}
	}
	return false
}

// FindEdge returns the first edge (by ID) matching source, target and kind.
func (m *Manager) FindEdge(source, target story.UnitID, kind Kind) (Edge, bool) {
	for _, e := range m.sortedEdges() {
		if e.Source == source && e.Target == target && e.Kind == kind {
			return *e, true
		}
	}
	return Edge{}, false
}

// Snapshot returns the serializable state of the manager.
func (m *Manager) Snapshot() State {
	st := State{Units: make([]story.Unit, 0, len(m.unitOrder)), Edges: m.Edges(), NextID: m.nextID}
	for _, id := range m.unitOrder {
		st.Units = append(st.Units, m.units[id])
	}
	return st
}

// Restore replaces the manager's state, rebuilding the graph store from
// scratch. Any error leaves the manager empty.
func (m *Manager) Restore(ctx context.Context, st State) error {
	m.reset()
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("dependency: restore: clear graph: %w", err)
	}
	for _, u := range st.Units {
		if err := m.RegisterUnit(ctx, u); err != nil {
			m.reset()
			return fmt.Errorf("dependency: restore: %w", err)
		}
	}
	edges := append([]Edge(nil), st.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	for _, e := range edges {
		if err := m.store.AddEdge(ctx, graph.Edge{ID: e.ID, Source: e.Source, Target: e.Target, Label: string(e.Kind)}); err != nil {
			m.reset()
			return fmt.Errorf("dependency: restore edge %d: %w", e.ID, err)
		}
		cp := e
		m.edges[e.ID] = &cp
		if e.ID > m.nextID {
			m.nextID = e.ID
		}
	}
	if st.NextID > m.nextID {
		m.nextID = st.NextID
	}
	return nil
}

func (m *Manager) sortedEdges() []*Edge {
	out := make([]*Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortUnits(units []story.Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Ordinal != units[j].Ordinal {
			return units[i].Ordinal < units[j].Ordinal
		}
		return units[i].ID < units[j].ID
	})
}
