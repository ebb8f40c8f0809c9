package continuity

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/story"
)

// Index is what the store needs to know about units and their links.
// *dependency.Manager satisfies it.
type Index interface {
	story.UnitIndex
	HasDependency(source, target story.UnitID, kind dependency.Kind) bool
}

// State is the serializable form of a Store.
type State struct {
	Entities []Entity     `json:"entities"` // name order
	History  []SceneState `json:"history"`  // commit order
}

// Store is the single writer of entity attributes. Not safe for concurrent
// use; the engine serializes access.
type Store struct {
	index            Index
	logger           *slog.Logger
	variantThreshold float64
	entities         map[string]*Entity
	history          []SceneState
	committed        map[story.UnitID]int // unit -> index into history
}

// New returns an empty Store. A threshold outside (0, 1] falls back to
// DefaultVariantThreshold.
func New(index Index, variantThreshold float64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if variantThreshold <= 0 || variantThreshold > 1 {
		variantThreshold = DefaultVariantThreshold
	}
	s := &Store{index: index, logger: logger, variantThreshold: variantThreshold}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.entities = make(map[string]*Entity)
	s.history = nil
	s.committed = make(map[story.UnitID]int)
}

// RegisterEntity seeds an entity with its initial attributes. Names and
// aliases must not collide with any other entity.
func (s *Store) RegisterEntity(e Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, ok := s.entities[e.Name]; ok {
		return fmt.Errorf("%w: entity %s already registered", apperr.ErrConflict, e.Name)
	}
	for _, name := range append([]string{e.Name}, e.Aliases...) {
		if m, ok := s.Resolve(name); ok && (m.Via == ViaExact || m.Via == ViaAlias) {
			return fmt.Errorf("%w: name %q already refers to %s", apperr.ErrConflict, name, m.Name)
		}
	}
	cp := e.clone()
	s.entities[e.Name] = &cp
	s.logger.Debug("continuity: entity registered", slog.String("entity", e.Name), slog.String("kind", string(e.Kind)))
	return nil
}

// Entity returns a copy of the named entity.
func (s *Store) Entity(name string) (Entity, bool) {
	e, ok := s.entities[name]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// Entities returns copies of every entity ordered by name.
func (s *Store) Entities() []Entity {
	src := s.sortedEntities()
	out := make([]Entity, len(src))
	for i, e := range src {
		out[i] = e.clone()
	}
	return out
}

// Committed reports whether unit's exit state has been folded in.
func (s *Store) Committed(unit story.UnitID) bool {
	_, ok := s.committed[unit]
	return ok
}

// Scene returns the committed exit snapshot of unit.
func (s *Store) Scene(unit story.UnitID) (SceneState, bool) {
	i, ok := s.committed[unit]
	if !ok {
		return SceneState{}, false
	}
	return s.history[i].clone(), true
}

// History returns every committed snapshot in commit order.
func (s *Store) History() []SceneState {
	out := make([]SceneState, len(s.history))
	for i, h := range s.history {
		out[i] = h.clone()
	}
	return out
}

// Position is the ordinal of the furthest committed unit, or -1.
func (s *Store) Position() int {
	pos := -1
	for _, h := range s.history {
		if u, ok := s.index.Unit(h.Unit); ok && u.Ordinal > pos {
			pos = u.Ordinal
		}
	}
	return pos
}

// CheckExit runs every precondition of CommitExit without mutating.
func (s *Store) CheckExit(scene SceneState) error {
	if _, ok := s.index.Unit(scene.Unit); !ok {
		return apperr.NotFound("unit", scene.Unit)
	}
	if s.Committed(scene.Unit) {
		return fmt.Errorf("%w: unit %s already committed", apperr.ErrConflict, scene.Unit)
	}
	for name := range scene.EntityDeltas {
		if name == "" {
			return apperr.Invalid("unit %s: entity delta without a name", scene.Unit)
		}
	}
	for _, kr := range scene.KnowledgeReveals {
		if kr.Entity == "" || kr.Fact == "" {
			return apperr.Invalid("unit %s: knowledge reveal needs entity and fact", scene.Unit)
		}
	}
	return nil
}

// CommitExit folds a unit's exit snapshot into the authoritative map. Every
// entity with a delta has its attributes replaced wholesale; knowledge
// reveals are then added on top. Unknown names are resolved as variants or
// registered as new entities. The committed snapshot, with canonical names
// and its sequence number, is appended to the history and returned.
func (s *Store) CommitExit(scene SceneState) (SceneState, error) {
	if err := s.CheckExit(scene); err != nil {
		return SceneState{}, err
	}
	characters := make(map[string]bool)
	canon := func(name string, kind Kind) string {
		if m, ok := s.Resolve(name); ok {
			return m.Name
		}
		s.entities[name] = &Entity{Name: name, Kind: kind}
		s.logger.Debug("continuity: entity introduced", slog.String("entity", name), slog.String("unit", scene.Unit))
		return name
	}

	out := SceneState{
		Unit:        scene.Unit,
		Timestamp:   scene.Timestamp,
		OpenThreads: append([]string(nil), scene.OpenThreads...),
		Seq:         len(s.history) + 1,
	}
	for _, c := range scene.Characters {
		name := canon(c, KindCharacter)
		characters[name] = true
		out.Characters = appendOnce(out.Characters, name)
	}
	for _, o := range scene.Objects {
		out.Objects = appendOnce(out.Objects, canon(o, KindObject))
	}
	for _, name := range sortedKeys(scene.EntityDeltas) {
		kind := KindObject
		if characters[name] {
			kind = KindCharacter
		}
		canonical := canon(name, kind)
		st := scene.EntityDeltas[name].normalized()
		st.LastUnit = scene.Unit
		s.entities[canonical].State = st
		if out.EntityDeltas == nil {
			out.EntityDeltas = make(map[string]EntityState)
		}
		out.EntityDeltas[canonical] = st
	}
	for _, kr := range scene.KnowledgeReveals {
		canonical := canon(kr.Entity, KindCharacter)
		e := s.entities[canonical]
		e.State.Knowledge = addItem(e.State.Knowledge, kr.Fact)
		e.State.LastUnit = scene.Unit
		out.KnowledgeReveals = append(out.KnowledgeReveals, KnowledgeReveal{Entity: canonical, Fact: kr.Fact})
	}
	for name := range characters {
		s.entities[name].State.LastUnit = scene.Unit
	}
	for _, o := range out.Objects {
		s.entities[o].State.LastUnit = scene.Unit
	}

	out = out.clone()
	s.committed[out.Unit] = len(s.history)
	s.history = append(s.history, out)
	s.logger.Debug("continuity: exit committed",
		slog.String("unit", out.Unit),
		slog.Int("seq", out.Seq),
		slog.Int("deltas", len(out.EntityDeltas)))
	return out.clone(), nil
}

// prior returns the committed scene with the greatest ordinal below unit's.
func (s *Store) prior(unit story.Unit) (SceneState, bool) {
	var (
		best    SceneState
		bestOrd = -1
		found   bool
	)
	for _, h := range s.history {
		u, ok := s.index.Unit(h.Unit)
		if !ok || u.Ordinal >= unit.Ordinal {
			continue
		}
		if !found || u.Ordinal > bestOrd {
			best, bestOrd, found = h, u.Ordinal, true
		}
	}
	return best, found
}

// clockBefore returns the latest story-clock time committed before unit.
func (s *Store) clockBefore(unit story.Unit) time.Time {
	var latest time.Time
	for _, h := range s.history {
		u, ok := s.index.Unit(h.Unit)
		if !ok || u.Ordinal >= unit.Ordinal {
			continue
		}
		ts := h.Timestamp
		if ts.IsZero() {
			ts = u.Time
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

// knownFacts is every fact any entity knows.
func (s *Store) knownFacts() []string {
	var all []string
	for _, e := range s.entities {
		all = append(all, e.State.Knowledge...)
	}
	return normalizeSet(all)
}

// Snapshot returns the serializable state of the store.
func (s *Store) Snapshot() State {
	return State{Entities: s.Entities(), History: s.History()}
}

// Restore replaces the store's state. Any error leaves the store empty.
func (s *Store) Restore(st State) error {
	s.reset()
	for _, e := range st.Entities {
		if err := e.Validate(); err != nil {
			s.reset()
			return fmt.Errorf("continuity: restore: %w", err)
		}
		cp := e.clone()
		s.entities[e.Name] = &cp
	}
	for i, h := range st.History {
		if _, dup := s.committed[h.Unit]; dup {
			s.reset()
			return fmt.Errorf("continuity: restore: %w: unit %s committed twice", apperr.ErrConflict, h.Unit)
		}
		s.committed[h.Unit] = i
		s.history = append(s.history, h.clone())
	}
	return nil
}

func appendOnce(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
