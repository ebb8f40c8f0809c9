// Package continuity owns the authoritative entity-attribute map of a story
// and checks each narrative unit against it: entry validation before
// generation, wholesale exit folds after it, and the guard sets handed to
// the generation collaborator.
package continuity

import (
	"sort"
	"time"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/story"
)

// Kind distinguishes characters from objects.
type Kind string

const (
	KindCharacter Kind = "character"
	KindObject    Kind = "object"
)

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	return k == KindCharacter || k == KindObject
}

// EntityState is the mutable attribute set of an entity. Set-valued fields
// are kept sorted and free of duplicates.
type EntityState struct {
	Location    string       `json:"location,omitempty"`
	Possessions []string     `json:"possessions,omitempty"`
	Knowledge   []string     `json:"knowledge,omitempty"`
	Injuries    []string     `json:"injuries,omitempty"`
	Emotion     string       `json:"emotion,omitempty"`
	LastUnit    story.UnitID `json:"lastUnit,omitempty"`
}

// Knows reports whether fact is in the knowledge set.
func (s EntityState) Knows(fact string) bool { return hasItem(s.Knowledge, fact) }

// Holds reports whether item is in the possession set.
func (s EntityState) Holds(item string) bool { return hasItem(s.Possessions, item) }

func (s EntityState) normalized() EntityState {
	s.Possessions = normalizeSet(s.Possessions)
	s.Knowledge = normalizeSet(s.Knowledge)
	s.Injuries = normalizeSet(s.Injuries)
	return s
}

// Entity is a character or object tracked for the lifetime of the story.
type Entity struct {
	Name    string      `json:"name"`
	Kind    Kind        `json:"kind"`
	Aliases []string    `json:"aliases,omitempty"`
	State   EntityState `json:"state"`
}

// Validate checks the fields required to register an entity.
func (e Entity) Validate() error {
	if e.Name == "" {
		return apperr.Invalid("entity name is required")
	}
	if !e.Kind.Valid() {
		return apperr.Invalid("entity %s: unknown kind %q", e.Name, e.Kind)
	}
	return nil
}

func (e Entity) clone() Entity {
	e.Aliases = append([]string(nil), e.Aliases...)
	e.State = e.State.normalized()
	return e
}

// KnowledgeReveal records a fact an entity learned during a unit.
type KnowledgeReveal struct {
	Entity string `json:"entity"`
	Fact   string `json:"fact"`
}

// SceneState is the exit snapshot of one unit as reported by the generation
// collaborator. Once committed it is never mutated.
type SceneState struct {
	Unit             story.UnitID           `json:"unit"`
	Characters       []string               `json:"characters,omitempty"`
	Objects          []string               `json:"objects,omitempty"`
	EntityDeltas     map[string]EntityState `json:"entityDeltas,omitempty"` // declared exit state per entity
	KnowledgeReveals []KnowledgeReveal      `json:"knowledgeReveals,omitempty"`
	OpenThreads      []string               `json:"openThreads,omitempty"` // carried into the next unit's guards
	Timestamp        time.Time              `json:"timestamp,omitzero"`
	Seq              int                    `json:"seq,omitempty"` // commit order, assigned on commit
}

func (s SceneState) clone() SceneState {
	s.Characters = append([]string(nil), s.Characters...)
	s.Objects = append([]string(nil), s.Objects...)
	s.KnowledgeReveals = append([]KnowledgeReveal(nil), s.KnowledgeReveals...)
	s.OpenThreads = append([]string(nil), s.OpenThreads...)
	if s.EntityDeltas != nil {
		deltas := make(map[string]EntityState, len(s.EntityDeltas))
		for k, v := range s.EntityDeltas {
			deltas[k] = v.normalized()
		}
		s.EntityDeltas = deltas
	}
	return s
}

// normalizeSet sorts and dedupes items, returning nil for an empty set so
// that serialized state round-trips exactly.
func normalizeSet(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func hasItem(set []string, item string) bool {
	i := sort.SearchStrings(set, item)
	return i < len(set) && set[i] == item
}

func addItem(set []string, item string) []string {
	return normalizeSet(append(append([]string(nil), set...), item))
}

func removeItem(set []string, item string) []string {
	out := make([]string, 0, len(set))
	for _, it := range set {
		if it != item {
			out = append(out, it)
		}
	}
	return normalizeSet(out)
}
