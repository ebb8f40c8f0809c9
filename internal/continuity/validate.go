package continuity

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/story"
)

// IssueKind classifies a continuity finding.
type IssueKind string

const (
	IssueTimeRegression     IssueKind = "time_regression"
	IssueSpatialJump        IssueKind = "spatial_jump"
	IssuePossessionAppeared IssueKind = "possession_appeared"
	IssuePossessionVanished IssueKind = "possession_vanished"
	IssueUnknownEntity      IssueKind = "unknown_entity"
	IssueKnowledgeLeak      IssueKind = "knowledge_leak"
)

// Severity separates advisories from hard failures.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// penalties are subtracted from a perfect continuity score of 1.
var penalties = map[IssueKind]float64{
	IssueTimeRegression:     0.2,
	IssueSpatialJump:        0.15,
	IssuePossessionAppeared: 0.1,
	IssuePossessionVanished: 0.1,
	IssueUnknownEntity:      0,
	IssueKnowledgeLeak:      0.3,
}

// Issue is one continuity finding.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Entity   string    `json:"entity,omitempty"`
	Detail   string    `json:"detail"`
}

// TransitionKind names an attribute change a unit declares it will explain.
type TransitionKind string

const (
	TransitionMove    TransitionKind = "move"
	TransitionAcquire TransitionKind = "acquire"
	TransitionLose    TransitionKind = "lose"
	TransitionLearn   TransitionKind = "learn"
	TransitionInjure  TransitionKind = "injure"
	TransitionHeal    TransitionKind = "heal"
)

// Valid reports whether k is a known transition kind.
func (k TransitionKind) Valid() bool {
	switch k {
	case TransitionMove, TransitionAcquire, TransitionLose, TransitionLearn, TransitionInjure, TransitionHeal:
		return true
	}
	return false
}

// Transition is an in-story event that explains an attribute change.
type Transition struct {
	Entity string         `json:"entity"`
	Kind   TransitionKind `json:"kind"`
	Value  string         `json:"value"` // location, item, fact or condition
	Note   string         `json:"note,omitempty"`
}

// DeclaredEntity is an entity as a unit intends to use it on entry.
type DeclaredEntity struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"` // defaults to the declaration's location
	// Possessions, when non-nil, is the entity's full inventory on entry.
	Possessions []string `json:"possessions,omitempty"`
	References  []string `json:"references,omitempty"` // facts the entity uses
}

// Declaration is what a unit declares before generation.
type Declaration struct {
	Unit        story.UnitID     `json:"unit"`
	Location    string           `json:"location,omitempty"` // defaults to the unit's location
	Timestamp   time.Time        `json:"timestamp,omitzero"` // defaults to the unit's time
	Entities    []DeclaredEntity `json:"entities"`
	Transitions []Transition     `json:"transitions,omitempty"`
}

// ValidationResult is the outcome of ValidateEntry.
type ValidationResult struct {
	Unit     story.UnitID  `json:"unit"`
	Valid    bool          `json:"valid"` // false only for knowledge leaks
	Score    float64       `json:"score"`
	Issues   []Issue       `json:"issues"`
	Leaks    []apperr.Leak `json:"leaks,omitempty"`
	Resolved []Match       `json:"resolved,omitempty"`
}

// ValidateEntry compares a unit's declaration with the last-known state.
// Time, space and possession anomalies are advisories that lower the score.
// Using a fact an entity does not know is a hard failure: the populated
// result is returned together with a *apperr.KnowledgeLeakError.
// The store is never mutated.
func (s *Store) ValidateEntry(decl Declaration) (ValidationResult, error) {
	unit, ok := s.index.Unit(decl.Unit)
	if !ok {
		return ValidationResult{}, apperr.NotFound("unit", decl.Unit)
	}
	for _, t := range decl.Transitions {
		if !t.Kind.Valid() {
			return ValidationResult{}, apperr.Invalid("unknown transition kind %q", t.Kind)
		}
	}
	res := ValidationResult{Unit: decl.Unit, Issues: []Issue{}}

	loc := decl.Location
	if loc == "" {
		loc = unit.Location
	}
	ts := decl.Timestamp
	if ts.IsZero() {
		ts = unit.Time
	}
	if last := s.clockBefore(unit); !ts.IsZero() && ts.Before(last) {
		res.add(Issue{
			Kind:     IssueTimeRegression,
			Severity: SeverityWarning,
			Detail:   fmt.Sprintf("unit starts at %s, before %s", ts.Format(time.RFC3339), last.Format(time.RFC3339)),
		})
	}

	explained := s.indexTransitions(decl.Transitions)
	for _, d := range decl.Entities {
		m, ok := s.Resolve(d.Name)
		if !ok {
			res.add(Issue{Kind: IssueUnknownEntity, Severity: SeverityInfo, Entity: d.Name, Detail: "not yet tracked"})
			continue
		}
		if m.Via != ViaExact {
			res.Resolved = append(res.Resolved, m)
		}
		e := s.entities[m.Name]
		s.checkEntity(&res, unit, e, d, loc, explained)
	}

	res.Score = 1
	for _, is := range res.Issues {
		res.Score -= penalties[is.Kind]
	}
	if res.Score < 0 {
		res.Score = 0
	}
	res.Valid = len(res.Leaks) == 0
	for _, is := range res.Issues {
		if is.Severity == SeverityWarning {
			s.logger.Warn("continuity: advisory",
				slog.String("unit", decl.Unit),
				slog.String("kind", string(is.Kind)),
				slog.String("entity", is.Entity))
		}
	}
	if !res.Valid {
		return res, &apperr.KnowledgeLeakError{Unit: decl.Unit, Leaks: res.Leaks}
	}
	return res, nil
}

func (s *Store) checkEntity(res *ValidationResult, unit story.Unit, e *Entity, d DeclaredEntity, sceneLoc string, explained map[transitionKey]bool) {
	st := e.State
	name := e.Name

	to := d.Location
	if to == "" {
		to = sceneLoc
	}
	if from := st.Location; from != "" && to != "" && from != to {
		if !explained[transitionKey{name, TransitionMove, to}] && !s.temporalLink(st.LastUnit, unit.ID) {
			res.add(Issue{
				Kind:     IssueSpatialJump,
				Severity: SeverityWarning,
				Entity:   name,
				Detail:   fmt.Sprintf("last seen in %s, now in %s with no recorded travel", from, to),
			})
		}
	}

	if d.Possessions != nil {
		declared := normalizeSet(d.Possessions)
		for _, item := range declared {
			if !st.Holds(item) && !explained[transitionKey{name, TransitionAcquire, item}] {
				res.add(Issue{
					Kind:     IssuePossessionAppeared,
					Severity: SeverityWarning,
					Entity:   name,
					Detail:   fmt.Sprintf("holds %s without acquiring it", item),
				})
			}
		}
		for _, item := range st.Possessions {
			if !hasItem(declared, item) && !explained[transitionKey{name, TransitionLose, item}] {
				res.add(Issue{
					Kind:     IssuePossessionVanished,
					Severity: SeverityWarning,
					Entity:   name,
					Detail:   fmt.Sprintf("no longer holds %s without losing it", item),
				})
			}
		}
	}

	for _, fact := range normalizeSet(d.References) {
		if st.Knows(fact) || explained[transitionKey{name, TransitionLearn, fact}] {
			continue
		}
		res.Leaks = append(res.Leaks, apperr.Leak{Entity: name, Fact: fact})
		res.add(Issue{
			Kind:     IssueKnowledgeLeak,
			Severity: SeverityError,
			Entity:   name,
			Detail:   fmt.Sprintf("uses %s before learning it", fact),
		})
	}
}

// temporalLink reports whether a Temporal dependency explains the gap
// between the entity's last unit and this one.
func (s *Store) temporalLink(from, to story.UnitID) bool {
	if from == "" {
		return false
	}
	return s.index.HasDependency(from, to, dependency.KindTemporal)
}

func (r *ValidationResult) add(is Issue) {
	r.Issues = append(r.Issues, is)
}

type transitionKey struct {
	entity string
	kind   TransitionKind
	value  string
}

// indexTransitions keys transitions by canonical entity name where the
// declared name resolves, and by the raw name otherwise.
func (s *Store) indexTransitions(ts []Transition) map[transitionKey]bool {
	out := make(map[transitionKey]bool, len(ts))
	for _, t := range ts {
		name := t.Entity
		if m, ok := s.Resolve(name); ok {
			name = m.Name
		}
		out[transitionKey{name, t.Kind, t.Value}] = true
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
