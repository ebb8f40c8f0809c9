package continuity

import (
	"fmt"
	"time"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/story"
)

// Mention is a fact the generation collaborator must, or must not, bring up.
type Mention struct {
	Subject string `json:"subject"` // entity name or foreshadow element id
	Detail  string `json:"detail"`
	Reason  string `json:"reason"`
}

// Explanation is a change the next unit has to justify in-story.
type Explanation struct {
	Subject string `json:"subject"`
	From    string `json:"from"`
	To      string `json:"to"`
	Reason  string `json:"reason"`
}

// GuardSet is the constraint set handed to the generation collaborator
// before a unit is written.
type GuardSet struct {
	Unit                 story.UnitID  `json:"unit"`
	Cast                 []string      `json:"cast"`
	MandatoryMentions    []Mention     `json:"mandatoryMentions"`
	ProhibitedMentions   []Mention     `json:"prohibitedMentions"`
	RequiredExplanations []Explanation `json:"requiredExplanations"`
}

// GuardsFor derives the continuity guards of unit for the given cast. An
// empty cast means the characters present in the preceding committed unit.
// Mandatory mentions come from that unit's open threads and the cast's
// lasting injuries; prohibited mentions are story facts a cast member does
// not know; required explanations cover location changes and a story clock
// running backwards.
func (s *Store) GuardsFor(unit story.UnitID, cast []string) (GuardSet, error) {
	u, ok := s.index.Unit(unit)
	if !ok {
		return GuardSet{}, apperr.NotFound("unit", unit)
	}
	prior, hasPrior := s.prior(u)
	if len(cast) == 0 && hasPrior {
		cast = prior.Characters
	}

	g := GuardSet{
		Unit:                 unit,
		Cast:                 []string{},
		MandatoryMentions:    []Mention{},
		ProhibitedMentions:   []Mention{},
		RequiredExplanations: []Explanation{},
	}
	if hasPrior {
		for _, th := range prior.OpenThreads {
			g.MandatoryMentions = append(g.MandatoryMentions, Mention{
				Subject: prior.Unit,
				Detail:  th,
				Reason:  "open thread from " + prior.Unit,
			})
		}
	}

	facts := s.knownFacts()
	for _, name := range cast {
		m, ok := s.Resolve(name)
		if !ok {
			continue
		}
		e := s.entities[m.Name]
		g.Cast = appendOnce(g.Cast, e.Name)

		for _, inj := range e.State.Injuries {
			g.MandatoryMentions = append(g.MandatoryMentions, Mention{
				Subject: e.Name,
				Detail:  inj,
				Reason:  "injury persists",
			})
		}
		if e.Kind == KindCharacter {
			for _, f := range facts {
				if !e.State.Knows(f) {
					g.ProhibitedMentions = append(g.ProhibitedMentions, Mention{
						Subject: e.Name,
						Detail:  f,
						Reason:  "not in " + e.Name + "'s knowledge",
					})
				}
			}
		}
		if from := e.State.Location; from != "" && u.Location != "" && from != u.Location &&
			!s.temporalLink(e.State.LastUnit, unit) {
			g.RequiredExplanations = append(g.RequiredExplanations, Explanation{
				Subject: e.Name,
				From:    from,
				To:      u.Location,
				Reason:  "location change without recorded travel",
			})
		}
	}

	if last := s.clockBefore(u); u.HasTime() && u.Time.Before(last) {
		g.RequiredExplanations = append(g.RequiredExplanations, Explanation{
			Subject: "time",
			From:    last.Format(time.RFC3339),
			To:      u.Time.Format(time.RFC3339),
			Reason:  "story clock runs backwards",
		})
	}
	return g, nil
}

// PredictExit applies transitions to the last-known state of the entities
// they name and returns the expected exit snapshot of unit. The store is not
// changed.
func (s *Store) PredictExit(unit story.UnitID, transitions []Transition) (SceneState, error) {
	if _, ok := s.index.Unit(unit); !ok {
		return SceneState{}, apperr.NotFound("unit", unit)
	}
	out := SceneState{Unit: unit, EntityDeltas: make(map[string]EntityState)}
	for _, t := range transitions {
		if !t.Kind.Valid() {
			return SceneState{}, apperr.Invalid("unknown transition kind %q", t.Kind)
		}
		if t.Entity == "" || t.Value == "" {
			return SceneState{}, apperr.Invalid("transition %s needs entity and value", t.Kind)
		}
		name, kind := t.Entity, KindCharacter
		if m, ok := s.Resolve(t.Entity); ok {
			name, kind = m.Name, s.entities[m.Name].Kind
		}
		st, seen := out.EntityDeltas[name]
		if !seen {
			if e, ok := s.entities[name]; ok {
				st = e.clone().State
			}
			if kind == KindCharacter {
				out.Characters = append(out.Characters, name)
			} else {
				out.Objects = append(out.Objects, name)
			}
		}
		st, err := apply(st, t)
		if err != nil {
			return SceneState{}, err
		}
		st.LastUnit = unit
		out.EntityDeltas[name] = st
		if t.Kind == TransitionLearn {
			out.KnowledgeReveals = append(out.KnowledgeReveals, KnowledgeReveal{Entity: name, Fact: t.Value})
		}
	}
	return out, nil
}

func apply(st EntityState, t Transition) (EntityState, error) {
	switch t.Kind {
	case TransitionMove:
		st.Location = t.Value
	case TransitionAcquire:
		st.Possessions = addItem(st.Possessions, t.Value)
	case TransitionLose:
		st.Possessions = removeItem(st.Possessions, t.Value)
	case TransitionLearn:
		st.Knowledge = addItem(st.Knowledge, t.Value)
	case TransitionInjure:
		st.Injuries = addItem(st.Injuries, t.Value)
	case TransitionHeal:
		st.Injuries = removeItem(st.Injuries, t.Value)
	default:
		return st, fmt.Errorf("continuity: unhandled transition %q", t.Kind)
	}
	return st, nil
}
