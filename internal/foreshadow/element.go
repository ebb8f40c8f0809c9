// Package foreshadow tracks foreshadowing elements through their forward-only
// lifecycle (setup, active, resolved or abandoned), controls how visibly they
// may surface, and audits the integrity of plant/echo/reveal chains.
package foreshadow

import (
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/story"
)

// Status is the lifecycle state of an element.
type Status string

const (
	StatusSetup     Status = "setup"
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusAbandoned
}

// Importance ranks how much the story depends on an element paying off.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceMajor    Importance = "major"
	ImportanceMinor    Importance = "minor"
)

// Valid reports whether i is a known importance.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceCritical, ImportanceMajor, ImportanceMinor:
		return true
	}
	return false
}

// strength maps importance onto the dependency strength of the reveal edge.
func (i Importance) strength() int {
	switch i {
	case ImportanceCritical:
		return 9
	case ImportanceMajor:
		return 7
	default:
		return 4
	}
}

// echoStrength is the strength of the soft plant -> echo edges.
const echoStrength = 3

// Transition records one lifecycle move.
type Transition struct {
	From Status       `json:"from,omitempty"`
	To   Status       `json:"to"`
	Unit story.UnitID `json:"unit,omitempty"`
	Note string       `json:"note,omitempty"`
}

// Element is a planned piece of information with a plant point, optional
// echo points and a reveal point.
type Element struct {
	ID            string            `json:"id"`
	Description   string            `json:"description"`
	PlantUnit     story.UnitID      `json:"plantUnit"`
	RevealUnit    story.UnitID      `json:"revealUnit,omitempty"` // planned reveal
	RevealedIn    story.UnitID      `json:"revealedIn,omitempty"` // actual reveal
	RevealEdge    dependency.EdgeID `json:"revealEdge,omitempty"`
	Visibility    float64           `json:"visibility"`
	Importance    Importance        `json:"importance"`
	Status        Status            `json:"status"`
	PlannedEchoes []story.UnitID    `json:"plannedEchoes,omitempty"`
	EchoUnits     []story.UnitID    `json:"echoUnits,omitempty"` // ordered set
	Note          string            `json:"note,omitempty"`      // reveal or abandon note
	History       []Transition      `json:"history"`
}

// Echoed reports whether unit is already in the element's echo set.
func (e Element) Echoed(unit story.UnitID) bool {
	return containsUnit(e.EchoUnits, unit)
}

// EchoRatio is the share of planned echo points that were hit. An element
// without planned echoes has nothing to miss and scores 1.
func (e Element) EchoRatio() float64 {
	if len(e.PlannedEchoes) == 0 {
		return 1
	}
	hit := 0
	for _, u := range e.PlannedEchoes {
		if containsUnit(e.EchoUnits, u) {
			hit++
		}
	}
	return float64(hit) / float64(len(e.PlannedEchoes))
}

func (e Element) clone() Element {
	e.PlannedEchoes = append([]story.UnitID(nil), e.PlannedEchoes...)
	e.EchoUnits = append([]story.UnitID(nil), e.EchoUnits...)
	e.History = append([]Transition(nil), e.History...)
	return e
}

func containsUnit(list []story.UnitID, unit story.UnitID) bool {
	for _, u := range list {
		if u == unit {
			return true
		}
	}
	return false
}
