package foreshadow

import "github.com/dusk-indust/narrative/internal/story"

// HintLevel tells the generation collaborator how openly an element may surface.
type HintLevel string

const (
	HintHidden   HintLevel = "hidden"
	HintSubtle   HintLevel = "subtle"
	HintModerate HintLevel = "moderate"
	HintOvert    HintLevel = "overt"
)

// HintFor maps a visibility in 0..1 onto a hint level. Zero visibility means
// the element must never surface before its reveal.
func HintFor(visibility float64) HintLevel {
	switch {
	case visibility <= 0:
		return HintHidden
	case visibility < 1.0/3:
		return HintSubtle
	case visibility < 2.0/3:
		return HintModerate
	default:
		return HintOvert
	}
}

// ObligationKind distinguishes echo duties from reveal duties.
type ObligationKind string

const (
	ObligationEcho   ObligationKind = "echo"
	ObligationReveal ObligationKind = "reveal"
)

// Obligation is something a unit must do for a foreshadowing element.
type Obligation struct {
	Element     string         `json:"element"`
	Description string         `json:"description"`
	Kind        ObligationKind `json:"kind"`
	Hint        HintLevel      `json:"hint"`
	Importance  Importance     `json:"importance"`
}

// Secret is an element whose content a unit must not give away.
type Secret struct {
	Element     string       `json:"element"`
	Description string       `json:"description"`
	RevealUnit  story.UnitID `json:"revealUnit,omitempty"`
}

// Obligations lists the echo and reveal duties due at unit. Hidden elements
// produce reveal duties only.
func (r *Registry) Obligations(unit story.UnitID) []Obligation {
	var out []Obligation
	for _, e := range r.sorted() {
		if e.Status.Terminal() {
			continue
		}
		hint := HintFor(e.Visibility)
		if e.RevealUnit == unit {
			out = append(out, Obligation{
				Element: e.ID, Description: e.Description, Kind: ObligationReveal,
				Hint: HintOvert, Importance: e.Importance,
			})
			continue
		}
		if hint != HintHidden && containsUnit(e.PlannedEchoes, unit) && !e.Echoed(unit) {
			out = append(out, Obligation{
				Element: e.ID, Description: e.Description, Kind: ObligationEcho,
				Hint: hint, Importance: e.Importance,
			})
		}
	}
	return out
}

// Secrets lists unresolved elements that unit must not reveal.
func (r *Registry) Secrets(unit story.UnitID) []Secret {
	var out []Secret
	for _, e := range r.sorted() {
		if e.Status.Terminal() || e.RevealUnit == unit {
			continue
		}
		out = append(out, Secret{Element: e.ID, Description: e.Description, RevealUnit: e.RevealUnit})
	}
	return out
}
