package foreshadow

import "github.com/dusk-indust/narrative/internal/story"

// ChainStatus summarizes one element's plant/echo/reveal chain.
type ChainStatus struct {
	Element       string       `json:"element"`
	PlantUnit     story.UnitID `json:"plantUnit"`
	RevealUnit    story.UnitID `json:"revealUnit,omitempty"`
	RevealedIn    story.UnitID `json:"revealedIn,omitempty"`
	PlannedEchoes int          `json:"plannedEchoes"`
	EchoesHit     int          `json:"echoesHit"`
	EchoRatio     float64      `json:"echoRatio"`
}

// IntegrityReport is the result of Audit.
type IntegrityReport struct {
	Total          int           `json:"total"`
	CompleteChains []ChainStatus `json:"completeChains"`
	BrokenChains   []ChainStatus `json:"brokenChains"`
	Orphaned       []string      `json:"orphaned"`      // unresolved, no reveal target
	PendingReveal  []string      `json:"pendingReveal"` // reveal unit reached but not revealed
	Abandoned      []string      `json:"abandoned"`
	CompletionRate float64       `json:"completionRate"`
	Threshold      float64       `json:"threshold"`
}

// Audit checks every element against the current story position, the
// ordinal of the furthest committed unit (-1 when nothing is committed).
func (r *Registry) Audit(position int) IntegrityReport {
	rep := IntegrityReport{
		CompleteChains: []ChainStatus{},
		BrokenChains:   []ChainStatus{},
		Orphaned:       []string{},
		PendingReveal:  []string{},
		Abandoned:      []string{},
		Threshold:      r.threshold,
	}
	resolved := 0
	for _, e := range r.sorted() {
		rep.Total++
		switch e.Status {
		case StatusResolved:
			resolved++
			cs := chainOf(e)
			if cs.EchoRatio >= r.threshold {
				rep.CompleteChains = append(rep.CompleteChains, cs)
			} else {
				rep.BrokenChains = append(rep.BrokenChains, cs)
			}
		case StatusAbandoned:
			rep.Abandoned = append(rep.Abandoned, e.ID)
		default:
			if e.RevealUnit == "" {
				rep.Orphaned = append(rep.Orphaned, e.ID)
				continue
			}
			if u, ok := r.deps.Unit(e.RevealUnit); ok && u.Ordinal <= position {
				rep.PendingReveal = append(rep.PendingReveal, e.ID)
			}
		}
	}
	if rep.Total > 0 {
		rep.CompletionRate = float64(resolved) / float64(rep.Total)
	}
	return rep
}

func chainOf(e *Element) ChainStatus {
	hit := 0
	for _, u := range e.PlannedEchoes {
		if e.Echoed(u) {
			hit++
		}
	}
	return ChainStatus{
		Element:       e.ID,
		PlantUnit:     e.PlantUnit,
		RevealUnit:    e.RevealUnit,
		RevealedIn:    e.RevealedIn,
		PlannedEchoes: len(e.PlannedEchoes),
		EchoesHit:     hit,
		EchoRatio:     e.EchoRatio(),
	}
}
