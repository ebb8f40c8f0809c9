// Package status summarizes story progress: which units are written, which
// can be written next and how the foreshadowing is holding up.
package status

import (
	"context"
	"fmt"

	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/foreshadow"
	"github.com/dusk-indust/narrative/internal/graph"
	"github.com/dusk-indust/narrative/internal/story"
)

// Source is the engine surface Summarize reads.
type Source interface {
	Units() []story.Unit
	History() []continuity.SceneState
	ValidateReady(unit story.UnitID) (dependency.Readiness, error)
	ExecutionOrder(ctx context.Context, units []story.UnitID) ([]story.UnitID, error)
	Audit() foreshadow.IntegrityReport
	Storylines(ctx context.Context) ([]graph.Storyline, error)
}

// UnitInfo describes the state of a single unit.
type UnitInfo struct {
	ID        story.UnitID `json:"id"`
	Ordinal   int          `json:"ordinal"`
	Title     string       `json:"title,omitempty"`
	Committed bool         `json:"committed"`
	Ready     bool         `json:"ready"`
	Blocking  int          `json:"blocking"` // unresolved hard incoming edges
}

// StoryStatus holds the progress of the whole story.
type StoryStatus struct {
	Units      []UnitInfo     `json:"units"`
	Committed  int            `json:"committed"`
	NextUnit   story.UnitID   `json:"nextUnit,omitempty"` // empty when nothing is ready
	Blocked    []story.UnitID `json:"blocked"`
	Foreshadow ForeshadowInfo `json:"foreshadow"`
	Storylines []Storyline    `json:"storylines"`
}

// Storyline is a group of linked units and how much of it is written.
type Storyline struct {
	Units     []story.UnitID `json:"units"`
	Committed int            `json:"committed"`
	Density   float64        `json:"density"`
}

// ForeshadowInfo condenses the foreshadow audit.
type ForeshadowInfo struct {
	Total          int     `json:"total"`
	Complete       int     `json:"complete"`
	Broken         int     `json:"broken"`
	Orphaned       int     `json:"orphaned"`
	PendingReveal  int     `json:"pendingReveal"`
	CompletionRate float64 `json:"completionRate"`
}

// Summarize builds a StoryStatus. NextUnit is the first uncommitted, ready
// unit in execution order.
func Summarize(ctx context.Context, src Source) (StoryStatus, error) {
	committed := make(map[story.UnitID]bool)
	for _, sc := range src.History() {
		committed[sc.Unit] = true
	}

	st := StoryStatus{Units: []UnitInfo{}, Blocked: []story.UnitID{}}
	ready := make(map[story.UnitID]bool)
	for _, u := range src.Units() {
		r, err := src.ValidateReady(u.ID)
		if err != nil {
			return StoryStatus{}, fmt.Errorf("status: readiness of %s: %w", u.ID, err)
		}
		info := UnitInfo{
			ID:        u.ID,
			Ordinal:   u.Ordinal,
			Title:     u.Title,
			Committed: committed[u.ID],
			Ready:     r.Ready,
			Blocking:  len(r.Blocking),
		}
		st.Units = append(st.Units, info)
		if info.Committed {
			st.Committed++
			continue
		}
		ready[u.ID] = r.Ready
		if !r.Ready {
			st.Blocked = append(st.Blocked, u.ID)
		}
	}

	order, err := src.ExecutionOrder(ctx, nil)
	if err != nil {
		return StoryStatus{}, fmt.Errorf("status: execution order: %w", err)
	}
	for _, id := range order {
		if ready[id] {
			st.NextUnit = id
			break
		}
	}

	lines, err := src.Storylines(ctx)
	if err != nil {
		return StoryStatus{}, fmt.Errorf("status: storylines: %w", err)
	}
	st.Storylines = make([]Storyline, 0, len(lines))
	for _, l := range lines {
		sl := Storyline{Units: l.Members, Density: l.Density}
		for _, id := range l.Members {
			if committed[id] {
				sl.Committed++
			}
		}
		st.Storylines = append(st.Storylines, sl)
	}

	audit := src.Audit()
	st.Foreshadow = ForeshadowInfo{
		Total:          audit.Total,
		Complete:       len(audit.CompleteChains),
		Broken:         len(audit.BrokenChains),
		Orphaned:       len(audit.Orphaned),
		PendingReveal:  len(audit.PendingReveal),
		CompletionRate: audit.CompletionRate,
	}
	return st, nil
}
