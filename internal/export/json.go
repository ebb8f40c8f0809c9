package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/engine"
	"github.com/dusk-indust/narrative/internal/foreshadow"
	"github.com/dusk-indust/narrative/internal/story"
)

// Source is the engine surface the JSON export reads.
type Source interface {
	Snapshot() engine.Snapshot
	Audit() foreshadow.IntegrityReport
}

// StoryExport is the top-level JSON export structure.
type StoryExport struct {
	ExportedAt string                     `json:"exportedAt"`
	Units      []UnitExport               `json:"units"`
	Edges      []dependency.Edge          `json:"edges"`
	Foreshadow []foreshadow.Element       `json:"foreshadow"`
	Audit      foreshadow.IntegrityReport `json:"audit"`
}

// UnitExport describes one unit and whether it has been written.
type UnitExport struct {
	ID          story.UnitID `json:"id"`
	Ordinal     int          `json:"ordinal"`
	Title       string       `json:"title,omitempty"`
	Committed   bool         `json:"committed"`
	Seq         int          `json:"seq,omitempty"`
	OpenThreads []string     `json:"openThreads,omitempty"`
}

// ExportStory builds a StoryExport from one consistent snapshot.
func ExportStory(src Source, now time.Time) StoryExport {
	s := src.Snapshot()
	out := StoryExport{
		ExportedAt: now.UTC().Format(time.RFC3339),
		Units:      make([]UnitExport, 0, len(s.Dependencies.Units)),
		Edges:      s.Dependencies.Edges,
		Foreshadow: s.Foreshadow.Elements,
		Audit:      src.Audit(),
	}
	if out.Edges == nil {
		out.Edges = []dependency.Edge{}
	}
	if out.Foreshadow == nil {
		out.Foreshadow = []foreshadow.Element{}
	}

	bySeq := make(map[story.UnitID]int, len(s.Continuity.History))
	threads := make(map[story.UnitID][]string, len(s.Continuity.History))
	for _, sc := range s.Continuity.History {
		bySeq[sc.Unit] = sc.Seq
		threads[sc.Unit] = sc.OpenThreads
	}
	for _, u := range s.Dependencies.Units {
		seq, ok := bySeq[u.ID]
		out.Units = append(out.Units, UnitExport{
			ID:          u.ID,
			Ordinal:     u.Ordinal,
			Title:       u.Title,
			Committed:   ok,
			Seq:         seq,
			OpenThreads: threads[u.ID],
		})
	}
	return out
}

// WriteJSON writes the export as indented JSON.
func WriteJSON(w io.Writer, exp StoryExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}
