// Package export renders engine state for people and other tools.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/engine"
	"github.com/dusk-indust/narrative/internal/story"
)

// GenerateMermaid produces a Mermaid graph LR diagram of the dependency
// graph. Units are laid out in ordinal order and committed units are
// highlighted. Hard edges are solid arrows, soft edges dotted; resolved
// edges are drawn grey.
func GenerateMermaid(s engine.Snapshot) string {
	units := append([]story.Unit(nil), s.Dependencies.Units...)
	sort.SliceStable(units, func(i, j int) bool { return units[i].Ordinal < units[j].Ordinal })

	committed := make(map[story.UnitID]bool, len(s.Continuity.History))
	for _, sc := range s.Continuity.History {
		committed[sc.Unit] = true
	}

	// Mermaid node IDs must be alphanumeric.
	nodeIDs := make(map[story.UnitID]string, len(units))
	getID := func(unit story.UnitID) string {
		if id, ok := nodeIDs[unit]; ok {
			return id
		}
		id := fmt.Sprintf("U%d", len(nodeIDs))
		nodeIDs[unit] = id
		return id
	}

	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString("  classDef committed fill:#d4edda,stroke:#2e7d32\n")

	for _, u := range units {
		fmt.Fprintf(&sb, "  %s[\"%s\"]", getID(u.ID), label(u))
		if committed[u.ID] {
			sb.WriteString(":::committed")
		}
		sb.WriteString("\n")
	}

	var resolved []int
	for i, e := range s.Dependencies.Edges {
		arrow := "-.->"
		if e.Hard {
			arrow = "==>"
		}
		fmt.Fprintf(&sb, "  %s %s|%s %d| %s\n", getID(e.Source), arrow, edgeLabel(e), e.Strength, getID(e.Target))
		if e.Resolved {
			resolved = append(resolved, i)
		}
	}
	if len(resolved) > 0 {
		idx := make([]string, len(resolved))
		for i, n := range resolved {
			idx[i] = fmt.Sprint(n)
		}
		fmt.Fprintf(&sb, "  linkStyle %s stroke:#999\n", strings.Join(idx, ","))
	}
	return sb.String()
}

func label(u story.Unit) string {
	text := u.ID
	if u.Title != "" {
		text += ": " + u.Title
	}
	return escape(truncate(text, 40))
}

func edgeLabel(e dependency.Edge) string {
	return string(e.Kind)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
