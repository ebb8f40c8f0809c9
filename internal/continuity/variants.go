package continuity

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultVariantThreshold is the minimum fuzzy confidence for a declared
// name to be read as a variant of a known entity.
const DefaultVariantThreshold = 0.8

// MatchVia says how a declared name was resolved.
type MatchVia string

const (
	ViaExact      MatchVia = "exact"
	ViaAlias      MatchVia = "alias"
	ViaNormalized MatchVia = "normalized"
	ViaFuzzy      MatchVia = "fuzzy"
)

// Match is a declared name resolved to a canonical entity.
type Match struct {
	Declared   string   `json:"declared"`
	Name       string   `json:"name"`
	Via        MatchVia `json:"via"`
	Confidence float64  `json:"confidence"`
}

var folder = cases.Fold()

// NormalizeName folds case, applies NFKC and collapses whitespace.
func NormalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Resolve maps a declared name onto a registered entity: exact name, then
// alias, then normalized form, then a fuzzy match whose confidence meets the
// store's variant threshold.
func (s *Store) Resolve(declared string) (Match, bool) {
	if _, ok := s.entities[declared]; ok {
		return Match{Declared: declared, Name: declared, Via: ViaExact, Confidence: 1}, true
	}
	for _, e := range s.sortedEntities() {
		for _, a := range e.Aliases {
			if a == declared {
				return Match{Declared: declared, Name: e.Name, Via: ViaAlias, Confidence: 1}, true
			}
		}
	}

	key := NormalizeName(declared)
	if key == "" {
		return Match{}, false
	}
	candidates, owners := s.variantIndex()
	for i, c := range candidates {
		if c == key {
			return Match{Declared: declared, Name: owners[i], Via: ViaNormalized, Confidence: 1}, true
		}
	}

	best := Match{}
	for _, m := range fuzzy.Find(key, candidates) {
		conf := float64(utf8.RuneCountInString(key)) / float64(utf8.RuneCountInString(m.Str))
		if conf > best.Confidence {
			best = Match{Declared: declared, Name: owners[m.Index], Via: ViaFuzzy, Confidence: conf}
		}
	}
	if best.Name == "" || best.Confidence < s.variantThreshold {
		return Match{}, false
	}
	return best, true
}

// variantIndex returns the normalized names and aliases of every entity,
// with the owning entity name at the same index. Order is deterministic.
func (s *Store) variantIndex() (candidates, owners []string) {
	for _, e := range s.sortedEntities() {
		candidates = append(candidates, NormalizeName(e.Name))
		owners = append(owners, e.Name)
		for _, a := range e.Aliases {
			candidates = append(candidates, NormalizeName(a))
			owners = append(owners, e.Name)
		}
	}
	return candidates, owners
}

func (s *Store) sortedEntities() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
