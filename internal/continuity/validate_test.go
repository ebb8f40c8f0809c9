package continuity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/story"
)

// Scenario: Li knows fact_7 after unit 2; unit 3 references fact_9.
func TestValidateEntry_KnowledgeLeak(t *testing.T) {
	s, _ := newStore(t, 3)
	require.NoError(t, s.RegisterEntity(Entity{Name: "Li", Kind: KindCharacter}))
	_, err := s.CommitExit(SceneState{Unit: "2", Characters: []string{"Li"},
		KnowledgeReveals: []KnowledgeReveal{{Entity: "Li", Fact: "fact_7"}}})
	require.NoError(t, err)

	res, err := s.ValidateEntry(Declaration{Unit: "3", Entities: []DeclaredEntity{
		{Name: "Li", References: []string{"fact_7", "fact_9"}},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrKnowledgeLeak)

	var leak *apperr.KnowledgeLeakError
	require.ErrorAs(t, err, &leak)
	assert.Equal(t, []apperr.Leak{{Entity: "Li", Fact: "fact_9"}}, leak.Leaks)
	assert.Equal(t, "3", leak.Unit)

	assert.False(t, res.Valid)
	assert.Equal(t, leak.Leaks, res.Leaks)
	assert.Less(t, res.Score, 1.0)

	li, _ := s.Entity("Li")
	assert.Equal(t, []string{"fact_7"}, li.State.Knowledge, "validation never mutates")
}

func TestValidateEntry_LearnTransitionExplainsReference(t *testing.T) {
	s, _ := newStore(t, 1)
	require.NoError(t, s.RegisterEntity(Entity{Name: "Li", Kind: KindCharacter}))

	res, err := s.ValidateEntry(Declaration{
		Unit:        "1",
		Entities:    []DeclaredEntity{{Name: "Li", References: []string{"fact_9"}}},
		Transitions: []Transition{{Entity: "Li", Kind: TransitionLearn, Value: "fact_9"}},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1.0, res.Score)
}

func TestValidateEntry_Advisories(t *testing.T) {
	s, _ := newStore(t, 3)
	require.NoError(t, s.RegisterEntity(Entity{Name: "Li", Kind: KindCharacter}))
	_, err := s.CommitExit(SceneState{
		Unit:         "2",
		Characters:   []string{"Li"},
		EntityDeltas: map[string]EntityState{"Li": {Location: "harbor", Possessions: []string{"knife"}}},
		Timestamp:    day(5),
	})
	require.NoError(t, err)

	res, err := s.ValidateEntry(Declaration{
		Unit:      "3",
		Location:  "tower",
		Timestamp: day(4),
		Entities:  []DeclaredEntity{{Name: "Li", Possessions: []string{"rope"}}},
	})
	require.NoError(t, err, "advisories never fail validation")
	assert.True(t, res.Valid)

	kinds := map[IssueKind]int{}
	for _, is := range res.Issues {
		kinds[is.Kind]++
		assert.Equal(t, SeverityWarning, is.Severity)
	}
	assert.Equal(t, map[IssueKind]int{
		IssueTimeRegression:     1,
		IssueSpatialJump:        1,
		IssuePossessionAppeared: 1,
		IssuePossessionVanished: 1,
	}, kinds)
	assert.InDelta(t, 1-0.2-0.15-0.1-0.1, res.Score, 1e-9)
}

func TestValidateEntry_ExplainedMoves(t *testing.T) {
	s, deps := newStore(t, 3)
	require.NoError(t, s.RegisterEntity(Entity{Name: "Li", Kind: KindCharacter}))
	_, err := s.CommitExit(SceneState{Unit: "1", Characters: []string{"Li"},
		EntityDeltas: map[string]EntityState{"Li": {Location: "harbor", Possessions: []string{"knife"}}}})
	require.NoError(t, err)

	res, err := s.ValidateEntry(Declaration{
		Unit:     "2",
		Entities: []DeclaredEntity{{Name: "Li", Location: "tower", Possessions: []string{}}},
		Transitions: []Transition{
			{Entity: "Li", Kind: TransitionMove, Value: "tower"},
			{Entity: "Li", Kind: TransitionLose, Value: "knife"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Issues)

	// A Temporal edge from Li's last unit explains the jump as well.
	_, err = deps.AddDependency(context.Background(), dependency.Dependency{Source: "1", Target: "3", Kind: dependency.KindTemporal, Strength: 3})
	require.NoError(t, err)
	res, err = s.ValidateEntry(Declaration{Unit: "3", Entities: []DeclaredEntity{{Name: "Li", Location: "tower"}}})
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
}

func TestValidateEntry_UnknownAndVariantNames(t *testing.T) {
	s, _ := newStore(t, 1)
	require.NoError(t, s.RegisterEntity(Entity{Name: "Elizabeth Bennet", Kind: KindCharacter}))

	res, err := s.ValidateEntry(Declaration{Unit: "1", Entities: []DeclaredEntity{
		{Name: "elizabeth  bennet"},
		{Name: "Darcy"},
	}})
	require.NoError(t, err)
	require.Len(t, res.Resolved, 1)
	assert.Equal(t, ViaNormalized, res.Resolved[0].Via)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueUnknownEntity, res.Issues[0].Kind)
	assert.Equal(t, 1.0, res.Score)
}

func TestValidateEntry_Errors(t *testing.T) {
	s, _ := newStore(t, 1)
	_, err := s.ValidateEntry(Declaration{Unit: "9"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.ValidateEntry(Declaration{Unit: "1", Transitions: []Transition{{Entity: "x", Kind: "teleport", Value: "y"}}})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestValidateEntry_UsesUnitMetadata(t *testing.T) {
	s, deps := newStore(t, 1)
	require.NoError(t, deps.RegisterUnit(context.Background(), story.Unit{ID: "flashback", Ordinal: 5, Location: "tower", Time: day(0)}))
	require.NoError(t, s.RegisterEntity(Entity{Name: "Li", Kind: KindCharacter}))
	_, err := s.CommitExit(SceneState{Unit: "1", Characters: []string{"Li"},
		EntityDeltas: map[string]EntityState{"Li": {Location: "harbor"}}})
	require.NoError(t, err)

	res, err := s.ValidateEntry(Declaration{Unit: "flashback", Entities: []DeclaredEntity{{Name: "Li"}}})
	require.NoError(t, err)
	kinds := []IssueKind{}
	for _, is := range res.Issues {
		kinds = append(kinds, is.Kind)
	}
	assert.ElementsMatch(t, []IssueKind{IssueTimeRegression, IssueSpatialJump}, kinds)
}
