package continuity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/story"
)

func TestGuardsFor(t *testing.T) {
	s, deps := newStore(t, 2)
	require.NoError(t, deps.RegisterUnit(context.Background(), story.Unit{ID: "3", Ordinal: 3, Location: "tower", Time: day(3)}))
	require.NoError(t, s.RegisterEntity(Entity{Name: "Li", Kind: KindCharacter}))
	require.NoError(t, s.RegisterEntity(Entity{Name: "Mara", Kind: KindCharacter}))

	_, err := s.CommitExit(SceneState{
		Unit:       "2",
		Characters: []string{"Li", "Mara"},
		EntityDeltas: map[string]EntityState{
			"Li":   {Location: "harbor", Knowledge: []string{"fact_7"}, Injuries: []string{"broken arm"}},
			"Mara": {Location: "tower", Knowledge: []string{"fact_7", "fact_9"}},
		},
		OpenThreads: []string{"the missing boat"},
	})
	require.NoError(t, err)

	g, err := s.GuardsFor("3", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Li", "Mara"}, g.Cast, "empty cast falls back to the prior unit")

	assert.Equal(t, []Mention{
		{Subject: "2", Detail: "the missing boat", Reason: "open thread from 2"},
		{Subject: "Li", Detail: "broken arm", Reason: "injury persists"},
	}, g.MandatoryMentions)
	assert.Equal(t, []Mention{
		{Subject: "Li", Detail: "fact_9", Reason: "not in Li's knowledge"},
	}, g.ProhibitedMentions)
	require.Len(t, g.RequiredExplanations, 1)
	assert.Equal(t, Explanation{Subject: "Li", From: "harbor", To: "tower", Reason: "location change without recorded travel"}, g.RequiredExplanations[0])

	g, err = s.GuardsFor("3", []string{"mara"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Mara"}, g.Cast)
	assert.Empty(t, g.ProhibitedMentions)

	_, err = s.GuardsFor("9", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGuardsFor_ClockRunsBackwards(t *testing.T) {
	s, deps := newStore(t, 2)
	require.NoError(t, deps.RegisterUnit(context.Background(), story.Unit{ID: "memory", Ordinal: 3, Time: day(1)}))
	_, err := s.CommitExit(SceneState{Unit: "2", Timestamp: day(2)})
	require.NoError(t, err)

	g, err := s.GuardsFor("memory", nil)
	require.NoError(t, err)
	require.Len(t, g.RequiredExplanations, 1)
	assert.Equal(t, "time", g.RequiredExplanations[0].Subject)
}

func TestPredictExit(t *testing.T) {
	s, _ := newStore(t, 2)
	require.NoError(t, s.RegisterEntity(Entity{Name: "Li", Kind: KindCharacter, State: EntityState{
		Location: "harbor", Possessions: []string{"knife"}, Injuries: []string{"cut"},
	}}))
	require.NoError(t, s.RegisterEntity(Entity{Name: "locket", Kind: KindObject, State: EntityState{Location: "harbor"}}))

	pred, err := s.PredictExit("2", []Transition{
		{Entity: "Li", Kind: TransitionMove, Value: "tower"},
		{Entity: "Li", Kind: TransitionAcquire, Value: "locket"},
		{Entity: "Li", Kind: TransitionLose, Value: "knife"},
		{Entity: "Li", Kind: TransitionLearn, Value: "fact_3"},
		{Entity: "Li", Kind: TransitionHeal, Value: "cut"},
		{Entity: "Li", Kind: TransitionInjure, Value: "bruise"},
		{Entity: "locket", Kind: TransitionMove, Value: "tower"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Li"}, pred.Characters)
	assert.Equal(t, []string{"locket"}, pred.Objects)
	assert.Equal(t, EntityState{
		Location:    "tower",
		Possessions: []string{"locket"},
		Knowledge:   []string{"fact_3"},
		Injuries:    []string{"bruise"},
		LastUnit:    "2",
	}, pred.EntityDeltas["Li"])
	assert.Equal(t, []KnowledgeReveal{{Entity: "Li", Fact: "fact_3"}}, pred.KnowledgeReveals)

	li, _ := s.Entity("Li")
	assert.Equal(t, "harbor", li.State.Location, "prediction never mutates")

	// The prediction is a valid exit snapshot.
	_, err = s.CommitExit(pred)
	require.NoError(t, err)
	li, _ = s.Entity("Li")
	assert.Equal(t, "tower", li.State.Location)

	_, err = s.PredictExit("2", []Transition{{Entity: "Li", Kind: "fly", Value: "x"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
