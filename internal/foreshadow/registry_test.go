package foreshadow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/graph"
	"github.com/dusk-indust/narrative/internal/story"
)

// newRegistry returns a Registry over units "1".."n" at ordinals 1..n.
func newRegistry(t *testing.T, n int) (*Registry, *dependency.Manager) {
	t.Helper()
	deps := dependency.New(graph.NewMemStore(), nil)
	for i := 1; i <= n; i++ {
		require.NoError(t, deps.RegisterUnit(context.Background(), story.Unit{ID: fmt.Sprint(i), Ordinal: i}))
	}
	return New(deps, 0, nil), deps
}

// Scenario: plant F1 at 1 revealing at 5; revealing at 3 is premature, at 5 succeeds.
func TestReveal_PrematureThenPlanned(t *testing.T) {
	r, deps := newRegistry(t, 5)
	ctx := context.Background()

	el, err := r.Plant(ctx, PlantRequest{ID: "F1", Description: "the locket", PlantUnit: "1", RevealUnit: "5", Importance: ImportanceMajor, Visibility: 0.4})
	require.NoError(t, err)
	assert.Equal(t, StatusSetup, el.Status)

	edge, ok := deps.Edge(el.RevealEdge)
	require.True(t, ok)
	assert.Equal(t, dependency.KindForeshadowing, edge.Kind)
	assert.True(t, edge.Hard)
	assert.Equal(t, "1", edge.Source)
	assert.Equal(t, "5", edge.Target)

	err = r.Reveal(ctx, "F1", "3", "too soon", false)
	var pre *apperr.PrematureRevealError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "5", pre.Planned)
	assert.ErrorIs(t, err, apperr.ErrPrematureReveal)

	got, _ := r.Element("F1")
	assert.Equal(t, StatusSetup, got.Status, "rejected reveal changes nothing")

	require.NoError(t, r.Reveal(ctx, "F1", "5", "opened at the funeral", false))
	got, _ = r.Element("F1")
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, "5", got.RevealedIn)

	edge, _ = deps.Edge(el.RevealEdge)
	assert.True(t, edge.Resolved)

	ready, err := deps.ValidateReady("5")
	require.NoError(t, err)
	assert.True(t, ready.Ready)
}

func TestPlant_Validation(t *testing.T) {
	r, deps := newRegistry(t, 2)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PlantRequest
		want error
	}{
		{"empty description", PlantRequest{Description: "  ", PlantUnit: "1"}, apperr.ErrInvalidArgument},
		{"bad importance", PlantRequest{Description: "x", PlantUnit: "1", Importance: "epic"}, apperr.ErrInvalidArgument},
		{"visibility above one", PlantRequest{Description: "x", PlantUnit: "1", Visibility: 1.5}, apperr.ErrInvalidArgument},
		{"unknown plant unit", PlantRequest{Description: "x", PlantUnit: "9"}, apperr.ErrNotFound},
		{"unknown echo unit", PlantRequest{Description: "x", PlantUnit: "1", PlannedEchoes: []string{"7"}}, apperr.ErrNotFound},
		{"reveal in plant unit", PlantRequest{Description: "x", PlantUnit: "1", RevealUnit: "1"}, apperr.ErrCycleDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Plant(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, r.Elements())
	assert.Empty(t, deps.Edges())
}

func TestPlant_GeneratesIDAndRejectsDuplicates(t *testing.T) {
	r, _ := newRegistry(t, 2)
	ctx := context.Background()

	el, err := r.Plant(ctx, PlantRequest{Description: "a scar", PlantUnit: "1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(el.ID, "fs-"))
	assert.Equal(t, ImportanceMinor, el.Importance)

	_, err = r.Plant(ctx, PlantRequest{ID: el.ID, Description: "again", PlantUnit: "2"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestEcho_Lifecycle(t *testing.T) {
	r, deps := newRegistry(t, 4)
	ctx := context.Background()
	_, err := r.Plant(ctx, PlantRequest{ID: "F", Description: "a song", PlantUnit: "1", RevealUnit: "4"})
	require.NoError(t, err)

	require.NoError(t, r.Echo(ctx, "F", "2"))
	require.NoError(t, r.Echo(ctx, "F", "2"), "repeated echo is recorded once")
	require.NoError(t, r.Echo(ctx, "F", "3"))

	el, _ := r.Element("F")
	assert.Equal(t, StatusActive, el.Status)
	assert.Equal(t, []string{"2", "3"}, el.EchoUnits)

	e, ok := deps.FindEdge("1", "2", dependency.KindForeshadowing)
	require.True(t, ok)
	assert.False(t, e.Hard, "echo edges never gate readiness")

	require.NoError(t, r.Reveal(ctx, "F", "4", "", false))
	assert.ErrorIs(t, r.Echo(ctx, "F", "3"), apperr.ErrInvalidTransition)
}

func TestEcho_BeforePlantIsRejected(t *testing.T) {
	r, deps := newRegistry(t, 3)
	ctx := context.Background()
	_, err := deps.AddDependency(ctx, dependency.Dependency{Source: "2", Target: "3", Kind: dependency.KindPlot, Strength: 5, Hard: true})
	require.NoError(t, err)
	_, err = r.Plant(ctx, PlantRequest{ID: "F", Description: "a map", PlantUnit: "3"})
	require.NoError(t, err)

	// 2 must precede 3, so 3 cannot be echoed in 2.
	err = r.Echo(ctx, "F", "2")
	assert.ErrorIs(t, err, apperr.ErrCycleDetected)
	el, _ := r.Element("F")
	assert.Equal(t, StatusSetup, el.Status)
	assert.Empty(t, el.EchoUnits)
}

func TestActivateAndAbandon(t *testing.T) {
	r, deps := newRegistry(t, 3)
	ctx := context.Background()
	el, err := r.Plant(ctx, PlantRequest{ID: "F", Description: "a debt", PlantUnit: "1", RevealUnit: "3"})
	require.NoError(t, err)

	require.NoError(t, r.Activate("F", "1", "explicit"))
	require.NoError(t, r.Activate("F", "2", ""), "activating an active element is a no-op")

	require.NoError(t, r.Abandon("F", "subplot cut"))
	got, _ := r.Element("F")
	assert.Equal(t, StatusAbandoned, got.Status)
	assert.Equal(t, []Status{StatusSetup, StatusActive, StatusAbandoned}, statuses(got.History))

	edge, _ := deps.Edge(el.RevealEdge)
	assert.True(t, edge.Resolved, "abandoned reveals stop blocking their unit")

	assert.ErrorIs(t, r.Abandon("F", ""), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, r.Activate("F", "2", ""), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, r.Reveal(ctx, "F", "3", "", false), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, r.Abandon("missing", ""), apperr.ErrNotFound)
}

func TestReveal_EarlyWithOverride(t *testing.T) {
	r, deps := newRegistry(t, 5)
	ctx := context.Background()
	el, err := r.Plant(ctx, PlantRequest{ID: "F", Description: "twin", PlantUnit: "1", RevealUnit: "5"})
	require.NoError(t, err)

	require.NoError(t, r.Reveal(ctx, "F", "3", "pressure", true))
	got, _ := r.Element("F")
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, "5", got.RevealUnit)
	assert.Equal(t, "3", got.RevealedIn)

	early, ok := deps.FindEdge("1", "3", dependency.KindForeshadowing)
	require.True(t, ok)
	assert.True(t, early.Hard)
	assert.True(t, early.Resolved)

	planned, _ := deps.Edge(el.RevealEdge)
	assert.True(t, planned.Resolved)
}

func TestOrphanAssignReveal(t *testing.T) {
	r, _ := newRegistry(t, 3)
	ctx := context.Background()
	_, err := r.Plant(ctx, PlantRequest{ID: "F", Description: "stranger", PlantUnit: "1"})
	require.NoError(t, err)

	err = r.Reveal(ctx, "F", "3", "", false)
	assert.ErrorIs(t, err, apperr.ErrPrematureReveal, "no target means intent must be explicit")

	assert.Equal(t, []string{"F"}, r.Audit(0).Orphaned)

	require.NoError(t, r.AssignReveal(ctx, "F", "3"))
	assert.ErrorIs(t, r.AssignReveal(ctx, "F", "2"), apperr.ErrConflict)
	assert.Empty(t, r.Audit(0).Orphaned)
	require.NoError(t, r.Reveal(ctx, "F", "3", "", false))
}

func TestAudit(t *testing.T) {
	r, _ := newRegistry(t, 6)
	ctx := context.Background()

	plant := func(id, reveal string, echoes ...string) {
		_, err := r.Plant(ctx, PlantRequest{ID: id, Description: id, PlantUnit: "1", RevealUnit: reveal, PlannedEchoes: echoes})
		require.NoError(t, err)
	}
	plant("complete", "4", "2", "3")
	plant("broken", "4", "2", "3", "5")
	plant("pending", "3")
	plant("future", "6")
	plant("orphan", "")
	plant("gone", "5")

	require.NoError(t, r.Echo(ctx, "complete", "2"))
	require.NoError(t, r.Echo(ctx, "complete", "3"))
	require.NoError(t, r.Echo(ctx, "broken", "2"))
	require.NoError(t, r.Reveal(ctx, "complete", "4", "", false))
	require.NoError(t, r.Reveal(ctx, "broken", "4", "", false))
	require.NoError(t, r.Abandon("gone", "cut"))

	rep := r.Audit(4)
	assert.Equal(t, 6, rep.Total)
	require.Len(t, rep.CompleteChains, 1)
	assert.Equal(t, "complete", rep.CompleteChains[0].Element)
	require.Len(t, rep.BrokenChains, 1)
	assert.Equal(t, "broken", rep.BrokenChains[0].Element)
	assert.InDelta(t, 1.0/3, rep.BrokenChains[0].EchoRatio, 1e-9)
	assert.Equal(t, []string{"orphan"}, rep.Orphaned)
	assert.Equal(t, []string{"pending"}, rep.PendingReveal)
	assert.Equal(t, []string{"gone"}, rep.Abandoned)
	assert.InDelta(t, 2.0/6, rep.CompletionRate, 1e-9)
	assert.Equal(t, DefaultBrokenChainThreshold, rep.Threshold)

	assert.Empty(t, r.Audit(2).PendingReveal)
}

func TestAudit_ThresholdIsConfigurable(t *testing.T) {
	deps := dependency.New(graph.NewMemStore(), nil)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, deps.RegisterUnit(ctx, story.Unit{ID: fmt.Sprint(i), Ordinal: i}))
	}
	r := New(deps, 0.5, nil)
	_, err := r.Plant(ctx, PlantRequest{ID: "F", Description: "x", PlantUnit: "1", RevealUnit: "3", PlannedEchoes: []string{"2", "3"}})
	require.NoError(t, err)
	require.NoError(t, r.Echo(ctx, "F", "2"))
	require.NoError(t, r.Reveal(ctx, "F", "3", "", false))

	rep := r.Audit(3)
	assert.Len(t, rep.CompleteChains, 1, "half the echoes meets a 0.5 threshold")
}

func TestAudit_CompletionRateMonotonic(t *testing.T) {
	r, _ := newRegistry(t, 12)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		_, err := r.Plant(ctx, PlantRequest{ID: fmt.Sprintf("F%02d", i), Description: "x", PlantUnit: "1", RevealUnit: fmt.Sprint(i + 2)})
		require.NoError(t, err)
	}

	prev := r.Audit(0).CompletionRate
	assert.Zero(t, prev)
	for i := 10; i >= 1; i-- {
		require.NoError(t, r.Reveal(ctx, fmt.Sprintf("F%02d", i), fmt.Sprint(i+2), "", false))
		rate := r.Audit(12).CompletionRate
		assert.GreaterOrEqual(t, rate, prev)
		prev = rate
	}
	assert.Equal(t, 1.0, prev)
}

func TestObligationsAndSecrets(t *testing.T) {
	r, _ := newRegistry(t, 4)
	ctx := context.Background()
	_, err := r.Plant(ctx, PlantRequest{ID: "loud", Description: "the bell", PlantUnit: "1", RevealUnit: "4", Visibility: 0.8, PlannedEchoes: []string{"2"}})
	require.NoError(t, err)
	_, err = r.Plant(ctx, PlantRequest{ID: "quiet", Description: "the poison", PlantUnit: "1", RevealUnit: "3", Visibility: 0, PlannedEchoes: []string{"2"}})
	require.NoError(t, err)

	obl := r.Obligations("2")
	require.Len(t, obl, 1, "hidden elements get no echo duty")
	assert.Equal(t, Obligation{Element: "loud", Description: "the bell", Kind: ObligationEcho, Hint: HintOvert, Importance: ImportanceMinor}, obl[0])

	obl = r.Obligations("3")
	require.Len(t, obl, 1)
	assert.Equal(t, ObligationReveal, obl[0].Kind)
	assert.Equal(t, "quiet", obl[0].Element)

	secrets := r.Secrets("3")
	require.Len(t, secrets, 1)
	assert.Equal(t, "loud", secrets[0].Element)

	require.NoError(t, r.Echo(ctx, "loud", "2"))
	assert.Empty(t, r.Obligations("2"), "an echo already made is no longer owed")
}

func TestHintFor(t *testing.T) {
	tests := []struct {
		v    float64
		want HintLevel
	}{
		{0, HintHidden},
		{0.1, HintSubtle},
		{0.5, HintModerate},
		{2.0 / 3, HintOvert},
		{1, HintOvert},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HintFor(tt.v), "visibility %g", tt.v)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r, deps := newRegistry(t, 5)
	ctx := context.Background()
	_, err := r.Plant(ctx, PlantRequest{ID: "A", Description: "locket", PlantUnit: "1", RevealUnit: "5", Importance: ImportanceCritical, Visibility: 0.2, PlannedEchoes: []string{"3"}})
	require.NoError(t, err)
	_, err = r.Plant(ctx, PlantRequest{ID: "B", Description: "letter", PlantUnit: "2"})
	require.NoError(t, err)
	require.NoError(t, r.Echo(ctx, "A", "3"))
	require.NoError(t, r.Reveal(ctx, "A", "4", "early", true))
	require.NoError(t, r.Abandon("B", "cut"))

	before := r.Snapshot()
	data, err := json.Marshal(before)
	require.NoError(t, err)
	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := New(deps, 0, nil)
	require.NoError(t, restored.Restore(decoded))
	assert.Equal(t, before, restored.Snapshot())
}

func TestRestore_RejectsResolvedWithoutReveal(t *testing.T) {
	r, _ := newRegistry(t, 1)
	err := r.Restore(State{Elements: []Element{{ID: "X", Status: StatusResolved, History: []Transition{{To: StatusSetup}}}}})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Empty(t, r.Elements())
}

func TestSetVisibility(t *testing.T) {
	r, _ := newRegistry(t, 1)
	_, err := r.Plant(context.Background(), PlantRequest{ID: "F", Description: "x", PlantUnit: "1"})
	require.NoError(t, err)

	require.NoError(t, r.SetVisibility("F", 0.9))
	assert.ErrorIs(t, r.SetVisibility("F", -0.1), apperr.ErrInvalidArgument)
	el, _ := r.Element("F")
	assert.Equal(t, 0.9, el.Visibility)
}

func statuses(h []Transition) []Status {
	out := make([]Status, len(h))
	for i, t := range h {
		out[i] = t.To
	}
	return out
}

func TestCheckBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("elements planted in the batch can be echoed and revealed", func(t *testing.T) {
		r, deps := newRegistry(t, 3)
		err := r.CheckBatch(ctx, Batch{
			Unit:    "2",
			Plants:  []PlantRequest{{ID: "F", Description: "a key", PlantUnit: "1", RevealUnit: "2"}},
			Echoes:  []string{"F"},
			Reveals: []RevealRequest{{Element: "F"}},
		})
		require.NoError(t, err)
		_, ok := r.Element("F")
		assert.False(t, ok, "checking plants nothing")
		assert.Empty(t, deps.Edges())
	})

	t.Run("premature reveal", func(t *testing.T) {
		r, deps := newRegistry(t, 5)
		err := r.CheckBatch(ctx, Batch{
			Unit:    "1",
			Plants:  []PlantRequest{{ID: "F1", Description: "the locket", RevealUnit: "5"}},
			Reveals: []RevealRequest{{Element: "F1"}},
		})
		assert.ErrorIs(t, err, apperr.ErrPrematureReveal)
		assert.Empty(t, deps.Edges())
	})

	t.Run("duplicate plant IDs", func(t *testing.T) {
		r, _ := newRegistry(t, 2)
		err := r.CheckBatch(ctx, Batch{
			Unit:   "1",
			Plants: []PlantRequest{{ID: "F", Description: "a"}, {ID: "F", Description: "b"}},
		})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("plants that close a cycle together", func(t *testing.T) {
		r, deps := newRegistry(t, 3)
		err := r.CheckBatch(ctx, Batch{
			Unit: "1",
			Plants: []PlantRequest{
				{ID: "A", Description: "a", PlantUnit: "1", RevealUnit: "3"},
				{ID: "B", Description: "b", PlantUnit: "3", RevealUnit: "1"},
			},
		})
		assert.ErrorIs(t, err, apperr.ErrCycleDetected)
		assert.Empty(t, deps.Edges())
	})

	t.Run("second reveal of the same element", func(t *testing.T) {
		r, _ := newRegistry(t, 3)
		_, err := r.Plant(ctx, PlantRequest{ID: "F", Description: "x", PlantUnit: "1", RevealUnit: "3"})
		require.NoError(t, err)
		err = r.CheckBatch(ctx, Batch{Unit: "3", Reveals: []RevealRequest{{Element: "F"}, {Element: "F"}}})
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
		el, _ := r.Element("F")
		assert.Equal(t, StatusSetup, el.Status)
	})

	t.Run("unknown element", func(t *testing.T) {
		r, _ := newRegistry(t, 2)
		err := r.CheckBatch(ctx, Batch{Unit: "2", Echoes: []string{"nope"}})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
