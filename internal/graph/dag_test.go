package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/narrative/internal/apperr"
)

func TestSortTopological_DetectsCycle(t *testing.T) {
	adj := map[NodeID][]NodeID{"a": {"b"}, "b": {"c"}, "c": {"a"}, "d": {"a"}}
	_, err := SortTopological([]NodeID{"a", "b", "c", "d"}, adjacencyOf(adj), func(NodeID) int { return 0 })
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnresolvableOrder)

	var oe *apperr.OrderError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, []NodeID{"a", "b", "c"}, oe.Remaining)
}

func TestSortTopological_RankBreaksTies(t *testing.T) {
	adj := map[NodeID][]NodeID{"ch1": {"ch4"}}
	rank := map[NodeID]int{"ch1": 1, "ch2": 2, "ch3": 3, "ch4": 4}
	order, err := SortTopological([]NodeID{"ch4", "ch3", "ch2", "ch1"}, adjacencyOf(adj), func(id NodeID) int { return rank[id] })
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"ch1", "ch2", "ch3", "ch4"}, order)
}

func TestClosesCycle(t *testing.T) {
	adj := map[NodeID][]NodeID{"a": {"b"}, "b": {"c"}}
	succ := adjacencyOf(adj)
	assert.True(t, ClosesCycle(succ, "c", "a"))
	assert.True(t, ClosesCycle(succ, "b", "b"))
	assert.False(t, ClosesCycle(succ, "a", "c"))
	assert.False(t, ClosesCycle(succ, "c", "d"))
	assert.Equal(t, []NodeID{"b"}, adj["a"], "scratch view must not touch the adjacency")
}

// TestMemStore_RandomInsertionsStayAcyclic inserts random edges and checks,
// after every accepted insertion, that the graph still sorts and that every
// edge points forward in the resulting order.
func TestMemStore_RandomInsertionsStayAcyclic(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			ctx := context.Background()
			s := NewMemStore()

			const n = 25
			ids := make([]NodeID, n)
			for i := range ids {
				ids[i] = fmt.Sprintf("u%02d", i)
				require.NoError(t, s.AddNode(ctx, ids[i]))
			}

			var next EdgeID
			for i := 0; i < 120; i++ {
				src, dst := ids[rng.Intn(n)], ids[rng.Intn(n)]
				next++
				before, err := s.Edges(ctx)
				require.NoError(t, err)

				err = s.AddEdge(ctx, Edge{ID: next, Source: src, Target: dst})
				if err != nil {
					require.ErrorIs(t, err, apperr.ErrCycleDetected)
					after, err := s.Edges(ctx)
					require.NoError(t, err)
					require.Equal(t, before, after, "rejected insertion changed the graph")
					continue
				}

				order, err := s.TopologicalOrder(ctx, nil)
				require.NoError(t, err)
				assertForward(t, order, append(before, Edge{ID: next, Source: src, Target: dst}))
			}
		})
	}
}

func assertForward(t *testing.T, order []NodeID, edges []Edge) {
	t.Helper()
	pos := make(map[NodeID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range edges {
		require.Less(t, pos[e.Source], pos[e.Target], "edge %d (%s -> %s) points backwards", e.ID, e.Source, e.Target)
	}
}

func adjacencyOf(adj map[NodeID][]NodeID) SuccessorFunc {
	return func(id NodeID) []NodeID { return adj[id] }
}
