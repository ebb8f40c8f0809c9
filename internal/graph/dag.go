package graph

import (
	"container/heap"
	"sort"

	"github.com/dusk-indust/narrative/internal/apperr"
)

// SuccessorFunc returns the direct successors of a node.
type SuccessorFunc func(NodeID) []NodeID

// RankFunc orders independent nodes during a topological sort; lower first.
type RankFunc func(NodeID) int

// withEdge returns a scratch view of succ that also contains src -> dst.
// The underlying adjacency is never modified.
func withEdge(succ SuccessorFunc, src, dst NodeID) SuccessorFunc {
	return func(id NodeID) []NodeID {
		next := succ(id)
		if id != src {
			return next
		}
		out := make([]NodeID, 0, len(next)+1)
		out = append(out, next...)
		return append(out, dst)
	}
}

// ClosesCycle reports whether adding src -> dst to the graph described by
// succ would create a cycle. The candidate edge is inserted into a scratch
// view and a DFS looks for a path that returns to src.
func ClosesCycle(succ SuccessorFunc, src, dst NodeID) bool {
	if src == dst {
		return true
	}
	scratch := withEdge(succ, src, dst)
	visited := map[NodeID]bool{}
	stack := []NodeID{dst}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == src {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, nb := range scratch(cur) {
			if !visited[nb] {
				stack = append(stack, nb)
			}
		}
	}
	return false
}

// SortTopological runs Kahn's algorithm over the subgraph induced by nodes.
// Edges leaving the subset are ignored. Whenever several nodes are ready the
// one with the lowest rank is emitted first, which makes the result
// deterministic. A cyclic subgraph yields *apperr.OrderError.
func SortTopological(nodes []NodeID, succ SuccessorFunc, rank RankFunc) ([]NodeID, error) {
	in := make(map[NodeID]bool, len(nodes))
	for _, n := range nodes {
		in[n] = true
	}

	indegree := make(map[NodeID]int, len(in))
	for n := range in {
		indegree[n] = 0
	}
	adj := make(map[NodeID][]NodeID, len(in))
	for n := range in {
		seen := map[NodeID]bool{}
		for _, m := range succ(n) {
			if !in[m] || seen[m] {
				continue
			}
			seen[m] = true
			adj[n] = append(adj[n], m)
			indegree[m]++
		}
	}

	q := &rankQueue{rank: rank}
	for n, d := range indegree {
		if d == 0 {
			q.ids = append(q.ids, n)
		}
	}
	heap.Init(q)

	order := make([]NodeID, 0, len(in))
	for q.Len() > 0 {
		n := heap.Pop(q).(NodeID)
		order = append(order, n)
		for _, m := range adj[n] {
			indegree[m]--
			if indegree[m] == 0 {
				heap.Push(q, m)
			}
		}
	}

	if len(order) < len(in) {
		var remaining []NodeID
		for n, d := range indegree {
			if d > 0 {
				remaining = append(remaining, n)
			}
		}
		sort.Strings(remaining)
		return nil, &apperr.OrderError{Remaining: remaining}
	}
	return order, nil
}

// rankQueue is a min-heap of node IDs keyed by rank, then ID.
type rankQueue struct {
	ids  []NodeID
	rank RankFunc
}

func (q *rankQueue) Len() int { return len(q.ids) }

func (q *rankQueue) Less(i, j int) bool {
	ri, rj := q.rank(q.ids[i]), q.rank(q.ids[j])
	if ri != rj {
		return ri < rj
	}
	return q.ids[i] < q.ids[j]
}

func (q *rankQueue) Swap(i, j int) { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }

func (q *rankQueue) Push(x any) { q.ids = append(q.ids, x.(NodeID)) }

func (q *rankQueue) Pop() any {
	old := q.ids
	n := len(old)
	x := old[n-1]
	q.ids = old[:n-1]
	return x
}
