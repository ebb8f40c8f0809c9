package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dusk-indust/narrative/internal/apperr"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu    sync.RWMutex
	seq   map[NodeID]int // insertion sequence per node
	order []NodeID
	edges []Edge
	ids   map[EdgeID]struct{}
	out   map[NodeID][]NodeID
	in    map[NodeID][]NodeID
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	m := &MemStore{}
	m.reset()
	return m
}

func (m *MemStore) reset() {
	m.seq = make(map[NodeID]int)
	m.order = nil
	m.edges = nil
	m.ids = make(map[EdgeID]struct{})
	m.out = make(map[NodeID][]NodeID)
	m.in = make(map[NodeID][]NodeID)
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// AddNode registers a node. Adding an existing node is a no-op.
func (m *MemStore) AddNode(_ context.Context, id NodeID) error {
	if id == "" {
		return apperr.Invalid("node id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seq[id]; ok {
		return nil
	}
	m.seq[id] = len(m.order)
	m.order = append(m.order, id)
	return nil
}

// AddEdge inserts edge after checking, on a scratch view of the adjacency,
// that it does not close a cycle.
func (m *MemStore) AddEdge(_ context.Context, edge Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seq[edge.Source]; !ok {
		return apperr.NotFound("node", edge.Source)
	}
	if _, ok := m.seq[edge.Target]; !ok {
		return apperr.NotFound("node", edge.Target)
	}
	if _, dup := m.ids[edge.ID]; dup {
		return fmt.Errorf("%w: edge id %d already exists", apperr.ErrConflict, edge.ID)
	}
	if ClosesCycle(m.successorsLocked, edge.Source, edge.Target) {
		return &apperr.CycleError{Source: edge.Source, Target: edge.Target}
	}

	m.ids[edge.ID] = struct{}{}
	m.edges = append(m.edges, edge)
	m.out[edge.Source] = appendUnique(m.out[edge.Source], edge.Target)
	m.in[edge.Target] = appendUnique(m.in[edge.Target], edge.Source)
	return nil
}

// Clear drops every node and edge.
func (m *MemStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// HasNode reports whether id has been added.
func (m *MemStore) HasNode(_ context.Context, id NodeID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seq[id]
	return ok, nil
}

// Nodes returns every node in insertion order.
func (m *MemStore) Nodes(_ context.Context) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Node, len(m.order))
	for i, id := range m.order {
		out[i] = Node{ID: id, Seq: i}
	}
	return out, nil
}

// Edges returns a copy of all edges ordered by ID.
func (m *MemStore) Edges(_ context.Context) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Edge, len(m.edges))
	copy(out, m.edges)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Predecessors returns the distinct sources of edges pointing at id.
func (m *MemStore) Predecessors(_ context.Context, id NodeID) ([]NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.seq[id]; !ok {
		return nil, apperr.NotFound("node", id)
	}
	return append([]NodeID(nil), m.in[id]...), nil
}

// Successors returns the distinct targets of edges leaving id.
func (m *MemStore) Successors(_ context.Context, id NodeID) ([]NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.seq[id]; !ok {
		return nil, apperr.NotFound("node", id)
	}
	return append([]NodeID(nil), m.out[id]...), nil
}

// WouldCycle reports whether src -> dst would be rejected as a cycle.
func (m *MemStore) WouldCycle(_ context.Context, src, dst NodeID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ClosesCycle(m.successorsLocked, src, dst), nil
}

// TopologicalOrder sorts the subgraph induced by subset. An empty subset
// means every node. Unknown IDs are an error.
func (m *MemStore) TopologicalOrder(_ context.Context, subset []NodeID) ([]NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := subset
	if len(nodes) == 0 {
		nodes = m.order
	}
	for _, id := range nodes {
		if _, ok := m.seq[id]; !ok {
			return nil, apperr.NotFound("node", id)
		}
	}
	return SortTopological(nodes, m.successorsLocked, func(id NodeID) int { return m.seq[id] })
}

// Stats returns node and edge counts.
func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{NodeCount: len(m.order), EdgeCount: len(m.edges)}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// successorsLocked must be called with m.mu held.
func (m *MemStore) successorsLocked(id NodeID) []NodeID {
	return m.out[id]
}

func appendUnique(list []NodeID, id NodeID) []NodeID {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}
