package graph

import (
	"context"
	"io"
)

// Store is the directed-graph backend behind the dependency manager.
// Implementations: KuzuStore (embedded graph DB), MemStore (default, tests).
// Every implementation enforces the same contract:
//
//   - AddEdge rejects an edge that would close a cycle before anything is
//     written, returning *apperr.CycleError. The graph is never rolled back
//     because it is never touched.
//   - TopologicalOrder breaks ties between independent nodes by insertion
//     order, so repeated calls over the same graph return the same slice.
type Store interface {
	io.Closer

	// Schema setup, called once before any data is inserted.
	InitSchema(ctx context.Context) error

	// Write operations.
	AddNode(ctx context.Context, id NodeID) error
	AddEdge(ctx context.Context, edge Edge) error
	Clear(ctx context.Context) error

	// Read operations.
	HasNode(ctx context.Context, id NodeID) (bool, error)
	Nodes(ctx context.Context) ([]Node, error)
	Edges(ctx context.Context) ([]Edge, error)
	Predecessors(ctx context.Context, id NodeID) ([]NodeID, error)
	Successors(ctx context.Context, id NodeID) ([]NodeID, error)

	// Graph analysis.
	WouldCycle(ctx context.Context, src, dst NodeID) (bool, error)
	TopologicalOrder(ctx context.Context, subset []NodeID) ([]NodeID, error)

	// Stats.
	Stats(ctx context.Context) (*Stats, error)
}
