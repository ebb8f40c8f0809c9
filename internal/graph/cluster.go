package graph

import (
	"context"
	"fmt"
	"sort"
)

// Storyline is a weakly connected component of the unit graph: units that
// constrain each other directly or transitively. Separate storylines share
// no dependency and can be generated independently.
type Storyline struct {
	Members []NodeID `json:"members"` // insertion order
	Edges   int      `json:"edges"`
	// Density is distinct linked pairs / possible pairs, 0 for a single unit.
	Density float64 `json:"density"`
}

// Storylines finds the weakly connected components of the graph.
//
// Algorithm:
//  1. Build an undirected adjacency list from every edge.
//  2. Find connected components via BFS, starting from nodes in insertion order.
//  3. Compute each component's pair density.
func Storylines(ctx context.Context, store Store) ([]Storyline, error) {
	nodes, err := store.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: storylines: %w", err)
	}
	edges, err := store.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: storylines: %w", err)
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Seq < nodes[j].Seq })

	seq := make(map[NodeID]int, len(nodes))
	adj := make(map[NodeID]map[NodeID]bool, len(nodes))
	for _, n := range nodes {
		seq[n.ID] = n.Seq
		adj[n.ID] = make(map[NodeID]bool)
	}
	edgeCount := make(map[NodeID]int, len(nodes))
	for _, e := range edges {
		if adj[e.Source] == nil || adj[e.Target] == nil {
			continue
		}
		adj[e.Source][e.Target] = true
		adj[e.Target][e.Source] = true
		edgeCount[e.Source]++
	}

	visited := make(map[NodeID]bool, len(nodes))
	var out []Storyline
	for _, n := range nodes {
		if visited[n.ID] {
			continue
		}
		members := bfsComponent(n.ID, adj, visited)
		sort.Slice(members, func(i, j int) bool { return seq[members[i]] < seq[members[j]] })

		s := Storyline{Members: members, Density: pairDensity(members, adj)}
		for _, m := range members {
			s.Edges += edgeCount[m]
		}
		out = append(out, s)
	}
	return out, nil
}

// bfsComponent performs BFS from start on the adjacency list and returns
// all reachable nodes. It marks visited nodes as it goes.
func bfsComponent(start NodeID, adj map[NodeID]map[NodeID]bool, visited map[NodeID]bool) []NodeID {
	var component []NodeID
	queue := []NodeID{start}
	visited[start] = true

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)
		for neighbor := range adj[node] {
			if !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}
	return component
}

// pairDensity counts each linked pair once (when m < neighbor).
func pairDensity(component []NodeID, adj map[NodeID]map[NodeID]bool) float64 {
	n := len(component)
	if n < 2 {
		return 0
	}
	linked := 0
	for _, m := range component {
		for neighbor := range adj[m] {
			if m < neighbor {
				linked++
			}
		}
	}
	return float64(linked) / float64(n*(n-1)/2)
}
