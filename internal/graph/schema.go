package graph

// NodeID addresses a node. Nodes are narrative unit keys.
type NodeID = string

// EdgeID is a stable, caller-assigned edge identifier. Edges are addressed by
// ID rather than by pointer so the graph can be serialized and rebuilt as-is.
type EdgeID int64

// Node is a graph vertex with its insertion sequence number.
type Node struct {
	ID  NodeID `json:"id"`
	Seq int    `json:"seq"`
}

// Edge is a directed relationship between two nodes. Label is an opaque
// payload tag owned by the caller (the dependency kind, for example).
type Edge struct {
	ID     EdgeID `json:"id"`
	Source NodeID `json:"source"`
	Target NodeID `json:"target"`
	Label  string `json:"label,omitempty"`
}

// Stats summarizes a graph.
type Stats struct {
	NodeCount int `json:"nodeCount"`
	EdgeCount int `json:"edgeCount"`
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendKuzu   = "kuzu"
)
