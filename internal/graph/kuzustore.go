//go:build cgo

package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/dusk-indust/narrative/internal/apperr"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuStore struct {
	// mu makes the cycle check and the CREATE a single step.
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(":memory:", cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given directory path. KuzuDB creates the directory itself for new databases.
// For existing databases, the directory must contain valid KuzuDB files.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	// Ensure parent directory exists (KuzuDB creates the leaf directory).
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open file database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Order matters: node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Unit(
		id STRING,
		seq INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS DEPENDS(
		FROM Unit TO Unit,
		edge_id INT64,
		label STRING
	)`,
}

// InitSchema creates the node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// AddNode inserts a Unit node. Adding an existing node is a no-op.
func (s *KuzuStore) AddNode(_ context.Context, id NodeID) error {
	if id == "" {
		return apperr.Invalid("node id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.hasNode(id)
	if err != nil || exists {
		return err
	}
	n, err := s.count("MATCH (n:Unit) RETURN count(n)", nil)
	if err != nil {
		return err
	}
	return s.exec(
		"CREATE (u:Unit {id: $id, seq: $seq})",
		map[string]any{"id": id, "seq": int64(n)},
	)
}

// AddEdge inserts a DEPENDS relationship. The full adjacency is loaded and
// the candidate edge is checked on a scratch view before the CREATE runs.
func (s *KuzuStore) AddEdge(_ context.Context, edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []NodeID{edge.Source, edge.Target} {
		ok, err := s.hasNode(id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("node", id)
		}
	}
	dup, err := s.count(
		"MATCH ()-[r:DEPENDS]->() WHERE r.edge_id = $eid RETURN count(r)",
		map[string]any{"eid": int64(edge.ID)},
	)
	if err != nil {
		return err
	}
	if dup > 0 {
		return fmt.Errorf("%w: edge id %d already exists", apperr.ErrConflict, edge.ID)
	}

	adj, err := s.adjacency()
	if err != nil {
		return err
	}
	if ClosesCycle(adjacencyFunc(adj), edge.Source, edge.Target) {
		return &apperr.CycleError{Source: edge.Source, Target: edge.Target}
	}

	return s.exec(
		`MATCH (a:Unit {id: $src}), (b:Unit {id: $dst})
		 CREATE (a)-[:DEPENDS {edge_id: $eid, label: $label}]->(b)`,
		map[string]any{
			"src":   edge.Source,
			"dst":   edge.Target,
			"eid":   int64(edge.ID),
			"label": edge.Label,
		},
	)
}

// Clear deletes every node and relationship.
func (s *KuzuStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec("MATCH (n:Unit) DETACH DELETE n", nil)
}

// ---------- Read operations ----------

// HasNode reports whether a Unit node with the given id exists.
func (s *KuzuStore) HasNode(_ context.Context, id NodeID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNode(id)
}

// Nodes returns every node in insertion order.
func (s *KuzuStore) Nodes(_ context.Context) ([]Node, error) {
	rows, err := s.query("MATCH (u:Unit) RETURN u.id, u.seq ORDER BY u.seq", nil)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(rows))
	for _, r := range rows {
		out = append(out, Node{ID: toString(r[0]), Seq: toInt(r[1])})
	}
	return out, nil
}

// Edges returns every DEPENDS relationship ordered by edge ID.
func (s *KuzuStore) Edges(_ context.Context) ([]Edge, error) {
	rows, err := s.query(
		`MATCH (a:Unit)-[r:DEPENDS]->(b:Unit)
		 RETURN r.edge_id, a.id, b.id, r.label ORDER BY r.edge_id`,
		nil,
	)
	if err != nil {
		return nil, err
	}
	out := make([]Edge, 0, len(rows))
	for _, r := range rows {
		out = append(out, Edge{
			ID:     EdgeID(toInt(r[0])),
			Source: toString(r[1]),
			Target: toString(r[2]),
			Label:  toString(r[3]),
		})
	}
	return out, nil
}

// Predecessors returns the distinct sources of edges pointing at id.
func (s *KuzuStore) Predecessors(_ context.Context, id NodeID) ([]NodeID, error) {
	return s.neighbors(id,
		`MATCH (a:Unit)-[r:DEPENDS]->(b:Unit {id: $id})
		 RETURN a.id, min(r.edge_id) AS first ORDER BY first`)
}

// Successors returns the distinct targets of edges leaving id.
func (s *KuzuStore) Successors(_ context.Context, id NodeID) ([]NodeID, error) {
	return s.neighbors(id,
		`MATCH (a:Unit {id: $id})-[r:DEPENDS]->(b:Unit)
		 RETURN b.id, min(r.edge_id) AS first ORDER BY first`)
}

// ---------- Graph analysis ----------

// WouldCycle reports whether src -> dst would be rejected as a cycle.
func (s *KuzuStore) WouldCycle(_ context.Context, src, dst NodeID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	adj, err := s.adjacency()
	if err != nil {
		return false, err
	}
	return ClosesCycle(adjacencyFunc(adj), src, dst), nil
}

// TopologicalOrder sorts the subgraph induced by subset, or the whole graph
// when subset is empty. Ties break by node insertion sequence.
func (s *KuzuStore) TopologicalOrder(ctx context.Context, subset []NodeID) ([]NodeID, error) {
	nodes, err := s.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	seq := make(map[NodeID]int, len(nodes))
	all := make([]NodeID, 0, len(nodes))
	for _, n := range nodes {
		seq[n.ID] = n.Seq
		all = append(all, n.ID)
	}
	if len(subset) == 0 {
		subset = all
	}
	for _, id := range subset {
		if _, ok := seq[id]; !ok {
			return nil, apperr.NotFound("node", id)
		}
	}

	s.mu.Lock()
	adj, err := s.adjacency()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return SortTopological(subset, adjacencyFunc(adj), func(id NodeID) int { return seq[id] })
}

// Stats returns node and edge counts.
func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
	nodes, err := s.count("MATCH (n:Unit) RETURN count(n)", nil)
	if err != nil {
		return nil, err
	}
	edges, err := s.count("MATCH ()-[r:DEPENDS]->() RETURN count(r)", nil)
	if err != nil {
		return nil, err
	}
	return &Stats{NodeCount: nodes, EdgeCount: edges}, nil
}

// ---------- Internal helpers ----------

func (s *KuzuStore) hasNode(id NodeID) (bool, error) {
	n, err := s.count("MATCH (u:Unit {id: $id}) RETURN count(u)", map[string]any{"id": id})
	return n > 0, err
}

// adjacency loads every edge into an in-memory successor map.
func (s *KuzuStore) adjacency() (map[NodeID][]NodeID, error) {
	rows, err := s.query(
		"MATCH (a:Unit)-[r:DEPENDS]->(b:Unit) RETURN a.id, b.id ORDER BY r.edge_id",
		nil,
	)
	if err != nil {
		return nil, err
	}
	adj := make(map[NodeID][]NodeID)
	for _, r := range rows {
		src := toString(r[0])
		adj[src] = appendUnique(adj[src], toString(r[1]))
	}
	return adj, nil
}

func adjacencyFunc(adj map[NodeID][]NodeID) SuccessorFunc {
	return func(id NodeID) []NodeID { return adj[id] }
}

func (s *KuzuStore) neighbors(id NodeID, cypher string) ([]NodeID, error) {
	s.mu.Lock()
	ok, err := s.hasNode(id)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("node", id)
	}
	rows, err := s.query(cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out := make([]NodeID, 0, len(rows))
	for _, r := range rows {
		out = append(out, toString(r[0]))
	}
	return out, nil
}

// count runs a query returning a single count column.
func (s *KuzuStore) count(cypher string, params map[string]any) (int, error) {
	rows, err := s.query(cypher, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := s.conn.Query(cypher)
		if err != nil {
			return fmt.Errorf("kuzu: execute: %w", err)
		}
		res.Close()
		return nil
	}
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
