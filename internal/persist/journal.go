package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dusk-indust/narrative/internal/continuity"
)

const journalSchemaSQL = `
CREATE TABLE IF NOT EXISTS scene_history (
	seq          INTEGER PRIMARY KEY,
	unit         TEXT NOT NULL UNIQUE,
	scene        TEXT NOT NULL,
	committed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Journal is the append-only log of committed exit snapshots.
type Journal struct {
	conn *sql.DB
}

// OpenJournal opens (or creates) the SQLite journal at path.
func OpenJournal(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(journalSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{conn: conn}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// LastSeq returns the highest journaled sequence number, 0 when empty.
func (j *Journal) LastSeq(ctx context.Context) (int, error) {
	var seq sql.NullInt64
	if err := j.conn.QueryRowContext(ctx, `SELECT MAX(seq) FROM scene_history`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("journal: last seq: %w", err)
	}
	return int(seq.Int64), nil
}

// Append journals one committed scene. Entries are never updated: appending
// an existing sequence number is a no-op.
func (j *Journal) Append(ctx context.Context, scene continuity.SceneState) error {
	_, err := j.append(ctx, j.conn, scene)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (j *Journal) append(ctx context.Context, db execer, scene continuity.SceneState) (bool, error) {
	if scene.Seq <= 0 {
		return false, fmt.Errorf("journal: scene %s has no sequence number", scene.Unit)
	}
	data, err := json.Marshal(scene)
	if err != nil {
		return false, fmt.Errorf("journal: encode scene %s: %w", scene.Unit, err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO scene_history (seq, unit, scene) VALUES (?, ?, ?) ON CONFLICT(seq) DO NOTHING`,
		scene.Seq, scene.Unit, string(data))
	if err != nil {
		return false, fmt.Errorf("journal: append scene %s: %w", scene.Unit, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Sync appends every scene of history newer than the journal's last entry
// in one transaction and returns how many were written.
func (j *Journal) Sync(ctx context.Context, history []continuity.SceneState) (int, error) {
	last, err := j.LastSeq(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("journal: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	written := 0
	for _, scene := range history {
		if scene.Seq <= last {
			continue
		}
		ok, err := j.append(ctx, tx, scene)
		if err != nil {
			return 0, err
		}
		if ok {
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("journal: commit: %w", err)
	}
	return written, nil
}

// Replay returns every journaled scene in sequence order.
func (j *Journal) Replay(ctx context.Context) ([]continuity.SceneState, error) {
	rows, err := j.conn.QueryContext(ctx, `SELECT scene FROM scene_history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("journal: replay: %w", err)
	}
	defer rows.Close()

	var out []continuity.SceneState
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		var scene continuity.SceneState
		if err := json.Unmarshal([]byte(raw), &scene); err != nil {
			return nil, fmt.Errorf("journal: decode scene: %w", err)
		}
		out = append(out, scene)
	}
	return out, rows.Err()
}
