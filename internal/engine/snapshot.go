package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/foreshadow"
)

// SnapshotVersion is the current snapshot format.
const SnapshotVersion = 1

// Snapshot is the full state of an engine: the dependency edge set, the
// foreshadow element table and the continuity history.
type Snapshot struct {
	Version      int              `json:"version"`
	Dependencies dependency.State `json:"dependencies"`
	Foreshadow   foreshadow.State `json:"foreshadow"`
	Continuity   continuity.State `json:"continuity"`
}

// Snapshot returns a consistent copy of the engine's state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Version:      SnapshotVersion,
		Dependencies: e.deps.Snapshot(),
		Foreshadow:   e.foreshadow.Snapshot(),
		Continuity:   e.continuity.Snapshot(),
	}
}

// Restore replaces the engine's state with s, rebuilding the graph store.
// If s cannot be applied the previous state is put back.
func (e *Engine) Restore(ctx context.Context, s Snapshot) error {
	if s.Version != SnapshotVersion {
		return apperr.Invalid("unsupported snapshot version %d", s.Version)
	}
	e.mu.Lock()
	before := e.snapshotLocked()
	err := e.restoreLocked(ctx, s)
	if err != nil {
		if rerr := e.restoreLocked(ctx, before); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}
	e.emit(OpRestore, "", 0)
	return nil
}

func (e *Engine) restoreLocked(ctx context.Context, s Snapshot) error {
	if err := e.deps.Restore(ctx, s.Dependencies); err != nil {
		return err
	}
	if err := e.foreshadow.Restore(s.Foreshadow); err != nil {
		return err
	}
	return e.continuity.Restore(s.Continuity)
}
