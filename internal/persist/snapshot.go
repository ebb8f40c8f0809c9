// Package persist stores engine state outside the engine's critical section:
// a JSON snapshot file replaced atomically, and an append-only SQLite journal
// of committed scenes.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dusk-indust/narrative/internal/engine"
)

// SaveSnapshot writes s to path via a temp file and rename, so readers never
// see a partial file.
func SaveSnapshot(path string, s engine.Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: encode snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("persist: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("persist: rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot file. A missing file returns ok=false and
// no error.
func LoadSnapshot(path string) (s engine.Snapshot, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return engine.Snapshot{}, false, nil
	}
	if err != nil {
		return engine.Snapshot{}, false, fmt.Errorf("persist: read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return engine.Snapshot{}, false, fmt.Errorf("persist: decode snapshot %s: %w", path, err)
	}
	return s, true, nil
}

// Resume restores eng from the snapshot at path when one exists.
func Resume(ctx context.Context, eng *engine.Engine, path string) (bool, error) {
	s, ok, err := LoadSnapshot(path)
	if err != nil || !ok {
		return false, err
	}
	if err := eng.Restore(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}
