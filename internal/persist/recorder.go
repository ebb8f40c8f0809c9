package persist

import (
	"context"
	"io"
	"log/slog"

	"github.com/dusk-indust/narrative/internal/engine"
)

// Recorder persists engine state after mutations. It reads the engine's
// event stream and, for each event, saves a fresh snapshot and syncs the
// journal. Dropped events are harmless because every flush writes the whole
// state.
type Recorder struct {
	eng          *engine.Engine
	snapshotPath string
	journal      *Journal // optional
	logger       *slog.Logger
}

// NewRecorder returns a Recorder. journal and logger may be nil.
func NewRecorder(eng *engine.Engine, snapshotPath string, journal *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{eng: eng, snapshotPath: snapshotPath, journal: journal, logger: logger}
}

// Flush writes the current state once.
func (r *Recorder) Flush(ctx context.Context) error {
	snap := r.eng.Snapshot()
	if r.snapshotPath != "" {
		if err := SaveSnapshot(r.snapshotPath, snap); err != nil {
			return err
		}
	}
	if r.journal != nil {
		n, err := r.journal.Sync(ctx, snap.Continuity.History)
		if err != nil {
			return err
		}
		if n > 0 {
			r.logger.Debug("persist: journal synced", slog.Int("scenes", n))
		}
	}
	return nil
}

// Run flushes after every engine event until ctx is cancelled or the event
// stream closes. Flush errors are logged, not returned.
func (r *Recorder) Run(ctx context.Context) error {
	events := r.eng.Events()
	for {
		select {
		case <-ctx.Done():
			return r.Flush(context.WithoutCancel(ctx))
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Flush(ctx); err != nil {
				r.logger.Error("persist: flush failed",
					slog.String("event", ev.String()),
					slog.String("error", err.Error()))
			}
		}
	}
}
