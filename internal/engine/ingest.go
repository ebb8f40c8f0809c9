package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/dependency"
	"github.com/dusk-indust/narrative/internal/foreshadow"
)

// RevealReport is a reveal detected in a scene.
type RevealReport struct {
	Element  string `json:"element"`
	Note     string `json:"note,omitempty"`
	Override bool   `json:"override,omitempty"`
}

// Report is everything the generation collaborator reports after writing a
// unit. Echoes and reveals happen in the scene's unit.
type Report struct {
	Scene    continuity.SceneState     `json:"scene"`
	Plants   []foreshadow.PlantRequest `json:"plants,omitempty"` // plant unit defaults to the scene's
	Echoes   []string                  `json:"echoes,omitempty"` // element ids
	Reveals  []RevealReport            `json:"reveals,omitempty"`
	Resolved []dependency.EdgeID       `json:"resolved,omitempty"`
}

// IngestResult describes what a report changed.
type IngestResult struct {
	Scene        continuity.SceneState `json:"scene"`
	Planted      []string              `json:"planted,omitempty"`
	AutoResolved []dependency.EdgeID   `json:"autoResolved,omitempty"`
}

// Ingest applies a scene report atomically: the exit state is committed,
// plants, echoes and reveals are applied, and listed edges are resolved.
// The whole report is checked before any state changes; a report that
// fails a check leaves every component untouched.
func (e *Engine) Ingest(ctx context.Context, r Report) (IngestResult, error) {
	e.mu.Lock()
	res, err := e.ingestLocked(ctx, r)
	e.mu.Unlock()
	if err != nil {
		return IngestResult{}, err
	}
	e.emit(OpCommit, res.Scene.Unit, res.Scene.Seq)
	return res, nil
}

func (e *Engine) ingestLocked(ctx context.Context, r Report) (IngestResult, error) {
	unit := r.Scene.Unit
	if err := e.checkLocked(ctx, r); err != nil {
		e.logger.Debug("engine: report rejected", slog.String("unit", unit), slog.String("error", err.Error()))
		return IngestResult{}, err
	}

	// Only failures the checks cannot foresee reach the rollback.
	before := e.snapshotLocked()
	res, err := e.applyLocked(ctx, r)
	if err != nil {
		if rerr := e.restoreLocked(ctx, before); rerr != nil {
			e.logger.Error("engine: rollback failed", slog.String("unit", unit), slog.String("error", rerr.Error()))
			return IngestResult{}, errors.Join(err, rerr)
		}
		e.logger.Warn("engine: report rolled back", slog.String("unit", unit), slog.String("error", err.Error()))
		return IngestResult{}, err
	}
	e.logger.Debug("engine: report ingested",
		slog.String("unit", unit),
		slog.Int("seq", res.Scene.Seq),
		slog.Int("planted", len(res.Planted)),
		slog.Int("echoes", len(r.Echoes)),
		slog.Int("reveals", len(r.Reveals)))
	return res, nil
}

// checkLocked runs every precondition of applyLocked without mutating.
func (e *Engine) checkLocked(ctx context.Context, r Report) error {
	if err := e.continuity.CheckExit(r.Scene); err != nil {
		return err
	}
	batch := foreshadow.Batch{Unit: r.Scene.Unit, Plants: r.Plants, Echoes: r.Echoes}
	for _, rv := range r.Reveals {
		batch.Reveals = append(batch.Reveals, foreshadow.RevealRequest{Element: rv.Element, Override: rv.Override})
	}
	if err := e.foreshadow.CheckBatch(ctx, batch); err != nil {
		return err
	}
	for _, id := range r.Resolved {
		if _, ok := e.deps.Edge(id); !ok {
			return apperr.NotFound("edge", fmt.Sprint(id))
		}
	}
	return nil
}

func (e *Engine) applyLocked(ctx context.Context, r Report) (IngestResult, error) {
	var res IngestResult
	unit := r.Scene.Unit

	for _, p := range r.Plants {
		if p.PlantUnit == "" {
			p.PlantUnit = unit
		}
		el, err := e.foreshadow.Plant(ctx, p)
		if err != nil {
			return res, err
		}
		res.Planted = append(res.Planted, el.ID)
	}

	scene, err := e.continuity.CommitExit(r.Scene)
	if err != nil {
		return res, err
	}
	res.Scene = scene

	for _, id := range r.Echoes {
		if err := e.foreshadow.Echo(ctx, id, unit); err != nil {
			return res, err
		}
	}
	for _, rv := range r.Reveals {
		if err := e.foreshadow.Reveal(ctx, rv.Element, unit, rv.Note, rv.Override); err != nil {
			return res, err
		}
	}
	for _, id := range r.Resolved {
		if err := e.deps.Resolve(id, "resolved in "+unit); err != nil {
			return res, err
		}
	}
	if e.opts.AutoResolveOnCommit {
		res.AutoResolved = e.deps.ResolveOutgoing(unit, "unit "+unit+" committed")
	}
	return res, nil
}
