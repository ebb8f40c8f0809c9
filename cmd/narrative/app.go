package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dusk-indust/narrative/internal/config"
	"github.com/dusk-indust/narrative/internal/engine"
	"github.com/dusk-indust/narrative/internal/graph"
	"github.com/dusk-indust/narrative/internal/logging"
	"github.com/dusk-indust/narrative/internal/persist"
)

// app is an engine opened from project configuration, with its
// persistence attached.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    graph.Store
	eng      *engine.Engine
	journal  *persist.Journal
	recorder *persist.Recorder
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("dir"))
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// openApp builds the engine and restores the last snapshot.
func openApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log, os.Stderr)

	store, err := graph.Open(cfg.Store.Backend, cfg.Store.KuzuPath)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("graph: init schema: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	a.eng = engine.New(store, cfg.Options(), logger)

	if cfg.Store.SnapshotPath != "" {
		resumed, err := persist.Resume(ctx, a.eng, cfg.Store.SnapshotPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		if resumed {
			logger.Info("engine: resumed", slog.String("snapshot", cfg.Store.SnapshotPath))
		}
	}
	if cfg.Store.JournalPath != "" {
		a.journal, err = persist.OpenJournal(cfg.Store.JournalPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		last, err := a.journal.LastSeq(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		if committed := len(a.eng.History()); last > committed {
			logger.Warn("persist: journal is ahead of the snapshot",
				slog.Int("journal", last),
				slog.Int("snapshot", committed))
		}
	}
	a.recorder = persist.NewRecorder(a.eng, cfg.Store.SnapshotPath, a.journal, logger)
	return a, nil
}

// Close releases the engine, journal and graph store.
func (a *app) Close() error {
	a.eng.Close()
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
