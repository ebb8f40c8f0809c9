// Package watch ingests scene-report files dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	ProcessedDir = "processed"
	RejectedDir  = "rejected"

	// settle is how long a file must stay quiet before it is read, so a
	// report written in several chunks is ingested once.
	settle = 150 * time.Millisecond
)

// IngestFunc applies one report file's contents.
type IngestFunc func(ctx context.Context, data []byte) error

// EventCallback is called after a file has been handled.
// kind is "processed" or "rejected".
type EventCallback func(kind string, name string)

// Watch ingests every *.json file in dir, then watches dir for new or
// rewritten files until ctx is cancelled. Ingested files move to
// dir/processed; files that fail move to dir/rejected next to a .err file
// holding the error text.
func Watch(ctx context.Context, dir string, ingest IngestFunc, logger *slog.Logger, cb EventCallback) error {
	for _, sub := range []string{ProcessedDir, RejectedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("watch: create %s: %w", sub, err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: new watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}
	logger.Info("watcher: started", slog.String("dir", dir))

	backlog, err := pendingReports(dir)
	if err != nil {
		return err
	}
	for _, path := range backlog {
		handle(ctx, dir, path, ingest, logger, cb)
	}

	timers := make(map[string]*time.Timer)
	ready := make(chan string, 16)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case path := <-ready:
			delete(timers, path)
			handle(ctx, dir, path, ingest, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isReport(ev.Name) {
				continue
			}
			path := ev.Name
			if t, ok := timers[path]; ok {
				t.Reset(settle)
				continue
			}
			timers[path] = time.AfterFunc(settle, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isReport(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}

// pendingReports lists report files already sitting in dir, oldest name first.
func pendingReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && isReport(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func handle(ctx context.Context, dir, path string, ingest IngestFunc, logger *slog.Logger, cb EventCallback) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}

	kind := ProcessedDir
	ingestErr := ingest(ctx, data)
	if ingestErr != nil {
		kind = RejectedDir
		logger.Warn("watcher: report rejected", slog.String("file", name), slog.String("error", ingestErr.Error()))
	}

	dest := filepath.Join(dir, kind, name)
	if err := os.Rename(path, dest); err != nil {
		logger.Error("watcher: move failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	if ingestErr != nil {
		if err := os.WriteFile(dest+".err", []byte(ingestErr.Error()+"\n"), 0o644); err != nil {
			logger.Warn("watcher: write error note failed", slog.String("file", name), slog.String("error", err.Error()))
		}
	} else {
		logger.Debug("watcher: report ingested", slog.String("file", name))
	}
	if cb != nil {
		cb(kind, name)
	}
}
