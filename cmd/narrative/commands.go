package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/narrative/internal/continuity"
	"github.com/dusk-indust/narrative/internal/export"
	"github.com/dusk-indust/narrative/internal/mcptools"
	"github.com/dusk-indust/narrative/internal/report"
	"github.com/dusk-indust/narrative/internal/status"
	"github.com/dusk-indust/narrative/internal/watch"
)

// stdout receives command output.
var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the MCP tools, watch the report directory and persist state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address; stdio when empty (overrides mcp.addr)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.MCP.Addr
			if cmd.IsSet("addr") {
				addr = cmd.String("addr")
			}
			server := mcptools.NewServer(mcptools.NewService(a.eng))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, gCtx := errgroup.WithContext(ctx)

			g.Go(func() error { return a.recorder.Run(gCtx) })

			if dir := a.cfg.Watch.Dir; dir != "" {
				g.Go(func() error { return runWatcher(gCtx, a, dir) })
			}

			g.Go(func() error {
				defer stop()
				if addr == "" {
					return mcptools.RunStdio(gCtx, server)
				}
				return mcptools.RunHTTP(gCtx, server, addr, a.logger)
			})

			if err := g.Wait(); err != nil {
				a.logger.Error("serve: stopped with error", slog.String("error", err.Error()))
				return err
			}
			a.logger.Info("serve: stopped")
			return nil
		},
	}
}

func runWatcher(ctx context.Context, a *app, dir string) error {
	return watch.Watch(ctx, dir, func(ctx context.Context, data []byte) error {
		res, err := report.Apply(ctx, a.eng, data)
		if err != nil {
			return err
		}
		a.logger.Info("watch: scene committed", slog.String("unit", res.Scene.Unit), slog.Int("seq", res.Scene.Seq))
		return nil
	}, a.logger, nil)
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Ingest scene-report files dropped into a directory",
		ArgsUsage: "[dir]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := a.cfg.Watch.Dir
			if cmd.Args().Present() {
				dir = cmd.Args().First()
			}
			if dir == "" {
				return fmt.Errorf("usage: narrative watch <dir> (or set watch.dir)")
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.recorder.Run(gCtx) })
			g.Go(func() error { return runWatcher(gCtx, a, dir) })
			return g.Wait()
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Apply scene-report files in order",
		ArgsUsage: "<report.json>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("usage: narrative ingest <report.json>...")
			}
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				res, err := report.Apply(ctx, a.eng, data)
				if err != nil {
					return fmt.Errorf("%s: %w", filepath.Base(path), err)
				}
				fmt.Fprintf(stdout, "%s: committed %s (seq %d)\n", filepath.Base(path), res.Scene.Unit, res.Scene.Seq)
			}
			return a.recorder.Flush(ctx)
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit foreshadow chains against the current story position",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			rep := a.eng.Audit()
			if err := printJSON(rep); err != nil {
				return err
			}
			if rep.Total > 0 && rep.CompletionRate < rep.Threshold && len(rep.PendingReveal) > 0 {
				return fmt.Errorf("foreshadow completion %.2f below %.2f", rep.CompletionRate, rep.Threshold)
			}
			return nil
		},
	}
}

func orderCommand() *cli.Command {
	return &cli.Command{
		Name:      "order",
		Usage:     "Print a generation order honoring every dependency",
		ArgsUsage: "[unit]...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			order, err := a.eng.ExecutionOrder(ctx, cmd.Args().Slice())
			if err != nil {
				return err
			}
			for _, id := range order {
				fmt.Fprintln(stdout, id)
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Summarize story progress",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := status.Summarize(ctx, a.eng)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the dependency graph and foreshadow audit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json or mermaid", Value: "json"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			switch cmd.String("format") {
			case "mermaid":
				_, err := fmt.Fprint(stdout, export.GenerateMermaid(a.eng.Snapshot()))
				return err
			case "json":
				return export.WriteJSON(stdout, export.ExportStory(a.eng, time.Now()))
			default:
				return fmt.Errorf("unknown export format %q", cmd.String("format"))
			}
		},
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the JSON schema of the scene report",
		Action: func(_ context.Context, _ *cli.Command) error {
			data, err := report.SchemaJSON()
			if err != nil {
				return err
			}
			_, err = stdout.Write(append(data, '\n'))
			return err
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print the committed scenes recorded in the history journal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "unit", Usage: "Only print the scene committed for this unit"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.journal == nil {
				return fmt.Errorf("no history journal configured (set store.journalPath)")
			}
			scenes, err := a.journal.Replay(ctx)
			if err != nil {
				return err
			}
			if unit := cmd.String("unit"); unit != "" {
				kept := scenes[:0]
				for _, sc := range scenes {
					if sc.Unit == unit {
						kept = append(kept, sc)
					}
				}
				scenes = kept
			}
			if scenes == nil {
				scenes = []continuity.SceneState{}
			}
			return printJSON(scenes)
		},
	}
}
