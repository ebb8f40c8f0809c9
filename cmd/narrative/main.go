package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("narrative error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "narrative",
		Usage:   "Dependency, foreshadowing and continuity tracking for long-form generated stories",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"C"},
				Usage:   "Project directory holding narrative.yml",
				Value:   ".",
				Sources: cli.EnvVars("NARRATIVE_DIR"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			watchCommand(),
			ingestCommand(),
			auditCommand(),
			orderCommand(),
			statusCommand(),
			exportCommand(),
			schemaCommand(),
			historyCommand(),
		},
	}
}
