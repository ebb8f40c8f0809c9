// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dusk-indust/narrative/internal/config"
)

// ParseLevel maps a level name to a slog level. Unknown names are Info.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New returns a logger writing to w: JSON lines for the json format, a
// human-oriented console handler otherwise.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)
	if cfg.Format == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           log.Level(level),
	}))
}
