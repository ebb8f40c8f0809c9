// Package config loads project settings from narrative.yml, with
// NARRATIVE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/narrative/internal/engine"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NARRATIVE_"

// Store backends.
const (
	BackendMemory = "memory"
	BackendKuzu   = "kuzu"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds project-level settings.
type Config struct {
	Engine EngineConfig `yaml:"engine" envPrefix:"ENGINE_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
	Store  StoreConfig  `yaml:"store" envPrefix:"STORE_"`
	MCP    MCPConfig    `yaml:"mcp" envPrefix:"MCP_"`
	Watch  WatchConfig  `yaml:"watch" envPrefix:"WATCH_"`
}

// EngineConfig holds the engine tunables. Both thresholds must lie in (0, 1].
type EngineConfig struct {
	BrokenChainThreshold  float64 `yaml:"brokenChainThreshold" env:"BROKEN_CHAIN_THRESHOLD"`
	VariantMatchThreshold float64 `yaml:"variantMatchThreshold" env:"VARIANT_MATCH_THRESHOLD"`
	AutoResolveOnCommit   bool    `yaml:"autoResolveOnCommit" env:"AUTO_RESOLVE_ON_COMMIT"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// StoreConfig selects the graph backend and persistence paths. Empty
// paths disable the corresponding persistence.
type StoreConfig struct {
	Backend      string `yaml:"backend" env:"BACKEND"`
	KuzuPath     string `yaml:"kuzuPath" env:"KUZU_PATH"`
	SnapshotPath string `yaml:"snapshotPath" env:"SNAPSHOT_PATH"`
	JournalPath  string `yaml:"journalPath" env:"JOURNAL_PATH"`
}

// MCPConfig configures the MCP server. An empty Addr serves on stdio.
type MCPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// WatchConfig configures the report drop directory.
type WatchConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := engine.DefaultOptions()
	return &Config{
		Engine: EngineConfig{
			BrokenChainThreshold:  opts.BrokenChainThreshold,
			VariantMatchThreshold: opts.VariantMatchThreshold,
			AutoResolveOnCommit:   opts.AutoResolveOnCommit,
		},
		Log:   LogConfig{Level: "info", Format: FormatConsole},
		Store: StoreConfig{Backend: BackendMemory, SnapshotPath: filepath.Join(".narrative", "snapshot.json")},
	}
}

// Load reads narrative.yml or narrative.yaml from dir over the defaults.
// Environment variables in the file are expanded. A missing file yields
// the defaults, not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"narrative.yml", "narrative.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	return cfg, nil
}

// ApplyEnv overlays NARRATIVE_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Options converts the engine section into engine options.
func (c *Config) Options() engine.Options {
	return engine.Options{
		BrokenChainThreshold:  c.Engine.BrokenChainThreshold,
		VariantMatchThreshold: c.Engine.VariantMatchThreshold,
		AutoResolveOnCommit:   c.Engine.AutoResolveOnCommit,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BrokenChainThreshold, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
		validation.Field(&c.VariantMatchThreshold, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
	)
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.Required, validation.In(FormatJSON, FormatConsole)),
	)
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendKuzu)),
		validation.Field(&c.KuzuPath, validation.When(c.Backend == BackendKuzu, validation.Required)),
	)
}
