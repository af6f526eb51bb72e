// Package config loads the eos-updater configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"

	"github.com/blackwell-systems/eos-updater/internal/backend"
	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/critical"
	"github.com/blackwell-systems/eos-updater/internal/pipeline"
)

const appName = "eos-updater"

// DefaultHistoryKeep is how many runs the history keeps by default.
const DefaultHistoryKeep = 200

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the parsed config.toml.
type Config struct {
	// LogPath is the pacman transaction log.
	LogPath string `toml:"log_path"`
	// CancelPolicy is "wait" or "interrupt".
	CancelPolicy    string                   `toml:"cancel_policy"`
	SnapshotCommand []string                 `toml:"snapshot_command"`
	SummaryLimit    int                      `toml:"summary_limit"`
	HistoryKeep     int                      `toml:"history_keep"`
	Backends        map[string]BackendConfig `toml:"backends"`
	Critical        CriticalConfig           `toml:"critical"`
}

// BackendConfig overrides one catalog row.
type BackendConfig struct {
	Enabled *bool    `toml:"enabled"`
	Label   string   `toml:"label"`
	Query   []string `toml:"query"`
	Install []string `toml:"install"`
}

// CriticalConfig adds to the built-in reboot rules.
type CriticalConfig struct {
	Exact    []string `toml:"exact"`
	Prefixes []string `toml:"prefixes"`
}

// Dir returns the eos-updater config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/eos-updater if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// StateDir holds the history database and the diagnostic log.
func StateDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+appName), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogPath:      changelog.DefaultPath,
		CancelPolicy: string(pipeline.CancelWait),
		SummaryLimit: pipeline.DefaultSummaryLimit,
		HistoryKeep:  DefaultHistoryKeep,
	}
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes and validates config TOML. Unknown keys are rejected so that
// typos do not silently fall back to defaults. source names the data in
// errors.
func Parse(data []byte, source string) (*Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, source, err)
	}

	if cfg.LogPath == "" {
		cfg.LogPath = changelog.DefaultPath
	}
	if cfg.CancelPolicy == "" {
		cfg.CancelPolicy = string(pipeline.CancelWait)
	}
	expanded, err := homedir.Expand(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: log_path: %v", ErrInvalid, source, err)
	}
	cfg.LogPath = expanded

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, source, err)
	}
	return cfg, nil
}

// Validate checks values that decode cleanly but make no sense.
func (c *Config) Validate() error {
	if _, err := pipeline.ParseCancelPolicy(c.CancelPolicy); err != nil {
		return err
	}
	if c.SummaryLimit < 0 {
		return fmt.Errorf("summary_limit must not be negative, got %d", c.SummaryLimit)
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("history_keep must not be negative, got %d", c.HistoryKeep)
	}
	for id, b := range c.Backends {
		if !slices.Contains(backend.IDs(), id) {
			return fmt.Errorf("unknown backend %q (known: %v)", id, backend.IDs())
		}
		if b.Query != nil && len(b.Query) == 0 {
			return fmt.Errorf("backends.%s.query must not be empty", id)
		}
		if b.Install != nil && len(b.Install) == 0 {
			return fmt.Errorf("backends.%s.install must not be empty", id)
		}
	}
	return nil
}

// Catalog builds the backend catalog with the configured overrides and
// enabled flags applied.
func (c *Config) Catalog() (*backend.Catalog, error) {
	overrides := make(map[string]backend.Override, len(c.Backends))
	for id, b := range c.Backends {
		overrides[id] = backend.Override{Label: b.Label, Query: b.Query, Install: b.Install}
	}
	cat, err := backend.NewCatalog(overrides)
	if err != nil {
		return nil, err
	}
	for id, b := range c.Backends {
		if b.Enabled == nil {
			continue
		}
		if err := cat.SetEnabled(id, *b.Enabled); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// Classifier returns the reboot classifier with the configured additions.
func (c *Config) Classifier() *critical.Classifier {
	return critical.New(c.Critical.Exact, c.Critical.Prefixes)
}
