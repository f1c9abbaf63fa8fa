// Package config handles TOML configuration loading and validation.
//
// The core treats configuration as an immutable snapshot per run: the
// orchestrator receives a copy of the Downloads section when a run starts
// and never reads the file again mid-run.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Root names the destination root the native download subsystem resolves
// paths against.
type Root string

const (
	RootDefault   Root = "default"
	RootDesktop   Root = "desktop"
	RootDocuments Root = "documents"
	RootMusic     Root = "music-library"
	RootCustom    Root = "custom"
)

// Naming selects how filenames are composed from an item's title and id.
type Naming string

const (
	NamingTitleID   Naming = "title_id"
	NamingIDTitle   Naming = "id_title"
	NamingTitleOnly Naming = "title_only"
	NamingIDOnly    Naming = "id_only"
)

// Config is the root configuration structure.
type Config struct {
	Site      SiteConfig      `toml:"site"`
	Downloads DownloadsConfig `toml:"downloads"`
	State     StateConfig     `toml:"state"`
	Log       LogConfig       `toml:"log"`
}

// SiteConfig locates the listing page to scan.
type SiteConfig struct {
	ListingURL string `toml:"listing_url"`
}

// DownloadsConfig is the per-run snapshot the orchestrator and resolver use.
type DownloadsConfig struct {
	Root          Root   `toml:"root"`
	CustomRoot    string `toml:"custom_root"`
	Folder        string `toml:"folder"`
	GroupBySource bool   `toml:"group_by_source"`
	Naming        Naming `toml:"naming"`
	// DelaySeconds is the lower bound for inter-item pacing. The
	// orchestrator adds jitter on top; it never goes below this.
	DelaySeconds int `toml:"delay_seconds"`
}

// StateConfig locates the durable run-state snapshot database.
type StateConfig struct {
	Path string `toml:"path"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Downloads: DownloadsConfig{
			Root:         RootDefault,
			Folder:       "TuneGrab",
			Naming:       NamingTitleID,
			DelaySeconds: 3,
		},
		State: StateConfig{Path: "tunegrab.db"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads and validates a TOML config file. Missing fields fall back to
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
