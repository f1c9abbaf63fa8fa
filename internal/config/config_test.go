package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AllFields(t *testing.T) {
	path := writeConfig(t, `
[site]
listing_url = "https://example.com/artist/tracks"

[downloads]
root = "music-library"
folder = "My Rips"
group_by_source = true
naming = "id_title"
delay_seconds = 5

[state]
path = "/tmp/state.db"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/artist/tracks", cfg.Site.ListingURL)
	assert.Equal(t, RootMusic, cfg.Downloads.Root)
	assert.Equal(t, "My Rips", cfg.Downloads.Folder)
	assert.True(t, cfg.Downloads.GroupBySource)
	assert.Equal(t, NamingIDTitle, cfg.Downloads.Naming)
	assert.Equal(t, 5, cfg.Downloads.DelaySeconds)
	assert.Equal(t, "/tmp/state.db", cfg.State.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
[site]
listing_url = "https://example.com/artist/tracks"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RootDefault, cfg.Downloads.Root)
	assert.Equal(t, "TuneGrab", cfg.Downloads.Folder)
	assert.Equal(t, NamingTitleID, cfg.Downloads.Naming)
	assert.Equal(t, 3, cfg.Downloads.DelaySeconds)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad listing url",
			mutate:  func(c *Config) { c.Site.ListingURL = "not a url" },
			wantErr: "listing_url",
		},
		{
			name:    "unknown root",
			mutate:  func(c *Config) { c.Downloads.Root = "floppy" },
			wantErr: "downloads.root",
		},
		{
			name:    "custom root without path",
			mutate:  func(c *Config) { c.Downloads.Root = RootCustom },
			wantErr: "custom_root",
		},
		{
			name: "custom root with path",
			mutate: func(c *Config) {
				c.Downloads.Root = RootCustom
				c.Downloads.CustomRoot = "/mnt/audio"
			},
		},
		{
			name:    "unknown naming",
			mutate:  func(c *Config) { c.Downloads.Naming = "artist_title" },
			wantErr: "naming",
		},
		{
			name:    "empty folder",
			mutate:  func(c *Config) { c.Downloads.Folder = "" },
			wantErr: "folder",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Downloads.DelaySeconds = -1 },
			wantErr: "delay_seconds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
