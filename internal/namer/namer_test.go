package namer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/scan"
)

func testItem(title, id string) scan.Item {
	return scan.Item{
		ID:           id,
		Title:        title,
		CanonicalURL: "https://example.com/tracks/" + id,
		ContainerURL: "https://example.com/artist/tracks",
	}
}

func TestResolve_DottedTitleKeepsExtensionDot(t *testing.T) {
	// Title "a.b.c" with pattern title_id: the interior dots stay in the
	// filename and the result ends in exactly one extension separator
	// followed by the resolved extension.
	r := NewResolver(config.DownloadsConfig{
		Root:   config.RootDefault,
		Folder: "Rips",
		Naming: config.NamingTitleID,
	})

	got := r.Resolve(testItem("a.b.c", "42"), "https://cdn.example.com/a.mp3")

	assert.Equal(t, "Rips/a.b.c - 42.mp3", got)
	assert.True(t, strings.HasSuffix(got, ".mp3"))
	assert.False(t, strings.HasSuffix(got, "..mp3"))
}

func TestResolve_NamingPatterns(t *testing.T) {
	item := testItem("Night Drive", "31337")
	tests := []struct {
		naming config.Naming
		want   string
	}{
		{config.NamingTitleID, "Rips/Night Drive - 31337.mp3"},
		{config.NamingIDTitle, "Rips/31337 - Night Drive.mp3"},
		{config.NamingTitleOnly, "Rips/Night Drive.mp3"},
		{config.NamingIDOnly, "Rips/31337.mp3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.naming), func(t *testing.T) {
			r := NewResolver(config.DownloadsConfig{Folder: "Rips", Naming: tt.naming})
			assert.Equal(t, tt.want, r.Resolve(item, ""))
		})
	}
}

func TestResolve_RootSegments(t *testing.T) {
	item := testItem("Song", "1001")
	tests := []struct {
		root   config.Root
		custom string
		prefix string
	}{
		{config.RootDefault, "", "Rips/"},
		{config.RootDesktop, "", "Desktop/Rips/"},
		{config.RootDocuments, "", "Documents/Rips/"},
		{config.RootMusic, "", "Music/Rips/"},
		{config.RootCustom, "audio/incoming", "audio/incoming/Rips/"},
	}
	for _, tt := range tests {
		t.Run(string(tt.root), func(t *testing.T) {
			r := NewResolver(config.DownloadsConfig{
				Root:       tt.root,
				CustomRoot: tt.custom,
				Folder:     "Rips",
				Naming:     config.NamingTitleOnly,
			})
			got := r.Resolve(item, "")
			assert.True(t, strings.HasPrefix(got, tt.prefix), "got %q, want prefix %q", got, tt.prefix)
		})
	}
}

func TestResolve_GroupBySource(t *testing.T) {
	r := NewResolver(config.DownloadsConfig{
		Folder:        "Rips",
		GroupBySource: true,
		Naming:        config.NamingTitleOnly,
	})

	got := r.Resolve(testItem("Song", "1001"), "")
	assert.Equal(t, "Rips/artist-tracks/Song.mp3", got)
}

func TestResolve_ExtensionFromDeliveredURL(t *testing.T) {
	r := NewResolver(config.DownloadsConfig{Folder: "Rips", Naming: config.NamingTitleOnly})
	item := testItem("Song", "1001")

	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/a.ogg", ".ogg"},
		{"https://cdn.example.com/a.flac?token=x", ".flac"},
		{"https://cdn.example.com/stream", ".mp3"},
		{"https://cdn.example.com/a.exe", ".mp3"},
		{"", ".mp3"},
	}
	for _, tt := range tests {
		got := r.Resolve(item, tt.url)
		assert.True(t, strings.HasSuffix(got, tt.want), "url %q: got %q, want suffix %q", tt.url, got, tt.want)
	}
}

func TestResolve_DirtyFolderAndTitle(t *testing.T) {
	r := NewResolver(config.DownloadsConfig{
		Folder: "My/Ri:ps",
		Naming: config.NamingTitleID,
	})

	got := r.Resolve(testItem(`Wh<at:"is|this?`, "77"), "")
	// Folder separators replaced; filename keeps only safe characters;
	// extension intact.
	assert.Equal(t, "My Ri ps/Wh at is this - 77.mp3", got)
}

func TestResolve_EmptyTitleSynthesized(t *testing.T) {
	r := NewResolver(config.DownloadsConfig{Folder: "Rips", Naming: config.NamingTitleOnly})
	got := r.Resolve(testItem("...", "88"), "")
	assert.Equal(t, "Rips/Item 88.mp3", got)
}

func TestFlatten_PreservesExtension(t *testing.T) {
	// {root: R, folder: F, file: a.b.mp3} flattened must still end in .mp3.
	got := Flatten("R/F/a.b.mp3")
	assert.Equal(t, "R_F_a.b.mp3", got)
	assert.True(t, strings.HasSuffix(got, ".mp3"))
}

func TestFlatten_SkipsEmptySegments(t *testing.T) {
	assert.Equal(t, "R_F_x.mp3", Flatten("R//F/x.mp3"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a.b.c", "a.b.c"},
		{"Beyoncé", "Beyonce"},
		{"bad/name\\here", "bad name here"},
		{"dots...everywhere", "dots.everywhere"},
		{"  trimmed .", "trimmed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeSegment_ReplacesDots(t *testing.T) {
	assert.Equal(t, "v1 2 release", SanitizeSegment("v1.2 release"))
	assert.Equal(t, "a b", SanitizeSegment("a/b"))
}
