// Package namer turns item records and download settings into sanitized
// target paths for the native download subsystem.
package namer

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/scan"
)

// DefaultExtension is used when the delivered URL carries no recognizable
// audio suffix.
const DefaultExtension = "mp3"

// knownExtensions are the audio suffixes accepted from a delivered URL.
var knownExtensions = map[string]bool{
	"mp3": true, "m4a": true, "ogg": true, "wav": true,
	"flac": true, "aac": true, "opus": true,
}

// rootSegments maps the destination root enum to its leading path segment.
var rootSegments = map[config.Root]string{
	config.RootDefault:   "",
	config.RootDesktop:   "Desktop",
	config.RootDocuments: "Documents",
	config.RootMusic:     "Music",
}

// Resolver builds structured paths from one immutable settings snapshot.
type Resolver struct {
	cfg config.DownloadsConfig
}

// NewResolver creates a resolver over a per-run settings snapshot.
func NewResolver(cfg config.DownloadsConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve computes [root]/[folder]/[group?]/[filename.ext] for item. The
// deliveredURL supplies the extension; the result is guaranteed to end in
// a literal dot followed by the resolved extension.
func (r *Resolver) Resolve(item scan.Item, deliveredURL string) string {
	ext := extensionFrom(deliveredURL)

	var segments []string
	if r.cfg.Root == config.RootCustom {
		if root := strings.Trim(r.cfg.CustomRoot, "/"); root != "" {
			segments = append(segments, root)
		}
	} else if seg := rootSegments[r.cfg.Root]; seg != "" {
		segments = append(segments, seg)
	}
	if folder := SanitizeSegment(r.cfg.Folder); folder != "" {
		segments = append(segments, folder)
	}
	if r.cfg.GroupBySource {
		if group := sourceGroup(item.ContainerURL); group != "" {
			segments = append(segments, group)
		}
	}
	segments = append(segments, r.filename(item, ext))
	return path.Join(segments...)
}

// filename applies the naming pattern to the sanitized title and id.
// Only structurally dangerous characters are removed from the filename;
// interior dots survive, and the extension dot is appended last so it can
// never be rewritten by sanitization.
func (r *Resolver) filename(item scan.Item, ext string) string {
	title := SanitizeFilename(item.Title)
	if title == "" {
		title = fmt.Sprintf("Item %s", item.ID)
	}
	id := SanitizeFilename(item.ID)

	var base string
	switch r.cfg.Naming {
	case config.NamingIDTitle:
		base = id + " - " + title
	case config.NamingTitleOnly:
		base = title
	case config.NamingIDOnly:
		base = id
	default: // config.NamingTitleID
		base = title + " - " + id
	}
	return base + "." + ext
}

// Flatten joins every path segment with a single separator-safe character.
// Used as the one retry when the download subsystem rejects a structured
// path. The terminal extension dot is part of the final segment and is
// preserved as-is.
func Flatten(structured string) string {
	parts := strings.Split(structured, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}

// extensionFrom pulls a known audio suffix off the delivered URL, falling
// back to the primary expected extension.
func extensionFrom(deliveredURL string) string {
	u, err := url.Parse(deliveredURL)
	if err != nil {
		return DefaultExtension
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if knownExtensions[ext] {
		return ext
	}
	return DefaultExtension
}

// sourceGroup derives a directory segment from the listing page identity.
func sourceGroup(containerURL string) string {
	u, err := url.Parse(containerURL)
	if err != nil || u.Host == "" {
		return SanitizeSegment(containerURL)
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return SanitizeSegment(u.Host)
	}
	return SanitizeSegment(strings.ReplaceAll(trimmed, "/", "-"))
}
