package scan

import (
	"strings"

	"github.com/tunegrab/tunegrab/internal/page"
)

// Selectors for the listing markup, most specific first. The site ships
// several coexisting versions of its row markup, so extraction falls back
// through these in tiers.
const (
	// selTrackRow is the most specific known selector for target rows.
	selTrackRow = "li.track-row"
	// selGenericCell matches the generic listing container shared by
	// target and decoy content alike.
	selGenericCell = "li.listing-cell, div.listing-cell"
	// selCandidates is the cheap counting selector used by the loader.
	selCandidates = selTrackRow + ", " + selGenericCell
	// selManualScan bounds the tier-4 sweep of generic containers.
	selManualScan = "li, article"

	selPlayback = ".play-button, [aria-label*='Play'], .duration, time"
	selAnchor   = "a"
	selTitle    = ".track-title"
	selPreview  = "img"
)

// selLoose holds progressively looser pattern selectors tried at tier 3.
var selLoose = []string{
	"[data-asset-kind='track']",
	"li[class*='track']",
	"div[class*='sound']",
}

// selGenericTitle lists fallback label selectors tried after selTitle.
var selGenericTitle = []string{".title", ".label", "h3 a", "h2 a"}

// targetSegments are URL path fragments that identify target content.
var targetSegments = []string{"/tracks/", "/track/", "/sounds/"}

// decoySegments identify alternate-media content that must not be
// extracted even when it shares the listing container markup.
var decoySegments = []string{"/playlists/", "/albums/", "/sets/", "/videos/"}

// decoyWords are descriptive-text decoy indicators.
var decoyWords = []string{"playlist", "album compilation"}

// CandidateNodes returns the listing containers that may hold items, in
// document order. The download orchestrator uses it to re-locate an item's
// container on the listing view.
func CandidateNodes(v page.View) []page.Node {
	return v.Query(selCandidates)
}

// Classifier separates target content from decoy content. Classify is the
// cheap check the loader uses for counting; the extractor reuses it when a
// tier falls back to generic containers.
type Classifier struct{}

// Classify reports whether node looks like target content. Signals are
// checked strongest first: a target URL match wins outright, a decoy
// indicator excludes the node before the weaker markup and playback
// signals are consulted, and absence of all signals classifies false.
func (Classifier) Classify(n page.Node) bool {
	if hasTargetURL(n) {
		return true
	}
	if isDecoy(n) {
		return false
	}
	if hasMarkupHint(n) {
		return true
	}
	return hasPlaybackAffordance(n)
}

func hasTargetURL(n page.Node) bool {
	for _, a := range n.Find(selAnchor) {
		href, ok := a.Attr("href")
		if !ok {
			continue
		}
		for _, seg := range targetSegments {
			if strings.Contains(href, seg) {
				return true
			}
		}
	}
	return false
}

func isDecoy(n page.Node) bool {
	for _, a := range n.Find(selAnchor) {
		href, ok := a.Attr("href")
		if !ok {
			continue
		}
		for _, seg := range decoySegments {
			if strings.Contains(href, seg) {
				return true
			}
		}
	}
	text := strings.ToLower(n.Text())
	for _, w := range decoyWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func hasMarkupHint(n page.Node) bool {
	if kind, ok := n.Attr("data-asset-kind"); ok && kind == "track" {
		return true
	}
	if class, ok := n.Attr("class"); ok {
		if strings.Contains(class, "track") || strings.Contains(class, "sound") {
			return true
		}
	}
	return false
}

func hasPlaybackAffordance(n page.Node) bool {
	return len(n.Find(selPlayback)) > 0
}
