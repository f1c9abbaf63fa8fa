// Package scan discovers audio assets on a lazily rendered listing page.
//
// It has two halves: the incremental loader, which coaxes the page into
// rendering everything it is going to render, and the tiered extractor,
// which turns the ambiguous markup that results into normalized item
// records with stable identities.
package scan

import (
	"fmt"
	"regexp"
	"time"
)

// Item is the normalized record for one discovered asset. Immutable after
// extraction; the download orchestrator consumes it without mutating it.
type Item struct {
	// ID is derived from a numeric token in the canonical URL when one is
	// recoverable, otherwise synthesized. Pairwise distinct within one
	// scan; identity across scans is best-effort only.
	ID string
	// Title is never empty; a default is synthesized when the page gives none.
	Title string
	// CanonicalURL points at the item's own detail view. May be empty.
	CanonicalURL string
	// ContainerURL is the listing page the item was found on. Always set;
	// used as the navigation fallback.
	ContainerURL string
	// PreviewURL is a thumbnail reference. Never used as a download source.
	PreviewURL string
	// ExtractedAt is the capture timestamp, kept for diagnosing duplicate
	// and staleness issues.
	ExtractedAt time.Time
}

// numericToken matches the asset id embedded in a canonical URL.
var numericToken = regexp.MustCompile(`(\d{4,})`)

// idAllocator derives item ids, guaranteeing pairwise distinctness within
// one scan. URL-derived ids that collide force the synthesized fallback.
type idAllocator struct {
	seen    map[string]bool
	counter int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{seen: make(map[string]bool)}
}

func (a *idAllocator) allocate(canonicalURL string) string {
	if m := numericToken.FindStringSubmatch(canonicalURL); m != nil && !a.seen[m[1]] {
		a.seen[m[1]] = true
		return m[1]
	}
	for {
		a.counter++
		id := fmt.Sprintf("gen-%d-%d", a.counter, time.Now().Unix()/60)
		if !a.seen[id] {
			a.seen[id] = true
			return id
		}
	}
}
