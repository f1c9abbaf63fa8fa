package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/tunegrab/tunegrab/internal/page"
	"github.com/tunegrab/tunegrab/internal/session"
)

// ErrExtractionEmpty means no qualifying nodes were found after all tiers.
// Surfaced as a warning to the operator, never as a crash.
var ErrExtractionEmpty = errors.New("no items found")

const (
	defaultBatchSize  = 25
	defaultManualScan = 200
)

// Extractor turns loaded listing markup into item records.
type Extractor struct {
	classifier Classifier
	reg        *session.Registry
	log        *slog.Logger

	batchSize  int
	manualScan int
	yield      func()
}

// NewExtractor creates an extractor bound to a session registry.
func NewExtractor(reg *session.Registry, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		reg:        reg,
		log:        log.With("component", "extractor"),
		batchSize:  defaultBatchSize,
		manualScan: defaultManualScan,
		yield:      runtime.Gosched,
	}
}

// CountCandidates is the loader's cheap measurement: how many nodes in the
// current view classify as target content.
func (e *Extractor) CountCandidates(v page.View) int {
	count := 0
	for _, n := range v.Query(selCandidates) {
		if e.classifier.Classify(n) {
			count++
		}
	}
	return count
}

// ExtractAll runs the tiered extraction over the current view. Each tier
// runs only if the previous produced zero qualifying nodes. Records failing
// basic validity are dropped, not substituted.
func (e *Extractor) ExtractAll(ctx context.Context, sid session.ID, v page.View) ([]Item, error) {
	if err := e.reg.Check(sid); err != nil {
		return nil, err
	}

	nodes, tier := e.collect(v)
	if len(nodes) == 0 {
		return nil, ErrExtractionEmpty
	}
	e.log.Debug("extraction tier selected", "tier", tier, "candidates", len(nodes))

	items, err := e.build(ctx, sid, v, nodes)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrExtractionEmpty
	}
	e.log.Info("extraction complete", "tier", tier, "items", len(items))
	return items, nil
}

// collect picks the first tier yielding any qualifying nodes.
func (e *Extractor) collect(v page.View) ([]page.Node, int) {
	// Tier 1: the most specific known row selector.
	if nodes := v.Query(selTrackRow); len(nodes) > 0 {
		return nodes, 1
	}

	// Tier 2: generic containers filtered through the classifier.
	if nodes := e.filter(v.Query(selGenericCell)); len(nodes) > 0 {
		return nodes, 2
	}

	// Tier 3: progressively looser pattern selectors.
	for _, sel := range selLoose {
		if nodes := e.filter(v.Query(sel)); len(nodes) > 0 {
			return nodes, 3
		}
	}

	// Tier 4: bounded manual sweep of generic containers.
	all := v.Query(selManualScan)
	if len(all) > e.manualScan {
		all = all[:e.manualScan]
	}
	return e.filter(all), 4
}

func (e *Extractor) filter(nodes []page.Node) []page.Node {
	var out []page.Node
	for _, n := range nodes {
		if e.classifier.Classify(n) {
			out = append(out, n)
		}
	}
	return out
}

// build converts nodes to records in bounded batches, yielding between
// batches so the host's UI thread is never starved, and re-checking the
// session at each batch boundary.
func (e *Extractor) build(ctx context.Context, sid session.ID, v page.View, nodes []page.Node) ([]Item, error) {
	ids := newIDAllocator()
	items := make([]Item, 0, len(nodes))

	for start := 0; start < len(nodes); start += e.batchSize {
		if err := e.reg.Check(sid); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, session.ErrCanceled
		default:
		}

		end := start + e.batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		for _, n := range nodes[start:end] {
			if item, ok := e.buildItem(n, v.Location(), ids); ok {
				items = append(items, item)
			}
		}
		e.yield()
	}
	return items, nil
}

// buildItem derives one record from one node. Returns false when the node
// fails basic validity (no anchor and no container URL).
func (e *Extractor) buildItem(n page.Node, containerURL string, ids *idAllocator) (Item, bool) {
	anchor := bestAnchor(n)
	if anchor == "" && containerURL == "" {
		return Item{}, false
	}
	canonical := resolveRef(containerURL, anchor)

	id := ids.allocate(canonical)
	item := Item{
		ID:           id,
		Title:        resolveTitle(n, id),
		CanonicalURL: canonical,
		ContainerURL: containerURL,
		PreviewURL:   previewRef(n),
		ExtractedAt:  time.Now(),
	}
	return item, true
}

// bestAnchor prefers a link into target content over the first plain link.
func bestAnchor(n page.Node) string {
	var first string
	for _, a := range n.Find(selAnchor) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			continue
		}
		if first == "" {
			first = href
		}
		for _, seg := range targetSegments {
			if strings.Contains(href, seg) {
				return href
			}
		}
	}
	return first
}

// resolveTitle walks the label fallbacks: the specific label element, the
// generic label selectors, the node's own text, then a synthesized default.
func resolveTitle(n page.Node, id string) string {
	if t := firstText(n, selTitle); t != "" {
		return t
	}
	for _, sel := range selGenericTitle {
		if t := firstText(n, sel); t != "" {
			return t
		}
	}
	if t := n.Text(); t != "" {
		return firstLine(t)
	}
	return fmt.Sprintf("Item %s", id)
}

func firstText(n page.Node, selector string) string {
	for _, m := range n.Find(selector) {
		if t := m.Text(); t != "" {
			return t
		}
	}
	return ""
}

// firstLine trims a text blob down to its first non-empty line.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return strings.TrimSpace(s)
}

func previewRef(n page.Node) string {
	for _, img := range n.Find(selPreview) {
		if src, ok := img.Attr("src"); ok && src != "" {
			return src
		}
	}
	return ""
}

// resolveRef resolves a possibly relative href against the container URL.
func resolveRef(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
