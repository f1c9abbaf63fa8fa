package deliver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/tunegrab/tunegrab/internal/namer"
	"github.com/tunegrab/tunegrab/internal/page"
	"github.com/tunegrab/tunegrab/internal/scan"
)

// Acquire-control selectors, most precise first. The site has shipped at
// least three generations of its download affordance markup.
const (
	selControlPrecise = ".actions .download-group a.download-button"
	selControlPartial = "[class*='download']"
	selControlWrapper = ".item-actions"
)

// selItemTitle locates a candidate container's visible label for the
// similarity fallback in container re-location.
const selItemTitle = ".track-title, .title"

// titleSimilarityFloor is the minimum Jaro-Winkler similarity for a title
// match to count when re-locating an item's container.
const titleSimilarityFloor = 0.90

// detailURLPattern recognizes a genuine detail page URL, as opposed to a
// listing URL that merely mentions the item.
var detailURLPattern = regexp.MustCompile(`^https?://[^/]+/(?:tracks?|sounds)/[^/?#]+`)

// IsDetailURL reports whether u structurally looks like an item detail page.
func IsDetailURL(u string) bool {
	return detailURLPattern.MatchString(u)
}

// DefaultCascade assembles the production strategy order.
func DefaultCascade(view page.View, client Downloader, resolver *namer.Resolver, log *slog.Logger) []Strategy {
	return []Strategy{
		NewDetailPage(view, log),
		NewListingControl(view, log),
		NewEmbeddedURL(view, client, resolver, log),
		NewNativeSubmit(client, resolver, log),
	}
}

// locateControl walks the nested selector fallbacks over one queryable
// region: the precise multi-class path, then partial class matches, then
// the enclosing control wrapper itself.
func locateControl(query func(selector string) []page.Node) (page.Node, error) {
	if nodes := query(selControlPrecise); len(nodes) > 0 {
		return nodes[0], nil
	}
	for _, n := range query(selControlPartial) {
		if class, ok := n.Attr("class"); ok && strings.Contains(class, "download") {
			return n, nil
		}
	}
	if nodes := query(selControlWrapper); len(nodes) > 0 {
		return nodes[0], nil
	}
	return nil, ErrControlNotFound
}

// DetailPage is stage 1: switch the view to the item's own detail page,
// activate its acquire control, and return to the listing.
type DetailPage struct {
	view page.View
	log  *slog.Logger
}

// NewDetailPage creates the interactive detail-page stage.
func NewDetailPage(view page.View, log *slog.Logger) *DetailPage {
	if log == nil {
		log = slog.Default()
	}
	return &DetailPage{view: view, log: log.With("stage", "detail-page")}
}

func (s *DetailPage) Name() string { return "detail-page" }

func (s *DetailPage) Deliver(ctx context.Context, a *Attempt) (Outcome, error) {
	target := a.Item.CanonicalURL
	if !IsDetailURL(target) {
		return Outcome{}, ErrNotApplicable
	}

	origin := s.view.Location()
	// The listing view must come back no matter how this attempt ends;
	// later stages and later items depend on it.
	defer func() {
		if s.view.Location() != origin {
			if err := s.view.Navigate(ctx, origin); err != nil {
				s.log.Warn("failed to restore listing view", "error", err)
			}
		}
	}()

	if err := s.view.Navigate(ctx, target); err != nil {
		return Outcome{}, fmt.Errorf("open detail page: %w", err)
	}
	if s.view.Location() != target {
		return Outcome{}, ErrViewMismatch
	}
	if s.view.ChallengePresent() {
		return Outcome{}, page.ErrChallengeDetected
	}

	control, err := locateControl(s.view.Query)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.view.Activate(ctx, control); err != nil {
		return Outcome{}, fmt.Errorf("activate acquire control: %w", err)
	}
	return Outcome{Kind: KindDelivered, Stage: s.Name()}, nil
}

// ListingControl is stage 2: the same control location applied to the
// item's container on the already-open listing view.
type ListingControl struct {
	view page.View
	log  *slog.Logger
}

// NewListingControl creates the listing-scoped stage.
func NewListingControl(view page.View, log *slog.Logger) *ListingControl {
	if log == nil {
		log = slog.Default()
	}
	return &ListingControl{view: view, log: log.With("stage", "listing-control")}
}

func (s *ListingControl) Name() string { return "listing-control" }

func (s *ListingControl) Deliver(ctx context.Context, a *Attempt) (Outcome, error) {
	if s.view.ChallengePresent() {
		return Outcome{}, page.ErrChallengeDetected
	}

	container := s.findContainer(a)
	if container == nil {
		return Outcome{}, ErrNotApplicable
	}
	control, err := locateControl(container.Find)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.view.Activate(ctx, control); err != nil {
		return Outcome{}, fmt.Errorf("activate listing control: %w", err)
	}
	return Outcome{Kind: KindDelivered, Stage: s.Name()}, nil
}

// findContainer re-locates the item's container: first by matching its id
// against contained links, then by label similarity, then by position.
func (s *ListingControl) findContainer(a *Attempt) page.Node {
	candidates := scan.CandidateNodes(s.view)
	if len(candidates) == 0 {
		return nil
	}

	for _, c := range candidates {
		for _, link := range c.Find("a") {
			if href, ok := link.Attr("href"); ok && strings.Contains(href, a.Item.ID) {
				return c
			}
		}
	}

	want := strings.ToLower(a.Item.Title)
	var best page.Node
	bestScore := float32(titleSimilarityFloor)
	for _, c := range candidates {
		label := containerLabel(c)
		if label == "" {
			continue
		}
		if score := edlib.JaroWinklerSimilarity(want, strings.ToLower(label)); score >= bestScore {
			best = c
			bestScore = score
		}
	}
	if best != nil {
		return best
	}

	if a.Index >= 0 && a.Index < len(candidates) {
		return candidates[a.Index]
	}
	return nil
}

func containerLabel(n page.Node) string {
	for _, m := range n.Find(selItemTitle) {
		if t := m.Text(); t != "" {
			return t
		}
	}
	return n.Text()
}

// EmbeddedURL is stage 3: fetch the detail page's raw markup, pattern-match
// an embedded asset URL out of it, and hand that to the native downloader.
type EmbeddedURL struct {
	view     page.View
	client   Downloader
	resolver *namer.Resolver
	log      *slog.Logger
}

// NewEmbeddedURL creates the indirect-resolution stage.
func NewEmbeddedURL(view page.View, client Downloader, resolver *namer.Resolver, log *slog.Logger) *EmbeddedURL {
	if log == nil {
		log = slog.Default()
	}
	return &EmbeddedURL{view: view, client: client, resolver: resolver, log: log.With("stage", "embedded-url")}
}

func (s *EmbeddedURL) Name() string { return "embedded-url" }

func (s *EmbeddedURL) Deliver(ctx context.Context, a *Attempt) (Outcome, error) {
	src := a.Item.CanonicalURL
	if src == "" {
		src = a.Item.ContainerURL
	}
	html, err := s.view.HTML(ctx, src)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch %s: %w", src, err)
	}
	assetURL, err := FindAssetURL(html)
	if err != nil {
		return Outcome{}, err
	}
	return submitWithFallback(ctx, s.client, s.resolver, a.Item, assetURL, s.Name())
}

// NativeSubmit is stage 4: hand the item's best URL straight to the native
// download subsystem.
type NativeSubmit struct {
	client   Downloader
	resolver *namer.Resolver
	log      *slog.Logger
}

// NewNativeSubmit creates the last-resort stage.
func NewNativeSubmit(client Downloader, resolver *namer.Resolver, log *slog.Logger) *NativeSubmit {
	if log == nil {
		log = slog.Default()
	}
	return &NativeSubmit{client: client, resolver: resolver, log: log.With("stage", "native-submit")}
}

func (s *NativeSubmit) Name() string { return "native-submit" }

func (s *NativeSubmit) Deliver(ctx context.Context, a *Attempt) (Outcome, error) {
	target := a.Item.CanonicalURL
	if target == "" {
		target = a.Item.ContainerURL
	}
	if target == "" {
		return Outcome{}, ErrNotApplicable
	}
	return submitWithFallback(ctx, s.client, s.resolver, a.Item, target, s.Name())
}

// submitWithFallback submits once with the structured path and, if the
// subsystem rejects the path's structure, exactly once more with the
// flattened filename.
func submitWithFallback(ctx context.Context, client Downloader, resolver *namer.Resolver,
	item scan.Item, url, stage string) (Outcome, error) {

	structured := resolver.Resolve(item, url)
	handle, err := client.Submit(ctx, url, structured)
	if err == nil {
		return Outcome{Kind: KindDelivered, Handle: handle, Stage: stage}, nil
	}
	if !errors.Is(err, ErrStructuralPath) {
		return Outcome{}, fmt.Errorf("%s: submit: %w", stage, err)
	}

	flat := namer.Flatten(structured)
	handle, err = client.Submit(ctx, url, flat)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: flattened retry: %w", stage, err)
	}
	return Outcome{Kind: KindDeliveredFlat, Handle: handle, Stage: stage}, nil
}
