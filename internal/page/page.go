// Package page abstracts the host page as a queryable tree.
//
// The listing page is untyped external data: markup shifts between site
// versions, nodes appear and disappear as content lazily renders, and the
// page may interpose an anti-automation challenge at any point. Everything
// above this package works against the Node and View interfaces so the
// coupling to real markup lives in one place and tests can substitute a
// synthetic tree.
package page

import (
	"context"
	"errors"
)

// ErrChallengeDetected means the host page is showing an anti-automation
// interstitial. The current operation must abort rather than retry blindly;
// the user retries later.
var ErrChallengeDetected = errors.New("challenge detected")

// ErrNavigation means the view could not be moved to the requested location.
var ErrNavigation = errors.New("navigation failed")

// Node is one element of the queryable tree.
type Node interface {
	// Find returns descendant nodes matching a CSS selector.
	Find(selector string) []Node
	// Attr returns the named attribute and whether it is present.
	Attr(name string) (string, bool)
	// Text returns the node's trimmed text content.
	Text() string
	// HasClass reports whether the node carries the given class.
	HasClass(name string) bool
}

// View is the single mutable shared page resource. All access is from one
// goroutine at a time; the orchestrator restores the view to its
// pre-operation location after any interactive detour.
type View interface {
	// Location returns the URL the view is currently showing.
	Location() string
	// Navigate moves the view to url and waits for it to settle.
	Navigate(ctx context.Context, url string) error
	// LoadMore triggers another chunk of lazy content to render.
	LoadMore(ctx context.Context) error
	// ScrollOffset returns an opaque scroll position token.
	ScrollOffset() int
	// RestoreScroll returns the view to a previously captured offset.
	RestoreScroll(offset int)
	// Query returns nodes in the current view matching a CSS selector.
	Query(selector string) []Node
	// Activate triggers the control represented by n (a click).
	Activate(ctx context.Context, n Node) error
	// ChallengePresent reports whether an anti-automation challenge is
	// visible in the current view.
	ChallengePresent() bool
	// HTML fetches the raw markup of url without moving the view.
	HTML(ctx context.Context, url string) (string, error)
}
