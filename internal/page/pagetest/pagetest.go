// Package pagetest provides synthetic-tree fakes for the page interfaces.
// Tests build small trees by hand instead of parsing markup, so extraction
// logic can be exercised without any network or real document.
package pagetest

import (
	"context"
	"strings"

	"github.com/tunegrab/tunegrab/internal/page"
)

// Node is a synthetic tree node. It implements page.Node with a small CSS
// subset: tag, .class, #id, [attr], [attr='v'], [attr*='v'], descendant
// chains separated by spaces, and comma-separated alternatives.
type Node struct {
	Tag     string
	Attrs   map[string]string
	Content string
	Kids    []*Node
}

// El builds a node from a tag, attribute map, and children.
func El(tag string, attrs map[string]string, kids ...*Node) *Node {
	return &Node{Tag: tag, Attrs: attrs, Kids: kids}
}

// TextEl builds a leaf node carrying text.
func TextEl(tag string, attrs map[string]string, text string) *Node {
	return &Node{Tag: tag, Attrs: attrs, Content: text}
}

func (n *Node) Find(selector string) []page.Node {
	var out []page.Node
	for _, alt := range strings.Split(selector, ",") {
		chain := strings.Fields(alt)
		if len(chain) == 0 {
			continue
		}
		for _, d := range n.descendants() {
			if matchChain(n, d, chain) && !contains(out, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

func (n *Node) Text() string {
	var b strings.Builder
	n.collectText(&b)
	return strings.TrimSpace(b.String())
}

func (n *Node) HasClass(name string) bool {
	for _, c := range strings.Fields(n.Attrs["class"]) {
		if c == name {
			return true
		}
	}
	return false
}

func (n *Node) collectText(b *strings.Builder) {
	if n.Content != "" {
		b.WriteString(n.Content)
		b.WriteString(" ")
	}
	for _, k := range n.Kids {
		k.collectText(b)
	}
}

func (n *Node) descendants() []*Node {
	var out []*Node
	for _, k := range n.Kids {
		out = append(out, k)
		out = append(out, k.descendants()...)
	}
	return out
}

func contains(nodes []page.Node, n *Node) bool {
	for _, x := range nodes {
		if x == page.Node(n) {
			return true
		}
	}
	return false
}

// matchChain checks that target matches the last simple selector and has
// ancestors (within root) matching the earlier ones in order.
func matchChain(root, target *Node, chain []string) bool {
	if !matchSimple(target, chain[len(chain)-1]) {
		return false
	}
	rest := chain[:len(chain)-1]
	if len(rest) == 0 {
		return true
	}
	for _, anc := range ancestors(root, target) {
		if matchChain(root, anc, rest) {
			return true
		}
	}
	return false
}

func ancestors(root, target *Node) []*Node {
	var path []*Node
	var walk func(n *Node, trail []*Node) bool
	walk = func(n *Node, trail []*Node) bool {
		for _, k := range n.Kids {
			if k == target {
				path = append(path, trail...)
				path = append(path, n)
				return true
			}
			if walk(k, append(trail, n)) {
				return true
			}
		}
		return false
	}
	walk(root, nil)
	// Exclude the root itself: it represents the document.
	var out []*Node
	for _, a := range path {
		if a != root {
			out = append(out, a)
		}
	}
	return out
}

// matchSimple matches one compound selector: tag?(.class|#id|[attr...])*.
func matchSimple(n *Node, sel string) bool {
	i := 0
	for i < len(sel) {
		switch sel[i] {
		case '.':
			j := nextBoundary(sel, i+1)
			if !n.HasClass(sel[i+1 : j]) {
				return false
			}
			i = j
		case '#':
			j := nextBoundary(sel, i+1)
			if n.Attrs["id"] != sel[i+1:j] {
				return false
			}
			i = j
		case '[':
			j := strings.IndexByte(sel[i:], ']')
			if j < 0 {
				return false
			}
			if !matchAttr(n, sel[i+1:i+j]) {
				return false
			}
			i += j + 1
		default:
			j := nextBoundary(sel, i)
			if !strings.EqualFold(n.Tag, sel[i:j]) {
				return false
			}
			i = j
		}
	}
	return true
}

func nextBoundary(sel string, from int) int {
	for i := from; i < len(sel); i++ {
		switch sel[i] {
		case '.', '#', '[':
			return i
		}
	}
	return len(sel)
}

func matchAttr(n *Node, expr string) bool {
	if idx := strings.Index(expr, "*="); idx >= 0 {
		val, ok := n.Attrs[expr[:idx]]
		return ok && strings.Contains(val, unquote(expr[idx+2:]))
	}
	if idx := strings.Index(expr, "="); idx >= 0 {
		val, ok := n.Attrs[expr[:idx]]
		return ok && val == unquote(expr[idx+1:])
	}
	_, ok := n.Attrs[expr]
	return ok
}

func unquote(s string) string {
	return strings.Trim(s, `'"`)
}

// View is a scripted fake of page.View. Roots holds successive documents;
// LoadMore advances to the next one, so a test can script how the listing
// grows as content lazily renders.
type View struct {
	Roots []*Node
	Loc   string

	// Pages maps URLs to documents for Navigate.
	Pages map[string]*Node
	// Raw maps URLs to raw markup for HTML.
	Raw map[string]string

	Challenge   bool
	ActivateErr error
	NavigateErr error

	Activated   []page.Node
	Navigations []string
	LoadMores   int
	Restored    []int

	idx    int
	scroll int
}

func (v *View) current() *Node {
	if len(v.Roots) == 0 {
		return &Node{}
	}
	if v.idx >= len(v.Roots) {
		return v.Roots[len(v.Roots)-1]
	}
	return v.Roots[v.idx]
}

func (v *View) Location() string { return v.Loc }

func (v *View) Navigate(_ context.Context, url string) error {
	v.Navigations = append(v.Navigations, url)
	if v.NavigateErr != nil {
		return v.NavigateErr
	}
	if doc, ok := v.Pages[url]; ok {
		v.Roots = []*Node{doc}
		v.idx = 0
	}
	v.Loc = url
	return nil
}

func (v *View) LoadMore(_ context.Context) error {
	v.LoadMores++
	if v.idx < len(v.Roots)-1 {
		v.idx++
	}
	v.scroll++
	return nil
}

func (v *View) ScrollOffset() int { return v.scroll }

func (v *View) RestoreScroll(offset int) {
	v.Restored = append(v.Restored, offset)
	v.scroll = offset
}

func (v *View) Query(selector string) []page.Node {
	return v.current().Find(selector)
}

func (v *View) Activate(_ context.Context, n page.Node) error {
	v.Activated = append(v.Activated, n)
	return v.ActivateErr
}

func (v *View) ChallengePresent() bool { return v.Challenge }

func (v *View) HTML(_ context.Context, url string) (string, error) {
	if raw, ok := v.Raw[url]; ok {
		return raw, nil
	}
	return "", nil
}
