package page

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// challengeSelector matches the markers the host page's bot-mitigation
// interstitial is known to render.
const challengeSelector = "#challenge-stage, .captcha-container, form[action*='captcha'], [data-challenge]"

// HTTPView implements View over plain HTTP fetches parsed with goquery.
// Lazy rendering is simulated by re-fetching the listing with a growing
// window parameter; the scroll offset token is the window size.
type HTTPView struct {
	httpClient *http.Client
	log        *slog.Logger

	location   string
	doc        *goquery.Document
	window     int
	lastStatus int
}

// NewHTTPView creates a view with no location. Navigate before querying.
func NewHTTPView(log *slog.Logger) *HTTPView {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPView{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With("component", "view"),
	}
}

// Location returns the URL the view is currently showing.
func (v *HTTPView) Location() string {
	return v.location
}

// Navigate fetches url and makes it the current document.
func (v *HTTPView) Navigate(ctx context.Context, target string) error {
	doc, status, err := v.fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	v.location = target
	v.doc = doc
	v.window = 1
	v.lastStatus = status
	if v.ChallengePresent() {
		return ErrChallengeDetected
	}
	return nil
}

// LoadMore widens the render window by one chunk and re-fetches.
func (v *HTTPView) LoadMore(ctx context.Context) error {
	if v.location == "" {
		return fmt.Errorf("%w: no current location", ErrNavigation)
	}
	u, err := url.Parse(v.location)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(v.window+1))
	u.RawQuery = q.Encode()

	doc, status, err := v.fetch(ctx, u.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	v.doc = doc
	v.window++
	v.lastStatus = status
	return nil
}

// ScrollOffset returns the current window size as the scroll token.
func (v *HTTPView) ScrollOffset() int {
	return v.window
}

// RestoreScroll resets the render window to a captured token.
func (v *HTTPView) RestoreScroll(offset int) {
	if offset > 0 {
		v.window = offset
	}
}

// Query returns nodes in the current document matching selector.
func (v *HTTPView) Query(selector string) []Node {
	if v.doc == nil {
		return nil
	}
	return wrapSelection(v.doc.Find(selector))
}

// Activate follows the control's href or data-url with a GET, which is how
// an "acquire" control behaves for a non-browser host.
func (v *HTTPView) Activate(ctx context.Context, n Node) error {
	target, ok := n.Attr("href")
	if !ok {
		target, ok = n.Attr("data-url")
	}
	if !ok || target == "" {
		return fmt.Errorf("control has no actionable target")
	}
	resolved, err := v.resolve(target)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return ErrChallengeDetected
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("activate failed: %d", resp.StatusCode)
	}
	return nil
}

// ChallengePresent checks the document for challenge markers and the last
// response status for mitigation codes.
func (v *HTTPView) ChallengePresent() bool {
	if v.lastStatus == http.StatusForbidden || v.lastStatus == http.StatusTooManyRequests {
		return true
	}
	return v.doc != nil && v.doc.Find(challengeSelector).Length() > 0
}

// HTML fetches the raw markup of url without moving the view.
func (v *HTTPView) HTML(ctx context.Context, target string) (string, error) {
	resolved, err := v.resolve(target)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return "", err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrChallengeDetected
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %d", resolved, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (v *HTTPView) fetch(ctx context.Context, target string) (*goquery.Document, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return doc, resp.StatusCode, nil
}

func (v *HTTPView) resolve(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}
	base, err := url.Parse(v.location)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// gqNode adapts a goquery selection to the Node interface.
type gqNode struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Node {
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &gqNode{sel: s})
	})
	return nodes
}

func (n *gqNode) Find(selector string) []Node {
	return wrapSelection(n.sel.Find(selector))
}

func (n *gqNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n *gqNode) Text() string {
	return strings.TrimSpace(n.sel.Text())
}

func (n *gqNode) HasClass(name string) bool {
	return n.sel.HasClass(name)
}
