// Static capability: a non-JS Browser implementation for the HTTP-fallback
// navigation path (spec.md §9's "implementer may select an alternate
// Browser capability when a target doesn't require JS rendering"). It
// fetches the page with a plain net/http client and walks the parsed DOM
// tree for selector matches instead of driving a real browser — adapted
// from contentfetcher.go's createConfiguredClient/readAndProcessBody
// request-and-decode shape and httpvalidator.go's extractTitle HTML-walk,
// generalized from "fetch + title/hash" to "fetch + arbitrary CSS-lite
// selector lookup" so it can stand in for RodCapability on static pages.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var _ Capability = (*StaticCapability)(nil)

// staticElement is the ElementHandle a StaticCapability produces: a
// reference into the tree parsed by the last Navigate.
type staticElement struct {
	node *html.Node
}

// StaticCapability implements Capability over a plain HTTP GET and
// golang.org/x/net/html parsing. It has no viewport, so screenshot calls
// and element bounds are unsupported; callers that need those fall back to
// RodCapability (spec.md §9 leaves the choice of capability to the
// implementer per run).
type StaticCapability struct {
	client *http.Client
	doc    *html.Node
	raw    string
	final  string
}

// NewStaticCapability builds a StaticCapability with the given request
// timeout used as the http.Client's default (Navigate still applies its
// own per-call timeout via the context).
func NewStaticCapability(timeout time.Duration) *StaticCapability {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StaticCapability{client: &http.Client{Timeout: timeout}}
}

func (s *StaticCapability) Navigate(ctx context.Context, target string, timeout time.Duration) (NavigateResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return NavigateResult{}, fmt.Errorf("building request: %w", err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return NavigateResult{}, fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()

	var redirects []string
	if resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.String() != target {
		redirects = append(redirects, resp.Request.URL.String())
	}

	// charset-aware decoding: the body may declare a non-UTF-8 charset in
	// its Content-Type header or a <meta charset> tag.
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}

	doc, err := html.Parse(reader)
	if err != nil {
		return NavigateResult{}, fmt.Errorf("parsing html: %w", err)
	}

	s.doc = doc
	s.final = target
	if resp.Request != nil && resp.Request.URL != nil {
		s.final = resp.Request.URL.String()
	}
	var sb strings.Builder
	_ = html.Render(&sb, doc)
	s.raw = sb.String()

	return NavigateResult{
		StatusCode: resp.StatusCode,
		FinalURL:   s.final,
		Redirects:  redirects,
		LoadTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// QuerySelector supports the selector subset field mappings realistically
// use against static pages: "#id", ".class", and a bare tag name.
func (s *StaticCapability) QuerySelector(ctx context.Context, selector string) (ElementHandle, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	node := findNode(s.doc, selector)
	if node == nil {
		return nil, fmt.Errorf("no element matches selector %q", selector)
	}
	return staticElement{node: node}, nil
}

func (s *StaticCapability) ElementValue(ctx context.Context, handle ElementHandle) (string, error) {
	el, ok := handle.(staticElement)
	if !ok || el.node == nil {
		return "", fmt.Errorf("invalid element handle")
	}
	if v := attr(el.node, "value"); v != "" {
		return v, nil
	}
	return strings.TrimSpace(textContent(el.node)), nil
}

// ElementBounds has no meaning without a rendered layout; static pages have
// no viewport to measure against.
func (s *StaticCapability) ElementBounds(ctx context.Context, handle ElementHandle) (x, y, w, h float64, err error) {
	return 0, 0, 0, 0, fmt.Errorf("element bounds unsupported by the static capability")
}

func (s *StaticCapability) ScreenshotFull(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("screenshots unsupported by the static capability")
}

func (s *StaticCapability) ScreenshotElement(ctx context.Context, handle ElementHandle, marginPx int) ([]byte, error) {
	return nil, fmt.Errorf("screenshots unsupported by the static capability")
}

func (s *StaticCapability) DOMSnapshot(ctx context.Context) (string, error) {
	if s.raw == "" {
		return "", fmt.Errorf("no document loaded")
	}
	return s.raw, nil
}

func (s *StaticCapability) Close() error { return nil }

func findNode(n *html.Node, selector string) *html.Node {
	var match func(*html.Node) bool
	switch {
	case strings.HasPrefix(selector, "#"):
		id := selector[1:]
		match = func(n *html.Node) bool { return attr(n, "id") == id }
	case strings.HasPrefix(selector, "."):
		class := selector[1:]
		match = func(n *html.Node) bool { return hasClass(n, class) }
	default:
		tag := strings.ToLower(selector)
		match = func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == tag }
	}

	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(n)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
