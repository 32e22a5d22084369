package renderer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoDocument is returned when a static page is queried before a
// successful navigation.
var ErrNoDocument = errors.New("renderer: no document loaded")

// hiddenClasses are utility classes storefronts use to hide blocks.
var hiddenClasses = []string{"aok-hidden", "a-hidden", "hidden"}

// StaticLauncher opens snapshot sessions over a Fetcher. No JavaScript runs,
// so prices injected client-side are invisible to it.
type StaticLauncher struct {
	fetcher Fetcher
}

// NewStaticLauncher creates a launcher whose pages load HTML through f.
func NewStaticLauncher(f Fetcher) *StaticLauncher {
	return &StaticLauncher{fetcher: f}
}

// Launch ignores headless; there is no window either way.
func (l *StaticLauncher) Launch(ctx context.Context, headless bool) (Session, error) {
	return &staticSession{page: NewStaticPage(l.fetcher)}, nil
}

type staticSession struct {
	page *StaticPage
}

func (s *staticSession) Page() Page   { return s.page }
func (s *staticSession) Close() error { return nil }

// StaticPage is a parsed HTML snapshot.
type StaticPage struct {
	fetcher   Fetcher
	body      []byte
	doc       *goquery.Document
	selectors map[string]cascadia.SelectorGroup
}

// NewStaticPage creates an empty page; call Navigate before querying.
func NewStaticPage(f Fetcher) *StaticPage {
	return &StaticPage{
		fetcher:   f,
		selectors: make(map[string]cascadia.SelectorGroup),
	}
}

// Navigate fetches and parses url. On failure the previous document is
// dropped so stale content is never queried. A non-positive timeout leaves
// ctx unbounded.
func (p *StaticPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	p.body, p.doc = nil, nil

	body, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return categorizeError(err, "fetching product page failed")
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return categorizeError(err, "parsing product page failed")
	}

	p.body = body
	p.doc = goquery.NewDocumentFromNode(root)
	return nil
}

func (p *StaticPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	if p.doc == nil {
		return nil, ErrNoDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.match(p.doc.Nodes[0], selector)
}

func (p *StaticPage) Title(ctx context.Context) (string, error) {
	if p.doc == nil {
		return "", ErrNoDocument
	}
	return extractTitle(p.body), nil
}

func (p *StaticPage) compile(selector string) (cascadia.SelectorGroup, error) {
	if sel, ok := p.selectors[selector]; ok {
		return sel, nil
	}
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, err
	}
	p.selectors[selector] = sel
	return sel, nil
}

func (p *StaticPage) match(root *html.Node, selector string) ([]Element, error) {
	sel, err := p.compile(selector)
	if err != nil {
		return nil, err
	}
	nodes := cascadia.QueryAll(root, sel)
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &staticElement{node: n, page: p})
	}
	return out, nil
}

type staticElement struct {
	node *html.Node
	page *StaticPage
}

// Visible approximates rendering without CSS: the element and every ancestor
// must be free of hidden markers, and none may be a non-rendered container.
func (e *staticElement) Visible() (bool, error) {
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Head:
			return false, nil
		}
		if isHiddenNode(n) {
			return false, nil
		}
	}
	return true, nil
}

func (e *staticElement) Text() (string, error) {
	return goquery.NewDocumentFromNode(e.node).Text(), nil
}

func (e *staticElement) QueryAll(selector string) ([]Element, error) {
	return e.page.match(e.node, selector)
}

func isHiddenNode(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		case "class":
			for _, cls := range strings.Fields(a.Val) {
				for _, hidden := range hiddenClasses {
					if cls == hidden {
						return true
					}
				}
			}
		}
	}
	return false
}
