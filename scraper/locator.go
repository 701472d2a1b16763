package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"

	"github.com/windguru-tools/wgscrape/schema"
)

const compiledCacheSize = 256

// Resolver resolves location specs against document nodes. Compiled CSS
// selectors, XPath expressions, and regex patterns are cached in bounded
// LRU caches shared across fields, columns, and rows, since a table walk
// re-resolves the same handful of specs once per row.
type Resolver struct {
	css *lru.Cache[string, cascadia.Selector]
	xp  *lru.Cache[string, *xpath.Expr]
	re  *lru.Cache[string, *regexp.Regexp]
}

// NewResolver builds a resolver with empty caches.
func NewResolver() *Resolver {
	css, _ := lru.New[string, cascadia.Selector](compiledCacheSize)
	xp, _ := lru.New[string, *xpath.Expr](compiledCacheSize)
	re, _ := lru.New[string, *regexp.Regexp](compiledCacheSize)
	return &Resolver{css: css, xp: xp, re: re}
}

// Resolve returns every node matching loc within scope, in document
// order, possibly empty. CSS and XPath locations search the scope's
// descendants; an id location yields at most one node. The only errors
// are configuration-level: selectors that do not compile or an unknown
// locator kind.
func (r *Resolver) Resolve(scope *html.Node, loc schema.Location) ([]*html.Node, error) {
	switch loc.Kind {
	case schema.LocatorCSS:
		sel, err := r.selector(loc.Value)
		if err != nil {
			return nil, err
		}
		var out []*html.Node
		for c := scope.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, sel.MatchAll(c)...)
			}
		}
		return out, nil
	case schema.LocatorID:
		if n := elementByID(scope, loc.Value); n != nil {
			return []*html.Node{n}, nil
		}
		return nil, nil
	case schema.LocatorXPath:
		expr, err := r.xpathExpr(loc.Value)
		if err != nil {
			return nil, err
		}
		return htmlquery.QuerySelectorAll(scope, expr), nil
	default:
		return nil, &schema.ConfigError{Detail: fmt.Sprintf("unknown locator kind %q", loc.Kind)}
	}
}

// ResolveOne returns the first match, or an error wrapping
// ErrLocatorNotFound when nothing matched.
func (r *Resolver) ResolveOne(scope *html.Node, loc schema.Location) (*html.Node, error) {
	nodes, err := r.Resolve(scope, loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrLocatorNotFound, loc.Kind, loc.Value)
	}
	return nodes[0], nil
}

func (r *Resolver) selector(value string) (cascadia.Selector, error) {
	if sel, ok := r.css.Get(value); ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(value)
	if err != nil {
		return nil, &schema.ConfigError{Detail: fmt.Sprintf("css selector %q", value), Err: err}
	}
	r.css.Add(value, sel)
	return sel, nil
}

func (r *Resolver) xpathExpr(value string) (*xpath.Expr, error) {
	if expr, ok := r.xp.Get(value); ok {
		return expr, nil
	}
	expr, err := xpath.Compile(value)
	if err != nil {
		return nil, &schema.ConfigError{Detail: fmt.Sprintf("xpath %q", value), Err: err}
	}
	r.xp.Add(value, expr)
	return expr, nil
}

func (r *Resolver) pattern(value string) (*regexp.Regexp, error) {
	if re, ok := r.re.Get(value); ok {
		return re, nil
	}
	re, err := regexp.Compile(value)
	if err != nil {
		return nil, &schema.ConfigError{Detail: fmt.Sprintf("pattern %q", value), Err: err}
	}
	r.re.Add(value, re)
	return re, nil
}

// elementByID finds the element with the exact id among the scope's
// descendants. A subtree walk keeps arbitrary ids usable without CSS
// escaping and keeps cell lookups confined to their table.
func elementByID(scope *html.Node, id string) *html.Node {
	for c := scope.FirstChild; c != nil; c = c.NextSibling {
		if n := findByID(c, id); n != nil {
			return n
		}
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := attrValue(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attrValue(n, "class")
	if !ok {
		return false
	}
	for _, part := range strings.Fields(v) {
		if part == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	return htmlquery.InnerText(n)
}
