// Package sanitize cleans user-authored card markup before it reaches a
// published page.
package sanitize

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/starford/vitrine/internal/markup"
	"github.com/starford/vitrine/internal/models"
)

// Elements removed together with their whole subtree.
var dangerousTags = map[string]struct{}{
	"script": {}, "style": {}, "iframe": {}, "object": {}, "embed": {},
	"link": {}, "form": {}, "input": {}, "textarea": {}, "select": {},
	"video": {}, "audio": {}, "source": {}, "track": {}, "picture": {},
	"canvas": {}, "svg": {}, "math": {}, "frame": {}, "frameset": {},
	"applet": {}, "meta": {}, "base": {}, "noscript": {}, "template": {},
}

// Elements kept as-is; anything else is unwrapped.
var allowedTags = map[string]struct{}{
	"div": {}, "span": {}, "p": {}, "img": {}, "a": {},
	"ul": {}, "ol": {}, "li": {}, "br": {},
	"h2": {}, "h3": {}, "h4": {}, "strong": {}, "em": {},
}

var allowedAttrs = map[string]map[string]struct{}{
	"img": {"src": {}, "alt": {}, "title": {}, "width": {}, "height": {}},
	"a":   {"href": {}, "title": {}, "target": {}, "rel": {}},
}

// Classes marking editor-only controls.
var controlClasses = map[string]struct{}{
	"card-actions": {}, "folder-actions": {}, "toolbar": {}, "btn": {},
}

var safeSchemes = map[string]struct{}{
	"http": {}, "https": {}, "mailto": {}, "tel": {},
}

// Sanitizer removes unsafe and editor-only constructs from card markup.
// The zero value is ready to use.
type Sanitizer struct{}

// New returns a Sanitizer.
func New() *Sanitizer { return &Sanitizer{} }

// Sanitize cleans one card's markup. Sanitizing already-clean output is a
// no-op that reports zero metrics.
func (s *Sanitizer) Sanitize(cardMarkup string) (string, models.SanitizeMetrics, error) {
	root, err := markup.Parse(cardMarkup)
	if err != nil {
		return "", models.SanitizeMetrics{}, err
	}
	m := s.Tree(root)
	out, err := markup.RenderChildren(root)
	if err != nil {
		return "", models.SanitizeMetrics{}, err
	}
	return out, m, nil
}

// maxPasses bounds the render and re-parse rounds of Tree.
const maxPasses = 4

// Tree sanitizes the children of root in place. root must be a <div>-like
// container such as the one markup.Parse returns.
//
// Unwrapping can leave nesting the HTML parser never produces (li inside li,
// a inside a). The cleaned tree is therefore rendered, re-parsed and cleaned
// again until its serialization is stable, so the published markup is what
// a browser, or the next run, parses back.
func (s *Sanitizer) Tree(root *html.Node) models.SanitizeMetrics {
	var m models.SanitizeMetrics
	cleanChildren(root, &m)

	prev, err := markup.RenderChildren(root)
	if err != nil {
		return m
	}
	for range maxPasses {
		fresh, err := markup.Parse(prev)
		if err != nil {
			return m
		}
		cleanChildren(fresh, &m)
		out, err := markup.RenderChildren(fresh)
		if err != nil || out == prev {
			return m
		}
		markup.ReplaceChildren(root, fresh)
		prev = out
	}
	return m
}

func cleanChildren(parent *html.Node, m *models.SanitizeMetrics) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode, html.DoctypeNode:
			parent.RemoveChild(c)
			m.NodesRemoved++
		case html.ElementNode:
			cleanElement(parent, c, m)
		}
		c = next
	}
}

func cleanElement(parent, n *html.Node, m *models.SanitizeMetrics) {
	tag := strings.ToLower(n.Data)
	if _, bad := dangerousTags[tag]; bad || isControl(n) {
		parent.RemoveChild(n)
		m.NodesRemoved++
		return
	}

	cleanChildren(n, m)

	if _, ok := allowedTags[tag]; !ok || n.Namespace != "" {
		markup.Unwrap(n)
		m.TagsUnwrapped++
		return
	}
	cleanAttrs(n, tag, m)
}

func isControl(n *html.Node) bool {
	if n.Data == "button" {
		return true
	}
	for _, c := range markup.Classes(n) {
		if _, ok := controlClasses[c]; ok || strings.HasPrefix(c, "btn") {
			return true
		}
	}
	return false
}

func cleanAttrs(n *html.Node, tag string, m *models.SanitizeMetrics) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || !attrAllowed(tag, key) {
			m.AttrsRemoved++
			continue
		}
		if (key == "href" || key == "src") && !SafeURL(a.Val) {
			m.URLsBlocked++
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept

	if tag == "a" {
		if target, ok := markup.Attr(n, "target"); ok && strings.TrimSpace(target) != "" && target != "_self" {
			enforceRel(n)
		}
	}
}

func attrAllowed(tag, key string) bool {
	if key == "class" {
		return true
	}
	// on*, data-*, style, contenteditable and draggable never appear in
	// the per-tag tables, so they fall through to false here.
	_, ok := allowedAttrs[tag][key]
	return ok
}

func enforceRel(n *html.Node) {
	rel, _ := markup.Attr(n, "rel")
	fields := strings.Fields(rel)
	have := make(map[string]bool, len(fields))
	for _, f := range fields {
		have[strings.ToLower(f)] = true
	}
	changed := false
	for _, need := range []string{"noopener", "noreferrer"} {
		if !have[need] {
			fields = append(fields, need)
			changed = true
		}
	}
	if changed {
		markup.SetAttr(n, "rel", strings.Join(fields, " "))
	}
}

// SafeURL reports whether a href/src value may be published: absolute
// http(s), mail and phone links, fragments, and scheme-less relative paths.
func SafeURL(raw string) bool {
	v := strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, raw)
	colon := strings.IndexByte(v, ':')
	if colon < 0 {
		return true
	}
	if i := strings.IndexAny(v, "/?#"); i >= 0 && i < colon {
		return true // colon inside a path, not a scheme
	}
	_, ok := safeSchemes[strings.ToLower(v[:colon])]
	return ok
}
