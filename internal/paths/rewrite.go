// Package paths rewrites src/href references of card markup between the
// three reference frames a card is viewed from.
package paths

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/starford/vitrine/internal/markup"
)

// Frame is a location a card's markup is rendered from.
type Frame int

const (
	// EditorFrame is the master document: references are content-root
	// prefixed ("resource/<folder>/<path>").
	EditorFrame Frame = iota
	// AggregateFrame is the aggregate page at the content root.
	AggregateFrame
	// PerFolderFrame is a folder's own page one level below the content root.
	PerFolderFrame
)

func (f Frame) String() string {
	switch f {
	case EditorFrame:
		return "editor"
	case AggregateFrame:
		return "aggregate"
	case PerFolderFrame:
		return "per-folder"
	}
	return "unknown"
}

// References that are never rewritten: scheme-qualified, protocol-relative,
// site-absolute, fragments, parent-relative and www.-style hosts.
var untouchable = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*:|//|/|#|\.\./|www\.)`)

var refAttrs = []string{"src", "href"}

// Rewriter rewrites references for one content root prefix.
type Rewriter struct {
	prefix    string   // "resource/"
	backLinks []string // hrefs pointing back to the aggregate page
}

// New returns a Rewriter for contentPrefix ("resource/"). backLinks lists the
// hrefs that point from a per-folder page to the aggregate page.
func New(contentPrefix string, backLinks ...string) *Rewriter {
	p := strings.Trim(contentPrefix, "/") + "/"
	return &Rewriter{prefix: p, backLinks: backLinks}
}

// Rewrite rewrites every reference in the markup for folder into frame.
func (r *Rewriter) Rewrite(cardMarkup, folder string, frame Frame) (string, error) {
	root, err := markup.Parse(cardMarkup)
	if err != nil {
		return "", err
	}
	r.Tree(root, folder, frame)
	return markup.RenderChildren(root)
}

// Tree rewrites references below root in place. For AggregateFrame, links
// back to the aggregate page are stripped first.
func (r *Rewriter) Tree(root *html.Node, folder string, frame Frame) {
	if frame == AggregateFrame {
		r.StripBackLinks(root)
	}
	markup.Walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, key := range refAttrs {
			if v, ok := markup.Attr(n, key); ok {
				if nv := r.Ref(v, folder, frame); nv != v {
					markup.SetAttr(n, key, nv)
				}
			}
		}
		return true
	})
}

// Ref rewrites a single reference. The result depends only on the shape of
// ref, never on where it appears.
func (r *Rewriter) Ref(ref, folder string, frame Frame) string {
	v := strings.TrimSpace(ref)
	if v == "" || untouchable.MatchString(v) {
		return ref
	}

	rest, prefixed := strings.CutPrefix(v, r.prefix)
	if !prefixed {
		// Bare, folder-relative reference.
		switch frame {
		case AggregateFrame:
			return dotSlash(folder + "/" + strings.TrimPrefix(v, "./"))
		case EditorFrame:
			return r.prefix + folder + "/" + strings.TrimPrefix(v, "./")
		}
		return ref
	}

	switch frame {
	case AggregateFrame:
		return dotSlash(rest)
	case PerFolderFrame:
		if tail, same := cutFolder(rest, folder); same {
			if tail == "" {
				return "./"
			}
			return dotSlash(tail)
		}
		return "../" + rest
	}
	return v
}

// dotSlash prefixes rel with "./" when its first segment contains a colon,
// which would otherwise read as a URL scheme ("Act1:Masks/x.jpg").
func dotSlash(rel string) string {
	first, _, _ := strings.Cut(rel, "/")
	if strings.Contains(first, ":") {
		return "./" + rel
	}
	return rel
}

// cutFolder strips "<folder>/" (raw or percent-encoded) from rest.
func cutFolder(rest, folder string) (string, bool) {
	for _, f := range []string{folder, url.PathEscape(folder)} {
		if rest == f {
			return "", true
		}
		if tail, ok := strings.CutPrefix(rest, f+"/"); ok {
			return tail, true
		}
	}
	return "", false
}

// StripBackLinks removes links to the aggregate page below root. A link that
// wraps an image is unwrapped so the image survives. It returns the number
// of links handled.
func (r *Rewriter) StripBackLinks(root *html.Node) int {
	var hits []*html.Node
	markup.Walk(root, func(n *html.Node) bool {
		if markup.IsElement(n, "a") {
			if href, ok := markup.Attr(n, "href"); ok && r.isBackLink(href) {
				hits = append(hits, n)
				return false
			}
		}
		return true
	})
	for _, a := range hits {
		hasImg := markup.Find(a, func(c *html.Node) bool { return markup.IsElement(c, "img") }) != nil
		if hasImg {
			markup.Unwrap(a)
		} else {
			markup.Remove(a)
		}
	}
	return len(hits)
}

func (r *Rewriter) isBackLink(href string) bool {
	h := strings.TrimSpace(href)
	if i := strings.IndexAny(h, "?#"); i >= 0 {
		h = h[:i]
	}
	h = strings.TrimPrefix(h, "./")
	for _, b := range r.backLinks {
		if h == b {
			return true
		}
	}
	return false
}

// Retarget rewrites editor-frame references under oldFolder to newFolder.
// It is applied to a card whose folder was renamed on disk and reports the
// number of references changed.
func (r *Rewriter) Retarget(root *html.Node, oldFolder, newFolder string) int {
	changed := 0
	markup.Walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, key := range refAttrs {
			v, ok := markup.Attr(n, key)
			if !ok {
				continue
			}
			rest, prefixed := strings.CutPrefix(strings.TrimSpace(v), r.prefix)
			if !prefixed {
				continue
			}
			if tail, same := cutFolder(rest, oldFolder); same {
				nv := r.prefix + newFolder + "/" + tail
				if nv != v {
					markup.SetAttr(n, key, nv)
					changed++
				}
			}
		}
		return true
	})
	return changed
}
