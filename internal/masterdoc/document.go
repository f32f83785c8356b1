// Package masterdoc reads, mutates and writes back the curator's master
// document: an HTML fragment holding an ordered sequence of card blocks.
package masterdoc

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/starford/vitrine/internal/markup"
	"github.com/starford/vitrine/internal/models"
)

// Card block markup.
const (
	AttrID      = "data-card-id"
	AttrFolder  = "data-card"
	AttrOrder   = "data-order"
	AttrHidden  = "data-hidden"
	AttrCreated = "data-created-at"
	AttrLocked  = "data-locked"
	AttrDelete  = "data-delete"

	ClassCard      = "card"
	ClassHead      = "card-head"
	ClassInner     = "inner"
	ClassThumbWrap = "thumb-wrap"
	ClassThumb     = "thumb"
	ClassHidden    = "is-hidden"

	cardSelector = "div." + ClassCard
)

// MetaAttrs lists the metadata attributes a card container carries.
var MetaAttrs = []string{AttrID, AttrFolder, AttrOrder, AttrHidden, AttrCreated, AttrLocked, AttrDelete}

// Document is a parsed master document.
type Document struct {
	root *html.Node
}

// Parse parses master document markup.
func Parse(data []byte) (*Document, error) {
	root, err := markup.Parse(string(data))
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// New returns an empty document.
func New() *Document {
	root, _ := markup.Parse("")
	return &Document{root: root}
}

// Blocks returns the top-level card blocks in document order.
func (d *Document) Blocks() []*Block {
	var out []*Block
	goquery.NewDocumentFromNode(d.root).Find(cardSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(cardSelector).Length() > 0 {
			return
		}
		out = append(out, &Block{node: s.Get(0)})
	})
	return out
}

// Cards returns a snapshot of every block.
func (d *Document) Cards() []models.Card {
	blocks := d.Blocks()
	out := make([]models.Card, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Card())
	}
	return out
}

// Titles returns the set of non-empty card titles.
func (d *Document) Titles() map[string]struct{} {
	out := make(map[string]struct{})
	for _, b := range d.Blocks() {
		if t := b.Title(); t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

// Find returns the first block titled title.
func (d *Document) Find(title string) (*Block, bool) {
	for _, b := range d.Blocks() {
		if b.Title() == title {
			return b, true
		}
	}
	return nil, false
}

// Append adds a block at the end of the document.
func (d *Document) Append(b *Block) {
	if last := d.root.LastChild; last != nil && !(last.Type == html.TextNode && strings.HasSuffix(last.Data, "\n")) {
		d.root.AppendChild(markup.TextNode("\n"))
	}
	d.root.AppendChild(b.node)
	d.root.AppendChild(markup.TextNode("\n"))
}

// Remove detaches b from the document together with one trailing newline.
func (d *Document) Remove(b *Block) {
	if next := b.node.NextSibling; next != nil && next.Type == html.TextNode && strings.TrimSpace(next.Data) == "" {
		markup.Remove(next)
	}
	markup.Remove(b.node)
}

// Bytes serializes the document.
func (d *Document) Bytes() ([]byte, error) {
	s, err := markup.RenderChildren(d.root)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
