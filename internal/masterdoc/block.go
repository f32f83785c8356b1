package masterdoc

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/starford/vitrine/internal/markup"
	"github.com/starford/vitrine/internal/models"
)

// Block is one card block inside a Document. Mutations apply to the
// document tree directly.
type Block struct {
	node *html.Node
}

// NewBlock builds a default empty card for folder. thumbRef may be empty.
func NewBlock(folder, id, thumbRef string) *Block {
	card := markup.Element("div", "class", ClassCard)
	b := &Block{node: card}
	if id != "" {
		b.SetID(id)
	}
	markup.SetAttr(card, AttrFolder, folder)

	head := markup.Element("div", "class", ClassHead)
	h2 := markup.Element("h2")
	h2.AppendChild(markup.TextNode(folder))
	head.AppendChild(h2)
	card.AppendChild(head)
	card.AppendChild(markup.Element("div", "class", ClassInner))

	if thumbRef != "" {
		b.SetThumbnail(thumbRef)
	}
	return b
}

// Node returns the card container element.
func (b *Block) Node() *html.Node { return b.node }

func (b *Block) sel() *goquery.Selection {
	return goquery.NewDocumentFromNode(b.node).Selection
}

func (b *Block) attr(key string) string {
	v, _ := markup.Attr(b.node, key)
	return strings.TrimSpace(v)
}

func (b *Block) flag(key string) bool {
	v, ok := markup.Attr(b.node, key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no", "off":
		return false
	}
	return true
}

// ID returns the stable identifier, or "" when none was assigned yet.
func (b *Block) ID() string { return b.attr(AttrID) }

// SetID assigns the stable identifier.
func (b *Block) SetID(id string) { markup.SetAttr(b.node, AttrID, id) }

// Title returns the heading text, trimmed.
func (b *Block) Title() string {
	h := b.heading()
	if h == nil {
		return ""
	}
	return strings.TrimSpace(markup.Text(h))
}

func (b *Block) heading() *html.Node {
	s := b.sel().Find("." + ClassHead + " h2")
	if s.Length() == 0 {
		s = b.sel().Find("h2")
	}
	if s.Length() == 0 {
		return nil
	}
	return s.Get(0)
}

// SetTitle replaces the heading text and the folder attribute.
func (b *Block) SetTitle(title string) {
	h := b.heading()
	if h == nil {
		h = markup.Element("h2")
		head := b.head()
		head.InsertBefore(h, head.FirstChild)
	}
	for c := h.FirstChild; c != nil; {
		next := c.NextSibling
		h.RemoveChild(c)
		c = next
	}
	h.AppendChild(markup.TextNode(title))
	markup.SetAttr(b.node, AttrFolder, title)
}

// Folder returns the folder attribute, falling back to the title.
func (b *Block) Folder() string {
	if f := b.attr(AttrFolder); f != "" {
		return f
	}
	return b.Title()
}

// SetFolder records the folder attribute.
func (b *Block) SetFolder(folder string) { markup.SetAttr(b.node, AttrFolder, folder) }

// Hidden reports whether the card is excluded from the aggregate page.
func (b *Block) Hidden() bool {
	return b.flag(AttrHidden) || markup.HasClass(b.node, ClassHidden)
}

// Order returns the explicit sort key, if any.
func (b *Block) Order() *int {
	v := b.attr(AttrOrder)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// CreatedAt returns the first-seen time, if recorded.
func (b *Block) CreatedAt() *time.Time {
	v := b.attr(AttrCreated)
	if v == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &ts
}

// SetCreatedAt records the first-seen time. An existing value is kept.
func (b *Block) SetCreatedAt(t time.Time) bool {
	if b.CreatedAt() != nil {
		return false
	}
	markup.SetAttr(b.node, AttrCreated, t.UTC().Format(time.RFC3339))
	return true
}

// Locked reports whether the card is protected from hard deletion.
func (b *Block) Locked() bool { return b.flag(AttrLocked) }

// DeleteIntent reports whether the curator marked the card for hard deletion.
func (b *Block) DeleteIntent() bool { return b.flag(AttrDelete) }

func (b *Block) head() *html.Node {
	if s := b.sel().Find("." + ClassHead); s.Length() > 0 {
		return s.Get(0)
	}
	head := markup.Element("div", "class", ClassHead)
	b.node.InsertBefore(head, b.node.FirstChild)
	return head
}

func (b *Block) thumbImg() *html.Node {
	s := b.sel().Find("." + ClassThumbWrap + " img")
	if s.Length() == 0 {
		s = b.sel().Find("img." + ClassThumb)
	}
	if s.Length() == 0 {
		return nil
	}
	return s.Get(0)
}

// Thumbnail returns the header thumbnail reference, if any.
func (b *Block) Thumbnail() string {
	img := b.thumbImg()
	if img == nil {
		return ""
	}
	v, _ := markup.Attr(img, "src")
	return strings.TrimSpace(v)
}

// SetThumbnail points the header thumbnail at ref, creating the wrapper
// when the card has none.
func (b *Block) SetThumbnail(ref string) {
	if img := b.thumbImg(); img != nil {
		markup.SetAttr(img, "src", ref)
		return
	}
	head := b.head()
	var wrap *html.Node
	if s := goquery.NewDocumentFromNode(head).Find("." + ClassThumbWrap); s.Length() > 0 {
		wrap = s.Get(0)
	} else {
		wrap = markup.Element("div", "class", ClassThumbWrap)
		head.AppendChild(wrap)
	}
	wrap.AppendChild(markup.Element("img", "class", ClassThumb, "src", ref, "alt", "thumbnail"))
}

// BodyHTML renders the body region without the header.
func (b *Block) BodyHTML() string {
	s := b.sel().Find("div." + ClassInner)
	if s.Length() == 0 {
		return ""
	}
	out, _ := markup.RenderChildren(s.Get(0))
	return out
}

// Card snapshots the block.
func (b *Block) Card() models.Card {
	return models.Card{
		ID:        b.ID(),
		Title:     b.Title(),
		BodyHTML:  b.BodyHTML(),
		Thumbnail: b.Thumbnail(),
		Hidden:    b.Hidden(),
		Order:     b.Order(),
		CreatedAt: b.CreatedAt(),
		Locked:    b.Locked(),
		Delete:    b.DeleteIntent(),
	}
}
