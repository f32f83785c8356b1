// Package publish turns the master document into the aggregate page and
// the per-folder pages.
package publish

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/starford/vitrine/internal/markup"
	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/paths"
	"github.com/starford/vitrine/internal/render"
	"github.com/starford/vitrine/internal/sanitize"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/storage"
)

// ErrInvalidTitle is returned for cards whose title cannot name a folder.
var ErrInvalidTitle = errors.New("publish: card title is empty or not a folder name")

// Prepared is one card ready to be rendered in both output frames.
type Prepared struct {
	Card      models.Card
	Aggregate render.CardView
	Folder    render.CardView
	Metrics   models.SanitizeMetrics
}

// Builder prepares cards and writes pages. It is shared by the Publisher
// and the Pruner so both render identical output.
type Builder struct {
	layout    site.Layout
	siteTitle string
	sanitizer *sanitize.Sanitizer
	rewriter  *paths.Rewriter
	verbose   bool
	logger    *slog.Logger
}

// NewBuilder returns a Builder for layout.
func NewBuilder(layout site.Layout, siteTitle string, verbose bool, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		layout:    layout,
		siteTitle: siteTitle,
		sanitizer: sanitize.New(),
		rewriter:  paths.New(layout.ContentPrefix(), layout.BackLinks()...),
		verbose:   verbose,
		logger:    logger,
	}
}

// Rewriter exposes the path rewriter configured for the layout.
func (b *Builder) Rewriter() *paths.Rewriter { return b.rewriter }

// Prepare sanitizes a copy of block and rewrites it for both output
// frames. block itself is not modified.
func (b *Builder) Prepare(block *masterdoc.Block) (Prepared, error) {
	meta := block.Card()
	folder := meta.Folder()
	if !site.ValidFolder(folder) {
		return Prepared{}, fmt.Errorf("%w: %q", ErrInvalidTitle, meta.Title)
	}

	// The container's own metadata is read from block, never published,
	// and must not count as sanitizer removals.
	clone := markup.Clone(block.Node())
	for _, key := range masterdoc.MetaAttrs {
		markup.RemoveAttr(clone, key)
	}
	container := markup.Element("div")
	container.AppendChild(clone)
	metrics := b.sanitizer.Tree(container)

	sel := goquery.NewDocumentFromNode(container).Selection
	thumb := ""
	if img := sel.Find("." + masterdoc.ClassThumbWrap + " img, img." + masterdoc.ClassThumb).First(); img.Length() > 0 {
		thumb, _ = img.Attr("src")
	}
	body := bodyNode(sel)

	editorBody, err := markup.RenderChildren(body)
	if err != nil {
		return Prepared{}, err
	}
	aggBody, err := b.frame(body, folder, paths.AggregateFrame)
	if err != nil {
		return Prepared{}, err
	}
	folderBody, err := b.frame(body, folder, paths.PerFolderFrame)
	if err != nil {
		return Prepared{}, err
	}

	meta.Title = folder
	meta.BodyHTML = editorBody
	meta.Thumbnail = thumb

	if b.verbose {
		b.logger.Debug("publish: sanitized card",
			slog.String("folder", folder),
			slog.Int("nodes_removed", metrics.NodesRemoved),
			slog.Int("attrs_removed", metrics.AttrsRemoved),
			slog.Int("tags_unwrapped", metrics.TagsUnwrapped),
			slog.Int("urls_blocked", metrics.URLsBlocked))
	}

	view := func(body string, frame paths.Frame) render.CardView {
		v := render.CardView{
			ID:     meta.ID,
			Folder: folder,
			Title:  folder,
			Href:   b.rewriter.Ref(b.layout.FolderPage, folder, paths.AggregateFrame),
			Body:   template.HTML(body), //nolint:gosec // sanitized above
		}
		if thumb != "" {
			v.Thumbnail = b.rewriter.Ref(thumb, folder, frame)
		}
		return v
	}
	return Prepared{
		Card:      meta,
		Aggregate: view(aggBody, paths.AggregateFrame),
		Folder:    view(folderBody, paths.PerFolderFrame),
		Metrics:   metrics,
	}, nil
}

// bodyNode returns the card's body region. Cards without one contribute
// everything except their header.
func bodyNode(sel *goquery.Selection) *html.Node {
	if inner := sel.Find("div." + masterdoc.ClassInner).First(); inner.Length() > 0 {
		return inner.Get(0)
	}
	card := sel.Children().First()
	card.Find("." + masterdoc.ClassHead).Remove()
	card.Find("h2").First().Remove()
	if card.Length() == 0 {
		return markup.Element("div")
	}
	return card.Get(0)
}

func (b *Builder) frame(body *html.Node, folder string, frame paths.Frame) (string, error) {
	c := markup.Clone(body)
	b.rewriter.Tree(c, folder, frame)
	return markup.RenderChildren(c)
}

// SortAggregate orders prepared cards for the aggregate page.
func SortAggregate(cards []Prepared) {
	sort.SliceStable(cards, func(i, j int) bool { return models.CardLess(cards[i].Card, cards[j].Card) })
}

// WriteAggregate renders and atomically writes the aggregate page from the
// non-hidden cards, sorted. It reports whether the file changed.
func (b *Builder) WriteAggregate(cards []Prepared, css render.Stylesheet) (bool, error) {
	visible := make([]Prepared, 0, len(cards))
	for _, c := range cards {
		if !c.Card.Hidden {
			visible = append(visible, c)
		}
	}
	SortAggregate(visible)

	views := make([]render.CardView, len(visible))
	for i, c := range visible {
		views[i] = c.Aggregate
	}
	page, err := render.Aggregate(render.AggregateData{
		Title:      b.siteTitle,
		Stylesheet: css.Name,
		Cards:      views,
	})
	if err != nil {
		return false, err
	}
	wrote, err := storage.WriteIfChanged(b.layout.AggregatePath(), page)
	if err != nil {
		return false, fmt.Errorf("publish: write aggregate: %w", err)
	}
	return wrote, nil
}

// WriteFolderPage renders and atomically writes one per-folder page. It
// reports whether the file changed.
func (b *Builder) WriteFolderPage(card Prepared, css render.Stylesheet) (bool, error) {
	page, err := render.Folder(render.FolderData{
		SiteTitle:  b.siteTitle,
		Stylesheet: "../" + css.Name,
		BackLink:   "../" + b.layout.AggregatePage,
		Card:       card.Folder,
	})
	if err != nil {
		return false, err
	}
	wrote, err := storage.WriteIfChanged(b.layout.FolderPagePath(card.Card.Folder()), page)
	if err != nil {
		return false, fmt.Errorf("publish: write page for %s: %w", card.Card.Folder(), err)
	}
	return wrote, nil
}
