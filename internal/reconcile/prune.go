package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/lock"
	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/publish"
	"github.com/starford/vitrine/internal/registry"
	"github.com/starford/vitrine/internal/render"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/storage"
)

// Pruner applies PruneReports.
type Pruner struct {
	layout  site.Layout
	opts    publish.Options
	store   storage.Provider
	reg     *registry.Registry
	builder *publish.Builder
	differ  *Differ
	logger  *slog.Logger
}

// NewPruner wires a Pruner. builder must be the one the Publisher uses so
// both produce identical pages.
func NewPruner(layout site.Layout, opts publish.Options, store storage.Provider, reg *registry.Registry, builder *publish.Builder, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		layout:  layout,
		opts:    opts,
		store:   store,
		reg:     reg,
		builder: builder,
		differ:  NewDiffer(layout, store, logger),
		logger:  logger,
	}
}

// Apply heals the drift listed in rep under the publish lock. Every item is
// confirmed against the disk before it is acted on, so applying a stale
// report is safe and applying the same report twice changes nothing the
// second time. Orphan thumbnails are deleted only when deleteThumbs is set.
//
// The returned error is reserved for conditions that stop the whole apply:
// lock contention (wrapping apperr.ErrLocked), a missing or unreadable
// master document, or a failed scan. Per-item failures are collected in
// ApplyResult.Errors.
func (p *Pruner) Apply(ctx context.Context, rep models.PruneReport, deleteThumbs bool) (res models.ApplyResult, err error) {
	l, err := lock.Acquire(p.layout.LockPath(), p.opts.LockStaleAfter)
	if err != nil {
		return res, err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			res.Errorf("%v", rerr)
		}
	}()

	orig, err := os.ReadFile(p.layout.MasterPath())
	if errors.Is(err, fs.ErrNotExist) {
		return res, fmt.Errorf("prune: master document missing, publish first: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("prune: read master document: %w", err)
	}
	doc, err := masterdoc.Parse(orig)
	if err != nil {
		return res, fmt.Errorf("prune: parse master document: %w", err)
	}
	if err := p.reg.Load(); err != nil {
		res.Errorf("%v", err)
	}

	p.hardDelete(doc, &res)

	folders, err := p.store.Folders()
	if err != nil {
		return res, fmt.Errorf("prune: %w", err)
	}
	ground := storage.FolderNames(folders)

	ids, corrections, err := p.reg.EnsureIDs(folders)
	if err != nil {
		res.Errorf("%v", err)
	}
	for _, c := range corrections {
		res.Correctf("%s", c)
	}
	// Renamed folders keep their card: resolve identity before anything
	// is judged dead or missing.
	before := titlesByID(doc)
	for _, c := range p.reg.Reconcile(doc, ids, p.builder.Rewriter()) {
		res.Correctf("%s", c)
	}
	renamed := make(map[string]bool)
	for _, b := range doc.Blocks() {
		if old, ok := before[b.ID()]; ok && old != b.Title() {
			renamed[b.Title()] = true
		}
	}

	p.removeDead(doc, rep.CardsWithNoFolder, ground, &res)
	p.insertMissing(doc, rep.FoldersWithNoCard, ground, ids, &res)

	css, err := render.LoadStylesheet(p.opts.StylesheetPath)
	if err != nil {
		return res, fmt.Errorf("prune: %w", err)
	}
	if _, err := css.Deploy(p.layout.ContentRoot()); err != nil {
		res.Errorf("stylesheet: %v", err)
	}

	prepared := make(map[string]publish.Prepared)
	var cards []publish.Prepared
	for _, b := range doc.Blocks() {
		c, err := p.builder.Prepare(b)
		if err != nil {
			p.logger.Debug("prune: card skipped", slog.String("title", b.Title()), slog.String("error", err.Error()))
			continue
		}
		if _, dup := prepared[c.Card.Folder()]; !dup {
			prepared[c.Card.Folder()] = c
		}
		cards = append(cards, c)
	}

	p.rebuildPages(rep.FoldersMissingPublishedPage, renamed, ground, ids, prepared, css, &res)

	wrote, err := p.builder.WriteAggregate(cards, css)
	if err != nil {
		res.Errorf("%v", err)
	}
	res.AggregateRewritten = wrote

	data, err := doc.Bytes()
	if err != nil {
		res.Errorf("serialize master document: %v", err)
	} else if !bytes.Equal(data, orig) {
		if err := storage.WriteBytes(p.layout.MasterPath(), data); err != nil {
			res.Errorf("write master document: %v", err)
		}
	}

	// References are collected again only after every page and the master
	// document are written.
	if deleteThumbs {
		p.deleteOrphans(ctx, rep.OrphanThumbnailFiles, ground, &res)
	}

	res.RegistryPruned = p.reg.PruneMissingFolders()
	if _, err := p.reg.Bootstrap(doc); err != nil {
		res.Errorf("%v", err)
	}

	p.logger.Info("prune: applied",
		slog.Int("removed", res.RemovedFromMaster),
		slog.Int("inserted", res.CardsInserted),
		slog.Int("pages_rebuilt", res.PerFolderPagesRebuilt),
		slog.Int("thumbs_deleted", res.OrphanThumbnailsDeleted),
		slog.Int("hard_deleted", res.HardDeletedFolders),
		slog.Int("locked_skipped", res.LockedSkipped),
		slog.Int("errors", len(res.Errors)))
	return res, nil
}

// hardDelete honors cards marked for deletion. Locked cards are skipped and
// counted.
func (p *Pruner) hardDelete(doc *masterdoc.Document, res *models.ApplyResult) {
	for _, b := range doc.Blocks() {
		if !b.DeleteIntent() {
			continue
		}
		title := b.Title()
		if b.Locked() {
			res.LockedSkipped++
			p.logger.Warn("prune: locked card not deleted", slog.String("folder", title))
			continue
		}
		if site.ValidFolder(title) && p.store.Exists(title) {
			if err := p.store.RemoveFolder(title); err != nil {
				res.Errorf("hard delete %s: %v", title, err)
				continue
			}
			res.HardDeletedFolders++
			p.logger.Info("prune: folder hard-deleted", slog.String("folder", title))
		}
		if id := b.ID(); id != "" {
			p.reg.RemoveByID(id)
		}
		doc.Remove(b)
		res.RemovedFromMaster++
	}
}

func (p *Pruner) removeDead(doc *masterdoc.Document, names []string, ground map[string]struct{}, res *models.ApplyResult) {
	dead := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := ground[n]; !ok {
			dead[n] = true
		}
	}
	for _, b := range doc.Blocks() {
		title := b.Title()
		if !dead[title] || p.store.Exists(title) {
			continue
		}
		doc.Remove(b)
		res.RemovedFromMaster++
		p.logger.Info("prune: card removed", slog.String("folder", title))
	}
}

func (p *Pruner) insertMissing(doc *masterdoc.Document, names []string, ground map[string]struct{}, ids map[string]string, res *models.ApplyResult) {
	titles := doc.Titles()
	for _, n := range names {
		if _, ok := ground[n]; !ok {
			continue
		}
		if _, ok := titles[n]; ok {
			continue
		}
		doc.Append(masterdoc.NewBlock(n, ids[n], p.thumbRef(n)))
		titles[n] = struct{}{}
		res.CardsInserted++
		p.logger.Info("prune: default card inserted", slog.String("folder", n))
	}
}

// rebuildPages writes the page of every listed folder that has none, and
// rewrites the pages of renamed folders.
func (p *Pruner) rebuildPages(names []string, renamed map[string]bool, ground map[string]struct{}, ids map[string]string, prepared map[string]publish.Prepared, css render.Stylesheet, res *models.ApplyResult) {
	todo := make([]string, 0, len(names)+len(renamed))
	todo = append(todo, names...)
	for n := range renamed {
		todo = append(todo, n)
	}
	sort.Strings(todo[len(names):])
	done := make(map[string]bool, len(todo))
	for _, n := range todo {
		if _, ok := ground[n]; !ok || done[n] {
			continue
		}
		done[n] = true
		if _, err := os.Stat(p.layout.FolderPagePath(n)); err == nil && !renamed[n] {
			continue
		}
		c, ok := prepared[n]
		if !ok {
			var err error
			c, err = p.builder.Prepare(masterdoc.NewBlock(n, ids[n], p.thumbRef(n)))
			if err != nil {
				res.Errorf("page for %s: %v", n, err)
				continue
			}
		}
		if _, err := css.Deploy(p.layout.FolderDir(n)); err != nil {
			res.Errorf("stylesheet for %s: %v", n, err)
		}
		wrote, err := p.builder.WriteFolderPage(c, css)
		if err != nil {
			res.Errorf("%v", err)
			continue
		}
		if wrote {
			res.PerFolderPagesRebuilt++
		}
	}
}

// deleteOrphans deletes the reported thumbnails that are still unreferenced
// now. A file referenced since the report was computed is kept.
func (p *Pruner) deleteOrphans(ctx context.Context, orphans map[string][]string, ground map[string]struct{}, res *models.ApplyResult) {
	st, err := p.differ.read()
	if err != nil {
		res.Errorf("orphan thumbnails: %v", err)
		return
	}
	for folder, files := range orphans {
		if _, ok := ground[folder]; !ok {
			continue
		}
		current, err := p.differ.orphanThumbs(folder, st.refs)
		if err != nil {
			res.Errorf("%v", err)
			continue
		}
		still := make(map[string]bool, len(current))
		for _, name := range current {
			still[name] = true
		}
		for _, name := range files {
			if ctx.Err() != nil {
				res.Errorf("orphan deletion interrupted: %v", ctx.Err())
				return
			}
			if !still[name] {
				p.logger.Debug("prune: thumbnail no longer orphaned", slog.String("folder", folder), slog.String("file", name))
				continue
			}
			rel := path.Join(folder, site.ThumbsDir, name)
			if err := p.store.Delete(rel); err != nil {
				res.Errorf("delete %s: %v", rel, err)
				continue
			}
			res.OrphanThumbnailsDeleted++
		}
	}
}

func (p *Pruner) thumbRef(folder string) string {
	info, err := os.Stat(p.layout.ThumbnailPath(folder))
	if err == nil && !info.IsDir() && info.Size() > 0 {
		return p.layout.ThumbnailRef(folder)
	}
	return ""
}

func titlesByID(doc *masterdoc.Document) map[string]string {
	out := make(map[string]string)
	for _, b := range doc.Blocks() {
		if id := b.ID(); id != "" {
			out[id] = b.Title()
		}
	}
	return out
}
