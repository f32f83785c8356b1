package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/lock"
	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/registry"
	"github.com/starford/vitrine/internal/render"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/storage"
	"github.com/starford/vitrine/internal/thumbs"
)

// Options are the publish switches, validated once at startup.
type Options struct {
	ForceScanFailure        bool
	ForcePushFailure        bool
	VerboseSanitizerLogging bool
	AutoMergeNewFolders     bool
	PruneOnPublish          bool
	LockStaleAfter          time.Duration
	ThumbnailWidth          int
	SiteTitle               string
	StylesheetPath          string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		AutoMergeNewFolders: true,
		LockStaleAfter:      time.Hour,
		ThumbnailWidth:      640,
		SiteTitle:           "Topics",
	}
}

// Publisher runs the publish pipeline.
type Publisher struct {
	layout  site.Layout
	opts    Options
	store   storage.Provider
	reg     *registry.Registry
	thumbs  thumbs.Provider
	builder *Builder
	logger  *slog.Logger
}

// New wires a Publisher.
func New(layout site.Layout, opts Options, store storage.Provider, reg *registry.Registry, tp thumbs.Provider, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		layout:  layout,
		opts:    opts,
		store:   store,
		reg:     reg,
		thumbs:  tp,
		builder: NewBuilder(layout, opts.SiteTitle, opts.VerboseSanitizerLogging, logger),
		logger:  logger,
	}
}

// Builder returns the card builder shared with the pruner.
func (p *Publisher) Builder() *Builder { return p.builder }

// run carries the state of one publish pass.
type run struct {
	res     *models.PublishResult
	folders map[string]models.FolderRecord
	scanOK  bool
	doc     *masterdoc.Document
	orig    []byte
}

// Publish runs one full publish under the publish lock. It never returns a
// Go error: every problem is reported on the result.
func (p *Publisher) Publish(ctx context.Context) (res models.PublishResult) {
	res = models.PublishResult{StartedAt: time.Now(), ScanOK: true, PushOK: true}
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		res.Success = !res.Locked && res.ScanOK && res.PushOK
		p.logger.Info("publish: finished",
			slog.Bool("success", res.Success),
			slog.Int("cards", res.CardsProcessed),
			slog.Int("hidden", res.HiddenCount),
			slog.Int("errors", len(res.Errors)),
			slog.String("duration", res.Duration.String()))
	}()

	l, err := lock.Acquire(p.layout.LockPath(), p.opts.LockStaleAfter)
	if err != nil {
		if errors.Is(err, apperr.ErrLocked) {
			res.Locked = true
			res.Errorf("locked: another publish is in progress")
			return res
		}
		res.PushOK = false
		res.Errorf("lock: %v", err)
		return res
	}
	defer func() {
		if err := l.Release(); err != nil {
			res.Errorf("%v", err)
		}
	}()

	p.publish(ctx, &res)
	return res
}

func (p *Publisher) publish(ctx context.Context, res *models.PublishResult) {
	r := &run{res: res, folders: make(map[string]models.FolderRecord)}

	masterExists := fileExists(p.layout.MasterPath())
	if !masterExists && fileExists(p.layout.AggregatePath()) {
		res.Skipped = "master document missing while the aggregate page exists; treated as an intentional deletion"
		p.logger.Warn("publish: skipped", slog.String("reason", res.Skipped))
		return
	}

	folders := p.scan(r)

	if masterExists {
		data, err := os.ReadFile(p.layout.MasterPath())
		if err != nil {
			res.PushOK = false
			res.Errorf("read master document: %v", err)
			return
		}
		doc, err := masterdoc.Parse(data)
		if err != nil {
			res.PushOK = false
			res.Errorf("parse master document: %v", err)
			return
		}
		r.doc, r.orig = doc, data
	} else {
		r.doc = p.coldStart(folders)
		res.Correctf("master document synthesized from %d folders", len(folders))
	}

	ids := p.ensureIDs(r, folders)
	p.merge(r, folders, ids)

	prepared := p.prepare(ctx, r)

	css, err := render.LoadStylesheet(p.opts.StylesheetPath)
	if err != nil {
		res.PushOK = false
		res.Errorf("%v", err)
		return
	}
	p.deployStylesheet(r, css, folders)

	p.push(r, prepared, css)
}

func (p *Publisher) scan(r *run) []models.FolderRecord {
	var folders []models.FolderRecord
	var err error
	if p.opts.ForceScanFailure {
		err = errors.New("forced scan failure")
	} else {
		folders, err = p.store.Folders()
	}
	if err != nil {
		r.res.ScanOK = false
		r.res.Errorf("scan: %v", err)
		p.logger.Error("publish: scan failed", slog.String("error", err.Error()))
		return nil
	}
	r.scanOK = true
	for _, f := range folders {
		r.folders[f.Name] = f
	}
	return folders
}

// coldStart builds a master document with one default card per folder.
func (p *Publisher) coldStart(folders []models.FolderRecord) *masterdoc.Document {
	doc := masterdoc.New()
	for _, f := range folders {
		doc.Append(masterdoc.NewBlock(f.Name, "", p.thumbRef(f.Name)))
	}
	p.logger.Info("publish: cold start", slog.Int("folders", len(folders)))
	return doc
}

func (p *Publisher) thumbRef(folder string) string {
	if p.thumbs != nil && p.thumbs.HasThumbnail(folder) {
		return p.layout.ThumbnailRef(folder)
	}
	return ""
}

func (p *Publisher) ensureIDs(r *run, folders []models.FolderRecord) map[string]string {
	if !r.scanOK {
		return map[string]string{}
	}
	if err := p.reg.Load(); err != nil {
		r.res.Warnf("%v", err)
	}
	ids, corrections, err := p.reg.EnsureIDs(folders)
	for _, c := range corrections {
		r.res.Correctf("%s", c)
	}
	if err != nil {
		r.res.ScanOK = false
		r.res.Errorf("identity: %v", err)
	}
	return ids
}

// merge aligns the document with the folder tree: renames, duplicate
// removal, default cards for new folders and, optionally, pruning of cards
// whose folder is gone.
func (p *Publisher) merge(r *run, folders []models.FolderRecord, ids map[string]string) {
	for _, c := range p.reg.Reconcile(r.doc, ids, p.builder.Rewriter()) {
		r.res.Correctf("%s", c)
	}
	if !r.scanOK {
		return
	}

	titles := r.doc.Titles()
	if p.opts.AutoMergeNewFolders {
		for _, f := range folders {
			if _, ok := titles[f.Name]; ok {
				continue
			}
			r.doc.Append(masterdoc.NewBlock(f.Name, ids[f.Name], p.thumbRef(f.Name)))
			r.res.Correctf("%s: default card inserted for new folder", f.Name)
			p.logger.Info("publish: new folder merged", slog.String("folder", f.Name))
		}
	}

	if p.opts.PruneOnPublish {
		for _, b := range r.doc.Blocks() {
			t := b.Title()
			if _, ok := r.folders[t]; ok || t == "" || dirExists(p.layout.FolderDir(t)) {
				continue
			}
			r.doc.Remove(b)
			r.res.Correctf("%s: card removed, folder no longer exists", t)
		}
	}
}

// prepare walks the cards in document order, normalizes their metadata in
// the document and builds both output frames.
func (p *Publisher) prepare(ctx context.Context, r *run) []Prepared {
	var out []Prepared
	for _, b := range r.doc.Blocks() {
		title := b.Title()
		if !site.ValidFolder(title) {
			r.res.Warnf("card %q skipped: title is empty or not a folder name", title)
			p.logger.Warn("publish: card skipped", slog.String("title", title), slog.String("id", b.ID()))
			continue
		}
		b.SetFolder(title)

		if rec, ok := r.folders[title]; ok {
			if b.SetCreatedAt(rec.LastModified) {
				p.logger.Debug("publish: created_at backfilled", slog.String("folder", title))
			}
			p.ensureThumbnail(ctx, r, b, rec)
		}

		prep, err := p.builder.Prepare(b)
		if err != nil {
			r.res.Warnf("card %q skipped: %v", title, err)
			p.logger.Warn("publish: card skipped", slog.String("title", title), slog.String("error", err.Error()))
			continue
		}
		r.res.Metrics.Add(prep.Metrics)
		r.res.CardsProcessed++
		if prep.Card.Hidden {
			r.res.HiddenCount++
		}
		out = append(out, prep)
	}
	return out
}

func (p *Publisher) ensureThumbnail(ctx context.Context, r *run, b *masterdoc.Block, rec models.FolderRecord) {
	if p.thumbs == nil {
		return
	}
	folder := rec.Name
	if !p.thumbs.HasThumbnail(folder) && rec.HasThumbnailSource {
		kind, err := p.thumbs.EnsureThumbnail(ctx, folder, p.opts.ThumbnailWidth)
		switch {
		case err == nil:
			if id := b.ID(); id != "" {
				p.reg.Upsert(models.RegistryEntry{ID: id, Folder: folder, Title: folder, ThumbnailSourceKind: string(kind)})
			}
		case errors.Is(err, apperr.ErrUnavailable):
			p.logger.Debug("publish: thumbnail unavailable", slog.String("folder", folder), slog.String("error", err.Error()))
		default:
			r.res.Warnf("thumbnail for %s: %v", folder, err)
		}
	}
	if b.Thumbnail() == "" && p.thumbs.HasThumbnail(folder) {
		b.SetThumbnail(p.layout.ThumbnailRef(folder))
		p.logger.Debug("publish: thumbnail injected", slog.String("folder", folder))
	}
}

func (p *Publisher) deployStylesheet(r *run, css render.Stylesheet, folders []models.FolderRecord) {
	dirs := []string{p.layout.ContentRoot()}
	for _, f := range folders {
		dirs = append(dirs, p.layout.FolderDir(f.Name))
	}
	for _, d := range dirs {
		if _, err := css.Deploy(d); err != nil {
			r.res.PushOK = false
			r.res.Errorf("stylesheet: %v", err)
		}
	}
}

func (p *Publisher) push(r *run, prepared []Prepared, css render.Stylesheet) {
	res := r.res
	if p.opts.ForcePushFailure {
		res.PushOK = false
		res.Errorf("push: forced push failure")
	} else {
		wrote, err := p.builder.WriteAggregate(prepared, css)
		if err != nil {
			res.PushOK = false
			res.Errorf("%v", err)
		} else if wrote {
			res.PagesWritten++
		}
	}

	if err := p.writeBack(r); err != nil {
		res.PushOK = false
		res.Errorf("%v", err)
	}
	if _, err := p.reg.Bootstrap(r.doc); err != nil {
		res.Errorf("%v", err)
	}

	if p.opts.ForcePushFailure {
		return
	}
	for _, c := range prepared {
		folder := c.Card.Folder()
		if !dirExists(p.layout.FolderDir(folder)) {
			p.logger.Info("publish: folder gone, page skipped", slog.String("folder", folder))
			continue
		}
		wrote, err := p.builder.WriteFolderPage(c, css)
		if err != nil {
			res.PushOK = false
			res.Errorf("%v", err)
			continue
		}
		if wrote {
			res.PagesWritten++
		}
	}
}

// writeBack persists identity and metadata normalization into the master
// document when anything changed.
func (p *Publisher) writeBack(r *run) error {
	data, err := r.doc.Bytes()
	if err != nil {
		return fmt.Errorf("serialize master document: %w", err)
	}
	if r.orig != nil && bytes.Equal(data, r.orig) {
		return nil
	}
	if err := storage.WriteBytes(p.layout.MasterPath(), data); err != nil {
		return fmt.Errorf("write master document: %w", err)
	}
	p.logger.Info("publish: master document updated")
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err == nil && info.IsDir()
}
