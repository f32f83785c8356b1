// Package reconcile detects drift between the folder tree and the derived
// pages, and heals it.
package reconcile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/storage"
)

// Report keys of PruneReport.Summary.
const (
	SummaryCardsWithNoFolder  = "cards_with_no_folder"
	SummaryFoldersWithNoCard  = "folders_with_no_card"
	SummaryMissingPages       = "folders_missing_published_page"
	SummaryAggregateOnly      = "aggregate_only_orphans"
	SummaryOrphanThumbnails   = "orphan_thumbnail_files"
	SummaryGroundTruthFolders = "ground_truth_folders"
	SummaryMasterCards        = "master_cards"
	SummaryAggregateCards     = "aggregate_cards"
)

var refAttrs = []string{"src", "href", "poster"}

// Differ computes PruneReports. It only reads and does not take the
// publish lock.
type Differ struct {
	layout site.Layout
	store  storage.Provider
	logger *slog.Logger
}

// NewDiffer returns a Differ for layout.
func NewDiffer(layout site.Layout, store storage.Provider, logger *slog.Logger) *Differ {
	if logger == nil {
		logger = slog.Default()
	}
	return &Differ{layout: layout, store: store, logger: logger}
}

// state is one read of every input the report is computed from.
type state struct {
	folders   []models.FolderRecord
	ground    map[string]struct{}
	master    map[string]struct{}
	aggregate map[string]struct{}
	refs      map[string]struct{}
}

// Diff compares the folder tree against the master document and the
// published pages.
func (d *Differ) Diff() (models.PruneReport, error) {
	st, err := d.read()
	if err != nil {
		return models.PruneReport{}, err
	}

	rep := models.PruneReport{OrphanThumbnailFiles: make(map[string][]string)}
	seen := make(map[string]struct{})
	for _, set := range []map[string]struct{}{st.master, st.aggregate} {
		for name := range set {
			if _, ok := st.ground[name]; ok {
				continue
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				rep.CardsWithNoFolder = append(rep.CardsWithNoFolder, name)
			}
		}
	}
	for _, f := range st.folders {
		if _, ok := st.master[f.Name]; !ok {
			rep.FoldersWithNoCard = append(rep.FoldersWithNoCard, f.Name)
		}
		if !fileExists(d.layout.FolderPagePath(f.Name)) {
			rep.FoldersMissingPublishedPage = append(rep.FoldersMissingPublishedPage, f.Name)
		}
		orphans, err := d.orphanThumbs(f.Name, st.refs)
		if err != nil {
			return models.PruneReport{}, err
		}
		if len(orphans) > 0 {
			rep.OrphanThumbnailFiles[f.Name] = orphans
		}
	}
	for name := range st.aggregate {
		if _, ok := st.master[name]; !ok {
			rep.AggregateOnlyOrphans = append(rep.AggregateOnlyOrphans, name)
		}
	}
	sort.Strings(rep.CardsWithNoFolder)
	sort.Strings(rep.AggregateOnlyOrphans)

	rep.Summary = map[string]int{
		SummaryCardsWithNoFolder:  len(rep.CardsWithNoFolder),
		SummaryFoldersWithNoCard:  len(rep.FoldersWithNoCard),
		SummaryMissingPages:       len(rep.FoldersMissingPublishedPage),
		SummaryAggregateOnly:      len(rep.AggregateOnlyOrphans),
		SummaryOrphanThumbnails:   rep.OrphanCount(),
		SummaryGroundTruthFolders: len(st.folders),
		SummaryMasterCards:        len(st.master),
		SummaryAggregateCards:     len(st.aggregate),
	}
	d.logger.Info("diff: computed",
		slog.Int("cards_with_no_folder", len(rep.CardsWithNoFolder)),
		slog.Int("folders_with_no_card", len(rep.FoldersWithNoCard)),
		slog.Int("missing_pages", len(rep.FoldersMissingPublishedPage)),
		slog.Int("aggregate_only", len(rep.AggregateOnlyOrphans)),
		slog.Int("orphan_thumbnails", rep.OrphanCount()))
	return rep, nil
}

func (d *Differ) read() (*state, error) {
	folders, err := d.store.Folders()
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	st := &state{
		folders:   folders,
		ground:    storage.FolderNames(folders),
		master:    make(map[string]struct{}),
		aggregate: make(map[string]struct{}),
		refs:      make(map[string]struct{}),
	}
	prefix := d.layout.ContentPrefix()
	contentBase := strings.TrimSuffix(prefix, "/")

	if data, ok, err := readOptional(d.layout.MasterPath()); err != nil {
		return nil, err
	} else if ok {
		doc, err := masterdoc.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("diff: parse master document: %w", err)
		}
		for name := range doc.Titles() {
			st.master[name] = struct{}{}
		}
		if err := collectRefs(data, "", prefix, st.refs); err != nil {
			return nil, err
		}
	}

	if data, ok, err := readOptional(d.layout.AggregatePath()); err != nil {
		return nil, err
	} else if ok {
		page, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("diff: parse aggregate page: %w", err)
		}
		page.Find("div." + masterdoc.ClassCard + "[data-folder]").Each(func(_ int, s *goquery.Selection) {
			if name := strings.TrimSpace(s.AttrOr("data-folder", "")); name != "" {
				st.aggregate[name] = struct{}{}
			}
		})
		addRefs(page.Selection, contentBase, prefix, st.refs)
	}

	for _, f := range folders {
		data, ok, err := readOptional(d.layout.FolderPagePath(f.Name))
		if err != nil {
			return nil, err
		}
		if ok {
			if err := collectRefs(data, contentBase+"/"+f.Name, prefix, st.refs); err != nil {
				return nil, err
			}
		}
	}
	return st, nil
}

// orphanThumbs lists the files in folder's thumbnail directory that no
// page or document references. The folder's primary thumbnail belongs to
// the folder itself and is never an orphan.
func (d *Differ) orphanThumbs(folder string, refs map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(d.layout.ThumbsPath(folder))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("diff: list thumbnails of %s: %w", folder, err)
	}
	primary := site.ThumbnailName(folder)
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || name == primary {
			continue
		}
		if _, ok := refs[folder+"/"+site.ThumbsDir+"/"+name]; !ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func collectRefs(data []byte, base, prefix string, into map[string]struct{}) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("diff: parse: %w", err)
	}
	addRefs(doc.Selection, base, prefix, into)
	return nil
}

// addRefs records every local reference below sel as a path relative to
// the content root. base is the referring page's directory relative to the
// site root.
func addRefs(sel *goquery.Selection, base, prefix string, into map[string]struct{}) {
	for _, attr := range refAttrs {
		sel.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			if key, ok := resolve(base, s.AttrOr(attr, ""), prefix); ok {
				into[key] = struct{}{}
			}
		})
	}
}

func resolve(base, ref, prefix string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" || strings.HasPrefix(u.Path, "/") {
		return "", false
	}
	key := path.Clean(path.Join(base, u.Path))
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return strings.TrimPrefix(key, prefix), true
}

func readOptional(p string) ([]byte, bool, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("diff: read %s: %w", p, err)
	}
	return data, true, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
