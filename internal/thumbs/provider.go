// Package thumbs decides whether a folder has a thumbnail and delegates
// generation to external tools. Image bytes are never inspected here.
package thumbs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/site"
)

// ErrNoSource is returned when a folder has no file a thumbnail can be made from.
var ErrNoSource = fmt.Errorf("thumbs: no thumbnail source: %w", apperr.ErrUnavailable)

// Provider answers thumbnail questions for topic folders.
type Provider interface {
	HasThumbnail(folder string) bool
	EnsureThumbnail(ctx context.Context, folder string, maxWidth int) (models.SourceKind, error)
}

// Generator renders one thumbnail from a source file.
type Generator interface {
	Generate(ctx context.Context, kind models.SourceKind, src, dst string, maxWidth int) error
}

// FS is a Provider over the content root.
type FS struct {
	layout site.Layout
	gen    Generator
	logger *slog.Logger
}

// NewFS returns a Provider. gen may be nil, in which case missing
// thumbnails are reported as unavailable.
func NewFS(layout site.Layout, gen Generator, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{layout: layout, gen: gen, logger: logger}
}

// HasThumbnail reports whether the folder's primary thumbnail file exists.
func (p *FS) HasThumbnail(folder string) bool {
	info, err := os.Stat(p.layout.ThumbnailPath(folder))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// EnsureThumbnail generates the folder's thumbnail when it is missing and
// returns the kind of source used. An existing thumbnail is left alone.
func (p *FS) EnsureThumbnail(ctx context.Context, folder string, maxWidth int) (models.SourceKind, error) {
	src, kind, err := p.Source(folder)
	if p.HasThumbnail(folder) {
		return kind, nil
	}
	if err != nil {
		return models.SourceNone, err
	}
	if p.gen == nil {
		return kind, fmt.Errorf("thumbs: %s: no generator configured: %w", folder, apperr.ErrUnavailable)
	}

	dst := p.layout.ThumbnailPath(folder)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return kind, fmt.Errorf("thumbs: mkdir: %w", err)
	}
	if err := p.gen.Generate(ctx, kind, src, dst, maxWidth); err != nil {
		_ = os.Remove(dst)
		return kind, fmt.Errorf("thumbs: generate %s from %s: %w", folder, filepath.Base(src), err)
	}
	p.logger.Info("thumbs: generated",
		slog.String("folder", folder),
		slog.String("source", filepath.Base(src)),
		slog.String("kind", string(kind)))
	return kind, nil
}

// Refresh removes the existing thumbnail and generates a new one.
func (p *FS) Refresh(ctx context.Context, folder string, maxWidth int) (models.SourceKind, error) {
	if err := os.Remove(p.layout.ThumbnailPath(folder)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return models.SourceNone, fmt.Errorf("thumbs: remove old: %w", err)
	}
	return p.EnsureThumbnail(ctx, folder, maxWidth)
}

// Source picks the file a thumbnail is generated from: images first, then
// PDFs, then videos; ties go to the alphabetically first name.
func (p *FS) Source(folder string) (string, models.SourceKind, error) {
	dir := p.layout.FolderDir(folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", models.SourceNone, fmt.Errorf("thumbs: read %s: %w", folder, err)
	}
	type candidate struct {
		name string
		kind models.SourceKind
	}
	var cands []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if k := models.SourceKindOf(e.Name()); k != models.SourceNone {
			cands = append(cands, candidate{name: e.Name(), kind: k})
		}
	}
	if len(cands) == 0 {
		return "", models.SourceNone, fmt.Errorf("%s: %w", folder, ErrNoSource)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].kind.Priority() != cands[j].kind.Priority() {
			return cands[i].kind.Priority() < cands[j].kind.Priority()
		}
		return cands[i].name < cands[j].name
	})
	return filepath.Join(dir, cands[0].name), cands[0].kind, nil
}
