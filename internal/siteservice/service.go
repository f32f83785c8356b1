// Package siteservice is the facade the HTTP API, the MCP server and the
// CLI share. It wires the publish pipeline to the run journal, the card
// index and the event broker.
package siteservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/checksum"
	"github.com/starford/vitrine/internal/index"
	"github.com/starford/vitrine/internal/lock"
	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/publish"
	"github.com/starford/vitrine/internal/reconcile"
	"github.com/starford/vitrine/internal/registry"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/sse"
	"github.com/starford/vitrine/internal/storage"
	"github.com/starford/vitrine/internal/thumbs"
)

// MasterDetail is the master document with its parsed cards.
type MasterDetail struct {
	Content   string        `json:"content"`
	Checksum  string        `json:"checksum"`
	Cards     []models.Card `json:"cards"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PruneOutcome is a prune run: the report it acted on and what changed.
type PruneOutcome struct {
	Report models.PruneReport `json:"report"`
	Result models.ApplyResult `json:"result"`
}

// LockStatus describes the publish lock.
type LockStatus struct {
	Held   bool         `json:"held"`
	Holder *lock.Holder `json:"holder,omitempty"`
}

// Service coordinates the pipeline, the index and event delivery.
type Service struct {
	layout    site.Layout
	opts      publish.Options
	store     storage.Provider
	db        index.CardIndex
	broker    *sse.Broker
	thumbs    *thumbs.FS
	reg       *registry.Registry
	publisher *publish.Publisher
	differ    *reconcile.Differ
	pruner    *reconcile.Pruner
	logger    *slog.Logger
}

// NewService wires the pipeline for layout. broker may be nil when no
// event stream is served; gen may be nil when thumbnails are not generated.
func NewService(layout site.Layout, opts publish.Options, store storage.Provider, db index.CardIndex, broker *sse.Broker, gen thumbs.Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	reg := registry.New(layout, logger)
	tp := thumbs.NewFS(layout, gen, logger)
	pub := publish.New(layout, opts, store, reg, tp, logger)
	return &Service{
		layout:    layout,
		opts:      opts,
		store:     store,
		db:        db,
		broker:    broker,
		thumbs:    tp,
		reg:       reg,
		publisher: pub,
		differ:    reconcile.NewDiffer(layout, store, logger),
		pruner:    reconcile.NewPruner(layout, opts, store, reg, pub.Builder(), logger),
		logger:    logger,
	}
}

// Layout returns the site layout the service operates on.
func (s *Service) Layout() site.Layout { return s.layout }

// GetMaster reads and parses the master document.
func (s *Service) GetMaster(_ context.Context) (*MasterDetail, error) {
	data, err := os.ReadFile(s.layout.MasterPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return buildMasterDetail(data, s.layout.MasterPath())
}

// SaveMaster replaces the master document under the publish lock. When
// ifMatch is set it must equal the checksum of the current document.
func (s *Service) SaveMaster(_ context.Context, content []byte, ifMatch string) (*MasterDetail, error) {
	if _, err := masterdoc.Parse(content); err != nil {
		return nil, fmt.Errorf("parse master document: %w", err)
	}

	l, err := lock.Acquire(s.layout.LockPath(), s.opts.LockStaleAfter)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := l.Release(); err != nil {
			s.logger.Error("service: release lock", slog.String("error", err.Error()))
		}
	}()

	existing, err := os.ReadFile(s.layout.MasterPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if ifMatch != "" {
			return nil, apperr.ErrNotFound
		}
	case err != nil:
		return nil, err
	case ifMatch != "" && ifMatch != checksum.Sum(existing):
		return nil, apperr.ErrConflict
	}

	if err := storage.WriteBytes(s.layout.MasterPath(), content); err != nil {
		return nil, err
	}
	s.logger.Info("service: master document saved", slog.Int("bytes", len(content)))
	return buildMasterDetail(content, s.layout.MasterPath())
}

// Publish runs the publisher, journals the run and refreshes the index.
func (s *Service) Publish(ctx context.Context) models.PublishResult {
	res := s.publisher.Publish(ctx)
	if res.Locked {
		return res
	}
	s.record(index.RunPublish, res.StartedAt, res.Duration, res.Success, res, res.Errors)
	s.reindex()
	s.emit(sse.EventPublishCompleted, res)
	return res
}

// Diff computes the drift report. It does not take the publish lock.
func (s *Service) Diff(_ context.Context) (models.PruneReport, error) {
	start := time.Now()
	rep, err := s.differ.Diff()
	if err != nil {
		s.record(index.RunDiff, start, time.Since(start), false, nil, []string{err.Error()})
		return models.PruneReport{}, err
	}
	s.record(index.RunDiff, start, time.Since(start), true, rep.Summary, nil)
	s.emit(sse.EventDiffComputed, rep.Summary)
	return rep, nil
}

// Prune computes a fresh report and applies it.
func (s *Service) Prune(ctx context.Context, deleteThumbs bool) (*PruneOutcome, error) {
	start := time.Now()
	rep, err := s.differ.Diff()
	if err != nil {
		return nil, err
	}
	res, err := s.pruner.Apply(ctx, rep, deleteThumbs)
	if err != nil {
		if !errors.Is(err, apperr.ErrLocked) {
			s.record(index.RunPrune, start, time.Since(start), false, nil, []string{err.Error()})
		}
		return nil, err
	}
	out := &PruneOutcome{Report: rep, Result: res}
	s.record(index.RunPrune, start, time.Since(start), len(res.Errors) == 0, res, res.Errors)
	s.reindex()
	s.emit(sse.EventPruneApplied, res)
	return out, nil
}

// RefreshThumbnail regenerates one folder's thumbnail under the publish
// lock and records its source kind in the registry.
func (s *Service) RefreshThumbnail(ctx context.Context, folder string) (models.SourceKind, error) {
	if !site.ValidFolder(folder) {
		return models.SourceNone, apperr.ErrInvalidFolder
	}
	if !s.store.Exists(folder) {
		return models.SourceNone, apperr.ErrNotFound
	}

	l, err := lock.Acquire(s.layout.LockPath(), s.opts.LockStaleAfter)
	if err != nil {
		return models.SourceNone, err
	}
	defer func() {
		if err := l.Release(); err != nil {
			s.logger.Error("service: release lock", slog.String("error", err.Error()))
		}
	}()

	kind, err := s.thumbs.Refresh(ctx, folder, s.opts.ThumbnailWidth)
	if err != nil {
		return models.SourceNone, err
	}

	if err := s.reg.Load(); err != nil {
		return kind, err
	}
	if e, ok := s.reg.FindByFolder(folder); ok {
		e.ThumbnailSourceKind = string(kind)
		s.reg.Upsert(e)
		if data, err := os.ReadFile(s.layout.MasterPath()); err == nil {
			if doc, err := masterdoc.Parse(data); err == nil {
				if _, err := s.reg.Bootstrap(doc); err != nil {
					return kind, err
				}
			}
		}
	}
	return kind, nil
}

// AddAsset stores a new file inside a topic folder and returns its
// content-root path. Existing files are never replaced.
func (s *Service) AddAsset(_ context.Context, folder, name string, data []byte) (string, error) {
	if !site.ValidFolder(folder) || !site.ValidFolder(name) {
		return "", apperr.ErrInvalidFolder
	}
	if !s.store.Exists(folder) {
		return "", apperr.ErrNotFound
	}
	rel := path.Join(folder, name)
	if s.store.Exists(rel) {
		return "", apperr.ErrAlreadyExists
	}
	if err := s.store.Write(rel, data); err != nil {
		return "", err
	}
	s.logger.Info("service: asset added", slog.String("path", rel), slog.Int("bytes", len(data)))
	return rel, nil
}

// Registry returns the consolidated registry entries as stored on disk.
func (s *Service) Registry(_ context.Context) ([]models.RegistryEntry, error) {
	reg := registry.New(s.layout, s.logger)
	if err := reg.Load(); err != nil {
		return nil, err
	}
	return reg.Entries(), nil
}

// RebuildRegistry regenerates the consolidated registry from the master
// document under the publish lock.
func (s *Service) RebuildRegistry(_ context.Context) (models.RegistrySnapshot, error) {
	l, err := lock.Acquire(s.layout.LockPath(), s.opts.LockStaleAfter)
	if err != nil {
		return models.RegistrySnapshot{}, err
	}
	defer func() {
		if err := l.Release(); err != nil {
			s.logger.Error("service: release lock", slog.String("error", err.Error()))
		}
	}()

	data, err := os.ReadFile(s.layout.MasterPath())
	if errors.Is(err, fs.ErrNotExist) {
		return models.RegistrySnapshot{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.RegistrySnapshot{}, err
	}
	doc, err := masterdoc.Parse(data)
	if err != nil {
		return models.RegistrySnapshot{}, err
	}
	if err := s.reg.Load(); err != nil {
		return models.RegistrySnapshot{}, err
	}
	snap, err := s.reg.Bootstrap(doc)
	if err != nil {
		return snap, err
	}
	s.logger.Info("service: registry rebuilt", slog.Int("items", len(snap.Items)))
	return snap, nil
}

// Card returns the master document card with the given id.
func (s *Service) Card(ctx context.Context, id string) (*models.Card, error) {
	m, err := s.GetMaster(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range m.Cards {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Runs lists journaled runs, newest first.
func (s *Service) Runs(_ context.Context, kind string, limit int) ([]index.RunRecord, error) {
	return s.db.ListRuns(kind, limit)
}

// Lock reports whether a publish is in progress.
func (s *Service) Lock(_ context.Context) (LockStatus, error) {
	h, err := lock.Inspect(s.layout.LockPath())
	if errors.Is(err, apperr.ErrNotFound) {
		return LockStatus{}, nil
	}
	if err != nil {
		return LockStatus{}, err
	}
	return LockStatus{Held: true, Holder: &h}, nil
}

// Reindex brings the card index in line with the master document.
func (s *Service) Reindex(_ context.Context) error {
	data, err := os.ReadFile(s.layout.MasterPath())
	if errors.Is(err, fs.ErrNotExist) {
		return index.Sync(s.db, nil, s.logger)
	}
	if err != nil {
		return err
	}
	doc, err := masterdoc.Parse(data)
	if err != nil {
		return err
	}
	return index.Sync(s.db, doc.Cards(), s.logger)
}

// FoldersChanged is the watcher callback: it announces the change and,
// when autoPublish is set, publishes.
func (s *Service) FoldersChanged(ctx context.Context, paths []string, autoPublish bool) {
	s.logger.Info("service: folders changed", slog.Int("paths", len(paths)))
	if s.broker != nil {
		s.broker.PublishChange(paths)
	}
	if !autoPublish {
		return
	}
	res := s.Publish(ctx)
	if res.Locked {
		s.logger.Info("service: auto publish skipped, lock held")
	}
}

func (s *Service) reindex() {
	if err := s.Reindex(context.Background()); err != nil {
		s.logger.Warn("service: reindex failed", slog.String("error", err.Error()))
	}
}

func (s *Service) record(kind string, start time.Time, d time.Duration, ok bool, summary any, errs []string) {
	raw, err := json.Marshal(summary)
	if err != nil || summary == nil {
		raw = nil
	}
	if _, err := s.db.RecordRun(index.RunRecord{
		Kind:      kind,
		StartedAt: start,
		Duration:  d,
		Success:   ok,
		Summary:   raw,
		Errors:    errs,
	}); err != nil {
		s.logger.Warn("service: journal run failed", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}

func (s *Service) emit(kind string, data any) {
	if s.broker != nil {
		s.broker.Publish(sse.Event{Type: kind, Data: data})
	}
}

func buildMasterDetail(data []byte, path string) (*MasterDetail, error) {
	doc, err := masterdoc.Parse(data)
	if err != nil {
		return nil, err
	}
	detail := &MasterDetail{
		Content:  string(data),
		Checksum: checksum.Sum(data),
		Cards:    nonNilSlice(doc.Cards()),
	}
	if info, err := os.Stat(path); err == nil {
		detail.UpdatedAt = info.ModTime()
	}
	return detail, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
