// Package registry assigns and tracks stable card identities. Per-folder
// identifier files are the durable source of identity; the consolidated
// registry file is a rebuildable index over the master document.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/storage"
)

const snapshotVersion = 1

// Correction describes a corrective action taken while resolving identities.
type Correction struct {
	Folder string
	Action string
}

func (c Correction) String() string { return c.Folder + ": " + c.Action }

// Registry is the identity registry for one site layout.
type Registry struct {
	layout site.Layout
	logger *slog.Logger
	newID  func() string

	byID map[string]models.RegistryEntry
}

// New creates a registry. Call Load to read the consolidated file.
func New(layout site.Layout, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		layout: layout,
		logger: logger,
		newID:  uuid.NewString,
		byID:   make(map[string]models.RegistryEntry),
	}
}

// Load reads the consolidated registry file. A missing file yields an empty
// registry; a corrupt one is logged and ignored since it can be rebuilt.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.layout.RegistryPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: read: %w", err)
	}
	var snap models.RegistrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Warn("registry: corrupt file ignored",
			slog.String("path", r.layout.RegistryPath()),
			slog.String("error", err.Error()))
		return nil
	}
	r.byID = make(map[string]models.RegistryEntry, len(snap.Items))
	for _, e := range snap.Items {
		if e.ID != "" {
			r.byID[e.ID] = e
		}
	}
	return nil
}

// EnsureIDs guarantees every folder has a persisted identifier file and
// returns folder→id. When several folders carry the same id, the folder the
// registry already maps to that id keeps it (otherwise the first in the
// given order) and every other folder is issued a fresh id.
func (r *Registry) EnsureIDs(folders []models.FolderRecord) (map[string]string, []Correction, error) {
	ids := make([]string, len(folders))
	claimants := make(map[string][]string)
	for i, f := range folders {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			id = readIDFile(r.layout.IDPath(f.Name))
		}
		ids[i] = id
		if id != "" {
			claimants[id] = append(claimants[id], f.Name)
		}
	}
	owner := make(map[string]string, len(claimants))
	for id, names := range claimants {
		owner[id] = names[0]
		if e, ok := r.byID[id]; ok {
			for _, n := range names {
				if n == e.Folder {
					owner[id] = n
				}
			}
		}
	}

	out := make(map[string]string, len(folders))
	var corrections []Correction
	var errs []error
	for i, f := range folders {
		id := ids[i]
		switch {
		case id == "":
			id = r.newID()
			if err := r.writeID(f.Name, id); err != nil {
				errs = append(errs, err)
				continue
			}
			r.logger.Debug("registry: id assigned", slog.String("folder", f.Name), slog.String("id", id))
		case owner[id] != f.Name:
			fresh := r.newID()
			if err := r.writeID(f.Name, fresh); err != nil {
				errs = append(errs, err)
				continue
			}
			r.logger.Warn("registry: duplicate id reissued",
				slog.String("folder", f.Name),
				slog.String("owner", owner[id]),
				slog.String("old_id", id),
				slog.String("new_id", fresh))
			corrections = append(corrections, Correction{
				Folder: f.Name,
				Action: fmt.Sprintf("duplicate id %s (kept by %q) reissued as %s", id, owner[id], fresh),
			})
			id = fresh
		}
		out[f.Name] = id
	}
	return out, corrections, errors.Join(errs...)
}

func (r *Registry) writeID(folder, id string) error {
	if err := storage.WriteText(r.layout.IDPath(folder), id+"\n"); err != nil {
		return fmt.Errorf("registry: write id for %s: %w", folder, err)
	}
	return nil
}

func readIDFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// FindByID looks up an entry by id.
func (r *Registry) FindByID(id string) (models.RegistryEntry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// FindByFolder looks up an entry by folder name.
func (r *Registry) FindByFolder(folder string) (models.RegistryEntry, bool) {
	for _, e := range r.byID {
		if e.Folder == folder {
			return e, true
		}
	}
	return models.RegistryEntry{}, false
}

// Upsert merges e into the in-memory index. Fields not carried by the
// master document (thumbnail source kind) survive when e leaves them empty.
func (r *Registry) Upsert(e models.RegistryEntry) models.RegistryEntry {
	if prev, ok := r.byID[e.ID]; ok {
		if e.ThumbnailSourceKind == "" {
			e.ThumbnailSourceKind = prev.ThumbnailSourceKind
		}
		if e.CreatedAt == nil {
			e.CreatedAt = prev.CreatedAt
		}
	}
	r.byID[e.ID] = e
	return e
}

// RemoveByID drops an entry from the in-memory index.
func (r *Registry) RemoveByID(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// PruneMissingFolders drops entries whose folder no longer exists on disk.
func (r *Registry) PruneMissingFolders() int {
	removed := 0
	for id, e := range r.byID {
		if _, err := os.Stat(r.layout.FolderDir(e.Folder)); errors.Is(err, fs.ErrNotExist) {
			delete(r.byID, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("registry: pruned missing folders", slog.Int("removed", removed))
	}
	return removed
}

// Entries returns the in-memory index sorted by folder.
func (r *Registry) Entries() []models.RegistryEntry {
	out := make([]models.RegistryEntry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Folder != out[j].Folder {
			return out[i].Folder < out[j].Folder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Bootstrap regenerates the consolidated registry from the master document
// and writes it. It is the only writer of the consolidated file.
func (r *Registry) Bootstrap(doc *masterdoc.Document) (models.RegistrySnapshot, error) {
	next := make(map[string]models.RegistryEntry)
	for _, b := range doc.Blocks() {
		id := b.ID()
		title := b.Title()
		if id == "" || title == "" {
			continue
		}
		if _, dup := next[id]; dup {
			continue
		}
		e := models.RegistryEntry{
			ID:        id,
			Folder:    title,
			Title:     title,
			CreatedAt: b.CreatedAt(),
			Hidden:    b.Hidden(),
			Order:     b.Order(),
		}
		if prev, ok := r.byID[id]; ok {
			e.ThumbnailSourceKind = prev.ThumbnailSourceKind
		}
		next[id] = e
	}
	r.byID = next

	snap := models.RegistrySnapshot{Version: snapshotVersion, Items: r.Entries()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return snap, fmt.Errorf("registry: marshal: %w", err)
	}
	if err := storage.WriteBytes(r.layout.RegistryPath(), append(data, '\n')); err != nil {
		return snap, fmt.Errorf("registry: write: %w", err)
	}
	return snap, nil
}
