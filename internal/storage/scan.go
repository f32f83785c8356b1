package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/site"
)

var systemEntry = regexp.MustCompile(`^(\..*|__pycache__|_tmp|_cache)$`)

// Folders returns the ground-truth topic folders directly under the content
// root, sorted by name. Hidden/system entries, "thumbs", the shared-assets
// folder and configured exclude globs are skipped.
func (f *FS) Folders() ([]models.FolderRecord, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: scan %s: %w", f.root, err)
	}

	var out []models.FolderRecord
	for _, e := range entries {
		if !e.IsDir() || f.skip(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", e.Name(), err)
		}
		dir := filepath.Join(f.root, e.Name())
		out = append(out, models.FolderRecord{
			Name:               e.Name(),
			HasThumbnailSource: hasThumbnailSource(dir),
			ID:                 readID(dir),
			LastModified:       info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FolderNames is Folders reduced to a name set.
func FolderNames(recs []models.FolderRecord) map[string]struct{} {
	out := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		out[r.Name] = struct{}{}
	}
	return out
}

func (f *FS) skip(name string) bool {
	if systemEntry.MatchString(name) || name == site.ThumbsDir {
		return true
	}
	if f.assets != "" && name == f.assets {
		return true
	}
	for _, pattern := range f.exclude {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func hasThumbnailSource(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && models.SourceKindOf(e.Name()) != models.SourceNone {
			return true
		}
	}
	return false
}

func readID(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, site.IDFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
