package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/vitrine/internal/site"
)

// watchDepth is how deep below the content root directories are watched:
// topic folders and their thumbnail directories.
const watchDepth = 2

// ChangeCallback receives the content-root-relative paths that changed
// during one debounce window, sorted.
type ChangeCallback func(paths []string)

// Watch starts an fsnotify watcher on the content root and processes change
// events until ctx is cancelled. Events are collected and delivered to cb
// in one batch once no new event arrived for debounce.
//
// New directories created at runtime are automatically added to the watch
// list. Files the pipeline itself generates (pages, stylesheets, identifier
// files, temporaries) are ignored so a publish does not retrigger itself.
func Watch(ctx context.Context, layout site.Layout, debounce time.Duration, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := layout.ContentRoot()
	if err := addDirs(w, root, root); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	logger.Info("watcher: started", slog.String("root", root))

	// flushTimer debounces delivery of the pending batch.
	var flushTimer *time.Timer
	var flushCh <-chan time.Time
	pending := make(map[string]struct{})

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			pending = make(map[string]struct{})
			logger.Debug("watcher: changes", slog.Int("paths", len(batch)))
			if cb != nil {
				cb(batch)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || rel == "." {
				continue
			}
			rel = filepath.ToSlash(rel)

			// --- Handle new directories: add to watcher ---
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirs(w, root, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
				}
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if generated(layout, rel) {
				continue
			}
			pending[rel] = struct{}{}
			scheduleFlush()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// generated reports whether rel is a file the pipeline writes itself.
func generated(layout site.Layout, rel string) bool {
	base := filepath.Base(rel)
	if strings.HasPrefix(base, ".") || base == layout.FolderPage || base == layout.AggregatePage {
		return true
	}
	if ok, _ := filepath.Match("site.*.css", base); ok {
		return true
	}
	return false
}

// addDirs adds dir and its subdirectories down to watchDepth below root.
func addDirs(w *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := 0
		if rel != "." {
			depth = len(strings.Split(filepath.ToSlash(rel), "/"))
		}
		if depth > watchDepth || (depth > 0 && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
