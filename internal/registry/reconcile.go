package registry

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/paths"
)

// Reconcile aligns the card identities in doc with the on-disk folder ids:
//
//   - a card whose id now belongs to a folder under a different name, and
//     whose old folder is gone, is renamed in place (title, folder attribute
//     and editor-frame references);
//   - a card id claimed by several cards stays with the first one;
//   - several cards titled after one folder are reduced to the card carrying
//     that folder's id, or the first one when none does;
//   - every remaining card named after a folder takes that folder's id.
//
// Every change is returned as a Correction.
func (r *Registry) Reconcile(doc *masterdoc.Document, ids map[string]string, rw *paths.Rewriter) []Correction {
	folderByID := make(map[string]string, len(ids))
	for folder, id := range ids {
		folderByID[id] = folder
	}
	var out []Correction
	note := func(folder, format string, args ...any) {
		c := Correction{Folder: folder, Action: fmt.Sprintf(format, args...)}
		r.logger.Info("registry: "+c.Action, slog.String("folder", folder))
		out = append(out, c)
	}

	claimed := make(map[string]bool)
	for _, b := range doc.Blocks() {
		id := b.ID()
		if id == "" {
			continue
		}
		if claimed[id] {
			b.SetID("")
			note(b.Title(), "dropped duplicate card id %s", id)
			continue
		}
		claimed[id] = true

		folder, ok := folderByID[id]
		title := b.Title()
		if !ok || folder == title || r.folderExists(title) {
			continue
		}
		b.SetTitle(folder)
		n := rw.Retarget(b.Node(), title, folder)
		note(folder, "card renamed from %q (id %s, %d references retargeted)", title, id, n)
	}

	byTitle := make(map[string][]*masterdoc.Block)
	var order []string
	for _, b := range doc.Blocks() {
		t := b.Title()
		if t == "" {
			continue
		}
		if _, seen := byTitle[t]; !seen {
			order = append(order, t)
		}
		byTitle[t] = append(byTitle[t], b)
	}
	for _, title := range order {
		blocks := byTitle[title]
		keep := blocks[0]
		if want, ok := ids[title]; ok {
			for _, b := range blocks {
				if b.ID() == want {
					keep = b
					break
				}
			}
		}
		for _, b := range blocks {
			if b != keep {
				doc.Remove(b)
				note(title, "removed stale duplicate card (id %q)", b.ID())
			}
		}

		want, ok := ids[title]
		if !ok {
			continue
		}
		if have := keep.ID(); have != want {
			keep.SetID(want)
			if have != "" {
				note(title, "card id %s replaced by folder id %s", have, want)
			}
		}
		keep.SetFolder(title)
	}
	return out
}

func (r *Registry) folderExists(name string) bool {
	if name == "" {
		return false
	}
	info, err := os.Stat(r.layout.FolderDir(name))
	return err == nil && info.IsDir()
}
