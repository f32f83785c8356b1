// Package site describes where every artifact of a published site lives on disk.
package site

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Fixed names inside the content root.
const (
	ThumbsDir  = "thumbs"
	IDFileName = ".card-id"
)

// Layout resolves the paths of the master document, the content root and
// the derived artifacts.
type Layout struct {
	Root           string   // base directory holding the master document
	ContentDir     string   // content root, relative to Root
	MasterDocument string   // master document file name, relative to Root
	AggregatePage  string   // aggregate page file name inside the content root
	FolderPage     string   // per-folder page file name inside each folder
	StateDir       string   // registry, lock file and journal, relative to Root
	AssetsDir      string   // shared-assets folder inside the content root
	Exclude        []string // extra glob patterns skipped by the folder scan
}

// Default returns the layout used when no configuration overrides it.
func Default(root string) Layout {
	return Layout{
		Root:           root,
		ContentDir:     "resource",
		MasterDocument: "master_content.html",
		AggregatePage:  "master_index.html",
		FolderPage:     "index.html",
		StateDir:       ".vitrine",
		AssetsDir:      "assets",
	}
}

func (l Layout) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(l.Root, rel)
}

// ContentRoot is the absolute content root directory.
func (l Layout) ContentRoot() string { return l.abs(l.ContentDir) }

// ContentPrefix is the editor-frame prefix of stored references ("resource/").
func (l Layout) ContentPrefix() string {
	return strings.Trim(filepath.ToSlash(l.ContentDir), "/") + "/"
}

// MasterPath is the absolute path of the master document.
func (l Layout) MasterPath() string { return l.abs(l.MasterDocument) }

// AggregatePath is the absolute path of the aggregate page.
func (l Layout) AggregatePath() string {
	return filepath.Join(l.ContentRoot(), l.AggregatePage)
}

// FolderDir is the absolute directory of one topic folder.
func (l Layout) FolderDir(folder string) string {
	return filepath.Join(l.ContentRoot(), folder)
}

// FolderPagePath is the absolute path of a folder's published page.
func (l Layout) FolderPagePath(folder string) string {
	return filepath.Join(l.FolderDir(folder), l.FolderPage)
}

// IDPath is the absolute path of a folder's identifier file.
func (l Layout) IDPath(folder string) string {
	return filepath.Join(l.FolderDir(folder), IDFileName)
}

// ThumbsPath is the absolute thumbnail directory of a folder.
func (l Layout) ThumbsPath(folder string) string {
	return filepath.Join(l.FolderDir(folder), ThumbsDir)
}

// ThumbnailPath is the absolute path of a folder's primary thumbnail.
func (l Layout) ThumbnailPath(folder string) string {
	return filepath.Join(l.ThumbsPath(folder), ThumbnailName(folder))
}

// ThumbnailRef is the editor-frame reference to a folder's primary thumbnail.
func (l Layout) ThumbnailRef(folder string) string {
	return l.ContentPrefix() + folder + "/" + ThumbsDir + "/" + ThumbnailName(folder)
}

// StatePath is the absolute state directory.
func (l Layout) StatePath() string { return l.abs(l.StateDir) }

// RegistryPath is the consolidated registry file.
func (l Layout) RegistryPath() string { return filepath.Join(l.StatePath(), "registry.json") }

// LockPath is the publish lock file.
func (l Layout) LockPath() string { return filepath.Join(l.StatePath(), "publish.lock") }

// BackLinks lists the hrefs that point from a per-folder page back to the aggregate page.
func (l Layout) BackLinks() []string {
	return []string{"../" + l.AggregatePage, l.AggregatePage}
}

// ThumbnailName is the file name of a folder's primary thumbnail.
func ThumbnailName(folder string) string {
	return SafeName(folder) + ".jpg"
}

// SafeName replaces whitespace and characters that are invalid in file names with '_'.
func SafeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(`\/:*?"<>|`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// ValidFolder reports whether name can be used as a topic folder directly
// under the content root.
func ValidFolder(name string) bool {
	n := strings.TrimSpace(name)
	if n == "" || n == "." || n == ".." {
		return false
	}
	return !strings.ContainsAny(n, `/\`)
}
