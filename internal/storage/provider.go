// Package storage implements atomic file writes and the content-root view
// of topic folders.
package storage

import "github.com/starford/vitrine/internal/models"

// Provider is the content-root file abstraction used by the pipeline.
// Paths are relative to the content root.
type Provider interface {
	// Folders scans the content root for topic folders (ground truth).
	Folders() ([]models.FolderRecord, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	// Exists reports whether path exists.
	Exists(path string) bool
	// Delete removes the file at path.
	Delete(path string) error
	// RemoveFolder recursively deletes one topic folder.
	RemoveFolder(folder string) error
}
