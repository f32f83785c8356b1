// Package models defines the domain types of the publish pipeline.
package models

import (
	"strings"
	"time"
)

// Card is one topic folder's published representation.
type Card struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	BodyHTML  string     `json:"body_html"`
	Thumbnail string     `json:"thumbnail,omitempty"` // editor-frame path
	Hidden    bool       `json:"hidden"`
	Order     *int       `json:"order,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Locked    bool       `json:"locked,omitempty"`
	Delete    bool       `json:"delete,omitempty"`
}

// Folder returns the folder the card belongs to. Titles double as folder names.
func (c Card) Folder() string {
	return strings.TrimSpace(c.Title)
}

// FolderRecord is the ground-truth view of one topic folder on disk.
type FolderRecord struct {
	Name               string    `json:"name"`
	HasThumbnailSource bool      `json:"has_thumbnail_source"`
	ID                 string    `json:"id,omitempty"`
	LastModified       time.Time `json:"last_modified"`
}

// RegistryEntry is the cached metadata for one card id.
type RegistryEntry struct {
	ID                  string     `json:"id"`
	Folder              string     `json:"folder"`
	Title               string     `json:"title"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	Hidden              bool       `json:"hidden"`
	Order               *int       `json:"order,omitempty"`
	ThumbnailSourceKind string     `json:"thumbnail_source_kind,omitempty"`
}

// RegistrySnapshot is the consolidated registry file content.
type RegistrySnapshot struct {
	Version int             `json:"version"`
	Items   []RegistryEntry `json:"items"`
}

// CardLess orders cards by (order ascending, title case-insensitive).
// Cards without an explicit order go after every ordered card.
func CardLess(a, b Card) bool {
	switch {
	case a.Order != nil && b.Order == nil:
		return true
	case a.Order == nil && b.Order != nil:
		return false
	case a.Order != nil && b.Order != nil && *a.Order != *b.Order:
		return *a.Order < *b.Order
	}
	return strings.ToLower(a.Title) < strings.ToLower(b.Title)
}
