package models

import (
	"path/filepath"
	"strings"
)

// SourceKind names the kind of file a thumbnail is generated from.
type SourceKind string

const (
	SourceNone  SourceKind = ""
	SourceImage SourceKind = "image"
	SourcePDF   SourceKind = "pdf"
	SourceVideo SourceKind = "video"
)

var sourceExts = map[string]SourceKind{
	".png":  SourceImage,
	".jpg":  SourceImage,
	".jpeg": SourceImage,
	".webp": SourceImage,
	".pdf":  SourcePDF,
	".mp4":  SourceVideo,
	".mov":  SourceVideo,
	".m4v":  SourceVideo,
	".avi":  SourceVideo,
}

// SourceKindOf classifies a file name by extension.
func SourceKindOf(name string) SourceKind {
	return sourceExts[strings.ToLower(filepath.Ext(name))]
}

// Priority orders source kinds for thumbnail generation; lower wins.
func (k SourceKind) Priority() int {
	switch k {
	case SourceImage:
		return 0
	case SourcePDF:
		return 1
	case SourceVideo:
		return 2
	}
	return 99
}
