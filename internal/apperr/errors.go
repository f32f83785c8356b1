// Package apperr holds the sentinel errors shared across the publish pipeline.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrLocked means another process holds the publish lock.
	ErrLocked = errors.New("locked")
	// ErrUnavailable means an optional capability (e.g. a thumbnail tool) is missing.
	ErrUnavailable = errors.New("unavailable")
	// ErrInvalidFolder is returned for folder names that are empty or escape the content root.
	ErrInvalidFolder = errors.New("invalid folder name")
)
