package api

import (
	"github.com/starford/vitrine/internal/index"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/siteservice"
)

// SaveMasterRequest is the request body for replacing the master document.
type SaveMasterRequest struct {
	Content string `json:"content" example:"<div class=\"card\">...</div>" validate:"required"`
}

// MasterDetail is the master document response type (aliased from the domain layer).
type MasterDetail = siteservice.MasterDetail

// PruneOutcome pairs the applied report with its result.
type PruneOutcome = siteservice.PruneOutcome

// LockStatus describes the publish lock.
type LockStatus = siteservice.LockStatus

// PublishResult is the outcome of one publish run.
type PublishResult = models.PublishResult

// PruneReport is the drift report.
type PruneReport = models.PruneReport

// Card is a master document card.
type Card = models.Card

// ThumbnailResponse is returned after a thumbnail refresh.
type ThumbnailResponse struct {
	Folder     string `json:"folder" example:"Bone Carving" validate:"required"`
	SourceKind string `json:"source_kind" example:"image" validate:"required"`
}

// RegistryResponse wraps the registry entries.
type RegistryResponse struct {
	Items []models.RegistryEntry `json:"items" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// RunsResponse wraps journaled runs.
type RunsResponse struct {
	Runs []index.RunRecord `json:"runs" validate:"required"`
}
