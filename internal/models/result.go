package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SanitizeMetrics counts what the sanitizer changed.
type SanitizeMetrics struct {
	NodesRemoved  int `json:"nodes_removed"`
	AttrsRemoved  int `json:"attrs_removed"`
	TagsUnwrapped int `json:"tags_unwrapped"`
	URLsBlocked   int `json:"urls_blocked"`
}

// Add folds o into m.
func (m *SanitizeMetrics) Add(o SanitizeMetrics) {
	m.NodesRemoved += o.NodesRemoved
	m.AttrsRemoved += o.AttrsRemoved
	m.TagsUnwrapped += o.TagsUnwrapped
	m.URLsBlocked += o.URLsBlocked
}

// IsZero reports whether nothing was changed.
func (m SanitizeMetrics) IsZero() bool {
	return m == SanitizeMetrics{}
}

// PublishResult is the outcome of one publish run.
type PublishResult struct {
	Success        bool            `json:"success"`
	ScanOK         bool            `json:"scan_ok"`
	PushOK         bool            `json:"push_ok"`
	Locked         bool            `json:"locked,omitempty"`
	Skipped        string          `json:"skipped,omitempty"`
	CardsProcessed int             `json:"cards_processed"`
	HiddenCount    int             `json:"hidden_count"`
	PagesWritten   int             `json:"pages_written"`
	Errors         []string        `json:"errors"`
	Warnings       []string        `json:"warnings"`
	Corrections    []string        `json:"corrections"`
	Metrics        SanitizeMetrics `json:"metrics"`
	StartedAt      time.Time       `json:"started_at"`
	Duration       time.Duration   `json:"duration"`
}

// Errorf appends a human-readable error.
func (r *PublishResult) Errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Warnf appends a recoverable, card-level problem.
func (r *PublishResult) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Correctf appends a corrective action to the report.
func (r *PublishResult) Correctf(format string, args ...any) {
	r.Corrections = append(r.Corrections, fmt.Sprintf(format, args...))
}

// PruneReport describes drift between the folder tree and the derived pages.
type PruneReport struct {
	// CardsWithNoFolder lists folders named by the master document or the
	// aggregate page that no longer exist on disk.
	CardsWithNoFolder           []string            `json:"cards_with_no_folder"`
	FoldersWithNoCard           []string            `json:"folders_with_no_card"`
	FoldersMissingPublishedPage []string            `json:"folders_missing_published_page"`
	AggregateOnlyOrphans        []string            `json:"aggregate_only_orphans"`
	OrphanThumbnailFiles        map[string][]string `json:"orphan_thumbnail_files"`
	Summary                     map[string]int      `json:"summary"`
}

// Empty reports whether the report lists no drift at all.
func (r PruneReport) Empty() bool {
	return len(r.CardsWithNoFolder) == 0 &&
		len(r.FoldersWithNoCard) == 0 &&
		len(r.FoldersMissingPublishedPage) == 0 &&
		len(r.AggregateOnlyOrphans) == 0 &&
		r.OrphanCount() == 0
}

// OrphanCount returns the number of orphan thumbnail files across folders.
func (r PruneReport) OrphanCount() int {
	n := 0
	for _, files := range r.OrphanThumbnailFiles {
		n += len(files)
	}
	return n
}

// Pretty renders the report for terminal output.
func (r PruneReport) Pretty() string {
	var b strings.Builder
	section := func(title string, items []string) {
		fmt.Fprintf(&b, "%s (%d)\n", title, len(items))
		for _, it := range items {
			fmt.Fprintf(&b, "  - %s\n", it)
		}
	}
	section("Cards with no folder", r.CardsWithNoFolder)
	section("Folders with no card", r.FoldersWithNoCard)
	section("Folders missing a published page", r.FoldersMissingPublishedPage)
	section("Aggregate-only cards", r.AggregateOnlyOrphans)

	folders := make([]string, 0, len(r.OrphanThumbnailFiles))
	for f := range r.OrphanThumbnailFiles {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	fmt.Fprintf(&b, "Orphan thumbnails (%d)\n", r.OrphanCount())
	for _, f := range folders {
		for _, name := range r.OrphanThumbnailFiles[f] {
			fmt.Fprintf(&b, "  - %s/%s\n", f, name)
		}
	}
	return b.String()
}

// ApplyResult counts what a prune apply changed.
type ApplyResult struct {
	RemovedFromMaster       int      `json:"removed_from_master"`
	PerFolderPagesRebuilt   int      `json:"per_folder_pages_rebuilt"`
	OrphanThumbnailsDeleted int      `json:"orphan_thumbnails_deleted"`
	HardDeletedFolders      int      `json:"hard_deleted_folders"`
	CardsInserted           int      `json:"cards_inserted"`
	AggregateRewritten      bool     `json:"aggregate_rewritten"`
	LockedSkipped           int      `json:"locked_skipped"`
	RegistryPruned          int      `json:"registry_pruned"`
	Corrections             []string `json:"corrections"`
	Errors                  []string `json:"errors"`
}

// Zero reports whether the apply changed nothing.
func (a ApplyResult) Zero() bool {
	return a.RemovedFromMaster == 0 && a.PerFolderPagesRebuilt == 0 &&
		a.OrphanThumbnailsDeleted == 0 && a.HardDeletedFolders == 0 &&
		a.CardsInserted == 0 && !a.AggregateRewritten
}

// Correctf records a corrective action taken on the identity data.
func (a *ApplyResult) Correctf(format string, args ...any) {
	a.Corrections = append(a.Corrections, fmt.Sprintf(format, args...))
}

// Errorf appends a human-readable error.
func (a *ApplyResult) Errorf(format string, args ...any) {
	a.Errors = append(a.Errors, fmt.Sprintf(format, args...))
}
