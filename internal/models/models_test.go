package models

import (
	"sort"
	"strings"
	"testing"
)

func intp(n int) *int { return &n }

func TestCardLess(t *testing.T) {
	cards := []Card{
		{Title: "zeta"},
		{Title: "Beta", Order: intp(2)},
		{Title: "alpha"},
		{Title: "Gamma", Order: intp(1)},
		{Title: "delta", Order: intp(2)},
	}
	sort.SliceStable(cards, func(i, j int) bool { return CardLess(cards[i], cards[j]) })

	want := []string{"Gamma", "Beta", "delta", "alpha", "zeta"}
	for i, c := range cards {
		if c.Title != want[i] {
			t.Fatalf("position %d = %q, want %q (all: %v)", i, c.Title, want[i], titles(cards))
		}
	}
}

func titles(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Title
	}
	return out
}

func TestSanitizeMetricsAdd(t *testing.T) {
	var m SanitizeMetrics
	if !m.IsZero() {
		t.Fatal("zero value should be zero")
	}
	m.Add(SanitizeMetrics{NodesRemoved: 1, URLsBlocked: 2})
	m.Add(SanitizeMetrics{AttrsRemoved: 3, TagsUnwrapped: 4, URLsBlocked: 1})
	want := SanitizeMetrics{NodesRemoved: 1, AttrsRemoved: 3, TagsUnwrapped: 4, URLsBlocked: 3}
	if m != want {
		t.Errorf("got %+v, want %+v", m, want)
	}
}

func TestPruneReportEmptyAndPretty(t *testing.T) {
	var r PruneReport
	if !r.Empty() {
		t.Fatal("zero report should be empty")
	}
	r.CardsWithNoFolder = []string{"Old"}
	r.OrphanThumbnailFiles = map[string][]string{"Intro": {"stale.jpg"}}
	if r.Empty() {
		t.Fatal("report with entries should not be empty")
	}
	if r.OrphanCount() != 1 {
		t.Errorf("OrphanCount = %d, want 1", r.OrphanCount())
	}
	out := r.Pretty()
	for _, want := range []string{"Cards with no folder (1)", "  - Old", "  - Intro/stale.jpg"} {
		if !strings.Contains(out, want) {
			t.Errorf("Pretty() missing %q:\n%s", want, out)
		}
	}
}
