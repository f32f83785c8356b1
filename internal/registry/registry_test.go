package registry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/vitrine/internal/masterdoc"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/paths"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/storage"
)

func testRegistry(t *testing.T, folders ...string) (*Registry, site.Layout) {
	t.Helper()
	layout := site.Default(t.TempDir())
	for _, f := range folders {
		if err := os.MkdirAll(layout.FolderDir(f), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	r := New(layout, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
	return r, layout
}

func scan(t *testing.T, layout site.Layout) []models.FolderRecord {
	t.Helper()
	fs, err := storage.NewFS(layout)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := fs.Folders()
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestEnsureIDsAssignsAndPersists(t *testing.T) {
	r, layout := testRegistry(t, "Intro", "Masks")
	ids, corr, err := r.EnsureIDs(scan(t, layout))
	if err != nil {
		t.Fatalf("EnsureIDs: %v", err)
	}
	if len(corr) != 0 {
		t.Errorf("corrections = %v", corr)
	}
	if ids["Intro"] == "" || ids["Masks"] == "" || ids["Intro"] == ids["Masks"] {
		t.Fatalf("ids = %v", ids)
	}
	data, _ := os.ReadFile(layout.IDPath("Intro"))
	if strings.TrimSpace(string(data)) != ids["Intro"] {
		t.Errorf("id file = %q, want %q", data, ids["Intro"])
	}

	again, _, _ := r.EnsureIDs(scan(t, layout))
	if again["Intro"] != ids["Intro"] || again["Masks"] != ids["Masks"] {
		t.Errorf("ids changed on second run: %v vs %v", again, ids)
	}
}

func TestEnsureIDsReissuesDuplicates(t *testing.T) {
	r, layout := testRegistry(t, "A", "A copy")
	_ = os.WriteFile(layout.IDPath("A"), []byte("same\n"), 0o644)
	_ = os.WriteFile(layout.IDPath("A copy"), []byte("same\n"), 0o644)

	ids, corr, err := r.EnsureIDs(scan(t, layout))
	if err != nil {
		t.Fatal(err)
	}
	if ids["A"] != "same" {
		t.Errorf("first folder id = %q, want same", ids["A"])
	}
	if ids["A copy"] == "same" || ids["A copy"] == "" {
		t.Errorf("duplicate not reissued: %q", ids["A copy"])
	}
	if len(corr) != 1 || corr[0].Folder != "A copy" {
		t.Errorf("corrections = %v", corr)
	}
}

func TestEnsureIDsPrefersKnownOwner(t *testing.T) {
	r, layout := testRegistry(t, "A", "B")
	_ = os.WriteFile(layout.IDPath("A"), []byte("x"), 0o644)
	_ = os.WriteFile(layout.IDPath("B"), []byte("x"), 0o644)
	r.Upsert(models.RegistryEntry{ID: "x", Folder: "B", Title: "B"})

	ids, _, _ := r.EnsureIDs(scan(t, layout))
	if ids["B"] != "x" {
		t.Errorf("B = %q, want x (registry owner keeps its id)", ids["B"])
	}
	if ids["A"] == "x" {
		t.Error("A kept the duplicated id")
	}
}

func TestRenameKeepsIdentity(t *testing.T) {
	r, layout := testRegistry(t, "A")
	rw := paths.New(layout.ContentPrefix(), layout.BackLinks()...)

	ids, _, _ := r.EnsureIDs(scan(t, layout))
	x := ids["A"]
	doc, _ := masterdoc.Parse([]byte(fmt.Sprintf(
		`<div class="card" data-card-id="%s"><div class="card-head"><h2>A</h2></div><div class="inner"><img src="resource/A/pic.jpg"/></div></div>`, x)))

	if err := os.Rename(layout.FolderDir("A"), layout.FolderDir("B")); err != nil {
		t.Fatal(err)
	}
	ids, _, _ = r.EnsureIDs(scan(t, layout))
	if ids["B"] != x {
		t.Fatalf("renamed folder id = %q, want %q", ids["B"], x)
	}
	corr := r.Reconcile(doc, ids, rw)

	blocks := doc.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	if blocks[0].Title() != "B" || blocks[0].ID() != x {
		t.Errorf("card = %q/%q, want B/%s", blocks[0].Title(), blocks[0].ID(), x)
	}
	if !strings.Contains(blocks[0].BodyHTML(), "resource/B/pic.jpg") {
		t.Errorf("body not retargeted: %s", blocks[0].BodyHTML())
	}
	if len(corr) != 1 {
		t.Errorf("corrections = %v", corr)
	}
}

func TestReconcileRemovesStaleDuplicates(t *testing.T) {
	r, layout := testRegistry(t, "B")
	rw := paths.New(layout.ContentPrefix(), layout.BackLinks()...)
	_ = os.WriteFile(layout.IDPath("B"), []byte("x"), 0o644)
	ids, _, _ := r.EnsureIDs(scan(t, layout))

	doc, _ := masterdoc.Parse([]byte(`
<div class="card" data-card-id="y"><h2>B</h2><div class="inner">stale</div></div>
<div class="card" data-card-id="x"><h2>A</h2><div class="inner">real</div></div>
<div class="card"><h2>Loose</h2></div>`))
	r.Reconcile(doc, ids, rw)

	blocks := doc.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	b, ok := doc.Find("B")
	if !ok || b.ID() != "x" || !strings.Contains(b.BodyHTML(), "real") {
		t.Errorf("kept wrong card: %+v", b.Card())
	}
	if _, ok := doc.Find("Loose"); !ok {
		t.Error("card without folder should be left for the diff/prune pass")
	}
}

func TestReconcileAssignsFolderIDs(t *testing.T) {
	r, layout := testRegistry(t, "Intro")
	rw := paths.New(layout.ContentPrefix())
	ids, _, _ := r.EnsureIDs(scan(t, layout))

	doc, _ := masterdoc.Parse([]byte(`<div class="card"><h2>Intro</h2></div>`))
	r.Reconcile(doc, ids, rw)
	b, _ := doc.Find("Intro")
	if b.ID() != ids["Intro"] {
		t.Errorf("id = %q, want %q", b.ID(), ids["Intro"])
	}
}

func TestBootstrapLosslessReconstruction(t *testing.T) {
	r, layout := testRegistry(t)
	doc, _ := masterdoc.Parse([]byte(`
<div class="card" data-card-id="a" data-order="3" data-created-at="2024-01-01T00:00:00Z"><h2>Alpha</h2></div>
<div class="card is-hidden" data-card-id="b"><h2>Beta</h2></div>
<div class="card"><h2>NoID</h2></div>`))

	r.Upsert(models.RegistryEntry{ID: "a", Folder: "Alpha", ThumbnailSourceKind: "pdf"})
	snap, err := r.Bootstrap(doc)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if snap.Version != 1 || len(snap.Items) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	fresh := New(layout, nil)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rebuilt := New(site.Default(t.TempDir()), nil)
	rebuiltSnap, err := rebuilt.Bootstrap(doc)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range rebuiltSnap.Items {
		got, ok := fresh.FindByID(want.ID)
		if !ok {
			t.Fatalf("id %s missing after reload", want.ID)
		}
		if got.Folder != want.Folder || got.Hidden != want.Hidden || !sameOrder(got.Order, want.Order) {
			t.Errorf("entry %s: got %+v, want %+v", want.ID, got, want)
		}
	}
	if a, _ := fresh.FindByID("a"); a.ThumbnailSourceKind != "pdf" {
		t.Errorf("thumbnail kind lost: %+v", a)
	}
	if b, _ := fresh.FindByFolder("Beta"); !b.Hidden {
		t.Errorf("Beta hidden = false")
	}
	if _, err := os.Stat(filepath.Join(layout.StatePath(), "registry.json")); err != nil {
		t.Errorf("registry file not written: %v", err)
	}
}

func sameOrder(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func TestPruneMissingFoldersAndRemove(t *testing.T) {
	r, _ := testRegistry(t, "Keep")
	r.Upsert(models.RegistryEntry{ID: "1", Folder: "Keep"})
	r.Upsert(models.RegistryEntry{ID: "2", Folder: "Gone"})
	if n := r.PruneMissingFolders(); n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, ok := r.FindByID("2"); ok {
		t.Error("Gone still present")
	}
	if !r.RemoveByID("1") || r.RemoveByID("1") {
		t.Error("RemoveByID should succeed exactly once")
	}
}

func TestLoadCorruptFileIgnored(t *testing.T) {
	r, layout := testRegistry(t)
	_ = os.MkdirAll(layout.StatePath(), 0o755)
	_ = os.WriteFile(layout.RegistryPath(), []byte("{not json"), 0o644)
	if err := r.Load(); err != nil {
		t.Errorf("Load corrupt: %v", err)
	}
	if len(r.Entries()) != 0 {
		t.Error("entries from corrupt file")
	}
}
