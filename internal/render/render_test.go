package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAggregateEscapesTextKeepsBody(t *testing.T) {
	out, err := Aggregate(AggregateData{
		Title:      "Topics",
		Stylesheet: "site.abc.css",
		Cards: []CardView{
			{ID: "1", Folder: "Intro", Title: "Intro <1>", Href: "Intro/index.html", Thumbnail: "Intro/thumbs/Intro.jpg", Body: "<p>hi</p>"},
			{ID: "2", Folder: "Masks", Title: "Masks", Href: "Masks/index.html"},
			{ID: "3", Folder: "Act1:Masks", Title: "Act1:Masks", Href: "./Act1:Masks/index.html"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	for _, want := range []string{
		`href="site.abc.css"`,
		`<a href="Intro/index.html">Intro &lt;1&gt;</a>`,
		`src="Intro/thumbs/Intro.jpg"`,
		`<div class="inner"><p>hi</p></div>`,
		`data-folder="Masks"`,
		`<a href="./Act1:Masks/index.html">`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("aggregate missing %q:\n%s", want, s)
		}
	}
	if strings.Count(s, `class="thumb-wrap"`) != 1 {
		t.Error("thumb wrapper rendered for a card without thumbnail")
	}
}

func TestFolderPageLinksBack(t *testing.T) {
	out, err := Folder(FolderData{
		SiteTitle:  "Topics",
		Stylesheet: "../site.abc.css",
		BackLink:   "../master_index.html",
		Card:       CardView{ID: "1", Folder: "Intro", Title: "Intro", Body: "<p>x</p>"},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, `href="../master_index.html"`) || !strings.Contains(s, `href="../site.abc.css"`) {
		t.Errorf("folder page:\n%s", s)
	}
}

func TestStylesheetDeploy(t *testing.T) {
	css, err := LoadStylesheet("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(css.Name, "site.") || len(css.Name) != len("site.12345678.css") {
		t.Errorf("name = %q", css.Name)
	}

	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "site.00000000.css"), []byte("old"), 0o644)
	wrote, err := css.Deploy(dir)
	if err != nil || !wrote {
		t.Fatalf("first deploy wrote=%v err=%v", wrote, err)
	}
	wrote, _ = css.Deploy(dir)
	if wrote {
		t.Error("identical deploy rewrote the file")
	}
	if _, err := os.Stat(filepath.Join(dir, "site.00000000.css")); !os.IsNotExist(err) {
		t.Error("stale stylesheet not removed")
	}
}

func TestLoadStylesheetOverride(t *testing.T) {
	p := filepath.Join(t.TempDir(), "custom.css")
	_ = os.WriteFile(p, []byte("body{}"), 0o644)
	a, _ := LoadStylesheet(p)
	b, _ := LoadStylesheet("")
	if a.Name == b.Name || string(a.Bytes) != "body{}" {
		t.Errorf("override not used: %q", a.Name)
	}
}
