package sanitize

import (
	"strings"
	"testing"

	"github.com/starford/vitrine/internal/models"
)

var corpus = []string{
	`<p>plain</p>`,
	`<div class="inner"><p>Hello <b>bold</b> <em>em</em></p></div>`,
	`<script>alert(1)</script><p onclick="x()">hi</p>`,
	`<a href="javascript:alert(1)">x</a><img src="data:image/png;base64,AAAA">`,
	`<a href="https://example.com" target="_blank" rel="external">ext</a>`,
	`<div class="card-head"><h2>T</h2><div class="card-actions"><button>del</button></div></div>`,
	`<section><h1>Title</h1><table><tr><td>cell</td></tr></table></section>`,
	`<p style="color:red" data-x="1" contenteditable="true" draggable="true">s</p>`,
	`<!-- note --><iframe src="https://e.com"></iframe><video><source src="a.mp4"></video>`,
	`<ul><li><a href="resource/Intro/doc.pdf" class="btn-link">doc</a></li><li>two</li></ul>`,
	`<svg><script>1</script></svg><p>after</p>`,
	`<a href=" JaVaScRiPt:evil()">x</a><a href="mailto:a@b.c">m</a><a href="tel:+1">t</a>`,
	`<img src="photo.jpg" alt="a" onerror="x()" width="10" loading="lazy">`,
	`<ul><li>a<table><tr><td><li>x</li></td></tr></table></li></ul>`,
	`<a href="a">x<table><tr><td><a href="b">y</a></td></tr></table></a>`,
	`<p>one<section><p>two</p></section></p>`,
}

func TestSanitizeIdempotent(t *testing.T) {
	s := New()
	for _, in := range corpus {
		first, _, err := s.Sanitize(in)
		if err != nil {
			t.Fatalf("Sanitize(%q): %v", in, err)
		}
		second, m2, err := s.Sanitize(first)
		if err != nil {
			t.Fatalf("second Sanitize(%q): %v", first, err)
		}
		if second != first {
			t.Errorf("not idempotent for %q:\n first %q\nsecond %q", in, first, second)
		}
		if !m2.IsZero() {
			t.Errorf("second pass metrics for %q = %+v, want zero", in, m2)
		}
	}
}

func TestSanitizeSafety(t *testing.T) {
	s := New()
	tests := []struct {
		name   string
		in     string
		absent []string
		check  func(models.SanitizeMetrics) bool
	}{
		{
			name:   "script tag",
			in:     `<p>a</p><script>steal()</script>`,
			absent: []string{"<script", "steal"},
			check:  func(m models.SanitizeMetrics) bool { return m.NodesRemoved > 0 },
		},
		{
			name:   "event handler",
			in:     `<img src="a.jpg" onerror="steal()">`,
			absent: []string{"onerror", "steal"},
			check:  func(m models.SanitizeMetrics) bool { return m.AttrsRemoved > 0 },
		},
		{
			name:   "script scheme",
			in:     `<a href="javascript:steal()">click</a>`,
			absent: []string{"javascript", "href"},
			check:  func(m models.SanitizeMetrics) bool { return m.URLsBlocked > 0 },
		},
		{
			name:   "data uri image",
			in:     `<img src="data:image/png;base64,AAAA" alt="x">`,
			absent: []string{"data:", "src="},
			check:  func(m models.SanitizeMetrics) bool { return m.URLsBlocked > 0 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, m, err := s.Sanitize(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			for _, a := range tt.absent {
				if strings.Contains(out, a) {
					t.Errorf("output %q still contains %q", out, a)
				}
			}
			if !tt.check(m) {
				t.Errorf("metrics %+v do not record the removal", m)
			}
		})
	}
}

func TestSanitizeUnwrapsDisallowedTags(t *testing.T) {
	out, m, _ := New().Sanitize(`<section><p>keep <b>me</b></p></section>`)
	if out != `<p>keep me</p>` {
		t.Errorf("out = %q", out)
	}
	if m.TagsUnwrapped != 2 {
		t.Errorf("TagsUnwrapped = %d, want 2", m.TagsUnwrapped)
	}
}

func TestSanitizeRemovesEditorControls(t *testing.T) {
	in := `<div class="card-head"><h2>Intro</h2><div class="folder-actions"><a class="btn">x</a></div><button>y</button><span class="btnGhost">z</span></div>`
	out, m, _ := New().Sanitize(in)
	if out != `<div class="card-head"><h2>Intro</h2></div>` {
		t.Errorf("out = %q", out)
	}
	if m.NodesRemoved != 3 {
		t.Errorf("NodesRemoved = %d, want 3", m.NodesRemoved)
	}
}

func TestSanitizeStripsEditorAttributes(t *testing.T) {
	out, m, _ := New().Sanitize(`<p class="x" style="a:b" data-card-id="1" contenteditable="true" draggable="true" onmouseover="f()">t</p>`)
	if out != `<p class="x">t</p>` {
		t.Errorf("out = %q", out)
	}
	if m.AttrsRemoved != 5 {
		t.Errorf("AttrsRemoved = %d, want 5", m.AttrsRemoved)
	}
}

func TestSanitizeForcesRelOnNewContext(t *testing.T) {
	out, _, _ := New().Sanitize(`<a href="https://e.com" target="_blank" rel="external">e</a>`)
	if !strings.Contains(out, `rel="external noopener noreferrer"`) {
		t.Errorf("out = %q", out)
	}
	out, _, _ = New().Sanitize(`<a href="https://e.com">e</a>`)
	if strings.Contains(out, "rel=") {
		t.Errorf("rel added without target: %q", out)
	}
}

func TestSafeURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/a", true},
		{"http://example.com", true},
		{"mailto:a@b.c", true},
		{"tel:+123", true},
		{"#top", true},
		{"resource/Intro/a.jpg", true},
		{"../Masks/x.png", true},
		{"/abs/path", true},
		{"a/b:c.jpg", true},
		{"javascript:alert(1)", false},
		{" java\tscript:alert(1)", false},
		{"VBScript:x", false},
		{"data:text/html;base64,xx", false},
		{"file:///etc/passwd", false},
	}
	for _, tt := range tests {
		if got := SafeURL(tt.in); got != tt.want {
			t.Errorf("SafeURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
