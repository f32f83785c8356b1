package site

import (
	"path/filepath"
	"testing"
)

func TestSafeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Intro", "Intro"},
		{"My Folder", "My_Folder"},
		{`a:b*c?d"e<f>g|h`, "a_b_c_d_e_f_g_h"},
		{"  padded  ", "padded"},
		{"tab\there", "tab_here"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLayoutPaths(t *testing.T) {
	l := Default("/site")
	if got := l.ContentPrefix(); got != "resource/" {
		t.Errorf("ContentPrefix = %q", got)
	}
	if got := l.AggregatePath(); got != filepath.Join("/site", "resource", "master_index.html") {
		t.Errorf("AggregatePath = %q", got)
	}
	if got := l.FolderPagePath("Intro"); got != filepath.Join("/site", "resource", "Intro", "index.html") {
		t.Errorf("FolderPagePath = %q", got)
	}
	if got := l.ThumbnailRef("My Folder"); got != "resource/My Folder/thumbs/My_Folder.jpg" {
		t.Errorf("ThumbnailRef = %q", got)
	}
	if got := l.LockPath(); got != filepath.Join("/site", ".vitrine", "publish.lock") {
		t.Errorf("LockPath = %q", got)
	}
}

func TestValidFolder(t *testing.T) {
	for _, ok := range []string{"Intro", "My Folder", "a.b"} {
		if !ValidFolder(ok) {
			t.Errorf("ValidFolder(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", " ", ".", "..", "a/b", `a\b`} {
		if ValidFolder(bad) {
			t.Errorf("ValidFolder(%q) = true", bad)
		}
	}
}
