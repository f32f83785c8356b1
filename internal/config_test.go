package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/vitrine/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	opts := cfg.Options()
	if !opts.AutoMergeNewFolders || opts.LockStaleAfter != time.Hour || opts.ThumbnailWidth != 640 {
		t.Errorf("options = %+v", opts)
	}
	if cfg.Thumbnails.Generator() == nil {
		t.Error("default config should generate thumbnails")
	}
}

func TestSiteConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *SiteConfig)
		wantErr bool
	}{
		{"defaults", func(*SiteConfig) {}, false},
		{"missing root", func(c *SiteConfig) { c.Root = "" }, true},
		{"nested aggregate page", func(c *SiteConfig) { c.AggregatePage = "a/b.html" }, true},
		{"bad glob", func(c *SiteConfig) { c.Exclude = []string{"[draft"} }, true},
		{"good glob", func(c *SiteConfig) { c.Exclude = []string{"_draft*", "**/tmp"} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig().Site
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishConfig_Validation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Publish.LockStaleAfterSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative stale threshold should fail")
	}

	cfg = NewDefaultConfig()
	cfg.Publish.ThumbnailWidth = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero thumbnail width should fail")
	}
}

func TestThumbnailsConfig_Disabled(t *testing.T) {
	cfg := ThumbnailsConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled thumbnails need no tools: %v", err)
	}
	if cfg.Generator() != nil {
		t.Error("disabled thumbnails should have no generator")
	}
	if err := (&ThumbnailsConfig{Enabled: true}).Validate(); err == nil {
		t.Error("enabled thumbnails without tools should fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("VITRINE_TEST_ROOT", dir)
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
site:
  root: ${VITRINE_TEST_ROOT}
  title: Carvings
  exclude: ["_draft*"]
publish:
  force_push_failure: true
  lock_stale_after_seconds: 60
auth:
  mode: token
  token: s3cret
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(path, cfg); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Site.Root != dir || cfg.Site.Title != "Carvings" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Site.ContentDir != "resource" {
		t.Errorf("content_dir default lost: %q", cfg.Site.ContentDir)
	}
	opts := cfg.Options()
	if !opts.ForcePushFailure || opts.LockStaleAfter != time.Minute || opts.SiteTitle != "Carvings" {
		t.Errorf("options = %+v", opts)
	}
	if layout := cfg.Site.Layout(); len(layout.Exclude) != 1 || layout.Root != dir {
		t.Errorf("layout = %+v", layout)
	}
	if !cfg.Auth.AuthEnabled() {
		t.Error("token auth should be enabled")
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), cfg); err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.App.HTTP.Port != 8080 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
}
