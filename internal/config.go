package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vitrine/internal/publish"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/thumbs"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Site       SiteConfig        `yaml:"site"`
	Publish    PublishConfig     `yaml:"publish"`
	Thumbnails ThumbnailsConfig  `yaml:"thumbnails"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := c.Thumbnails.Validate(); err != nil {
		return fmt.Errorf("thumbnails: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SiteConfig locates the master document, the content root and the
// derived artifacts.
type SiteConfig struct {
	Root           string   `yaml:"root"`
	ContentDir     string   `yaml:"content_dir"`
	MasterDocument string   `yaml:"master_document"`
	AggregatePage  string   `yaml:"aggregate_page"`
	FolderPage     string   `yaml:"folder_page"`
	StateDir       string   `yaml:"state_dir"`
	AssetsDir      string   `yaml:"assets_dir"`
	Title          string   `yaml:"title"`
	Stylesheet     string   `yaml:"stylesheet"` // optional override of the embedded stylesheet
	Exclude        []string `yaml:"exclude"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.ContentDir, validation.Required),
		validation.Field(&c.MasterDocument, validation.Required),
		validation.Field(&c.AggregatePage, validation.Required, validation.By(plainFileName)),
		validation.Field(&c.FolderPage, validation.Required, validation.By(plainFileName)),
		validation.Field(&c.StateDir, validation.Required),
		validation.Field(&c.AssetsDir, validation.By(plainFileName)),
		validation.Field(&c.Exclude, validation.Each(validation.By(validGlob))),
	)
}

// Layout builds the on-disk layout described by the configuration.
func (c *SiteConfig) Layout() site.Layout {
	return site.Layout{
		Root:           c.Root,
		ContentDir:     c.ContentDir,
		MasterDocument: c.MasterDocument,
		AggregatePage:  c.AggregatePage,
		FolderPage:     c.FolderPage,
		StateDir:       c.StateDir,
		AssetsDir:      c.AssetsDir,
		Exclude:        c.Exclude,
	}
}

func plainFileName(v any) error {
	s, _ := v.(string)
	if s != "" && filepath.Base(s) != s {
		return fmt.Errorf("must be a plain file name")
	}
	return nil
}

func validGlob(v any) error {
	s, _ := v.(string)
	if !doublestar.ValidatePattern(s) {
		return fmt.Errorf("invalid glob %q", s)
	}
	return nil
}

// PublishConfig holds the orchestrator options. It is built once at startup
// and passed to the Publisher and Pruner.
type PublishConfig struct {
	ForceScanFailure        bool `yaml:"force_scan_failure"`
	ForcePushFailure        bool `yaml:"force_push_failure"`
	VerboseSanitizerLogging bool `yaml:"verbose_sanitizer_logging"`
	AutoMergeNewFolders     bool `yaml:"auto_merge_new_folders"`
	PruneOnPublish          bool `yaml:"prune_on_publish"`
	LockStaleAfterSeconds   int  `yaml:"lock_stale_after_seconds"` // 0 never reclaims
	ThumbnailWidth          int  `yaml:"thumbnail_width"`

	// Watch enables the folder watcher in serve mode; AutoPublish publishes
	// after every debounced change.
	Watch             bool `yaml:"watch"`
	AutoPublish       bool `yaml:"auto_publish"`
	WatchDebounceMsec int  `yaml:"watch_debounce_ms"`
}

// Validate validates the publish configuration.
func (c *PublishConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LockStaleAfterSeconds, validation.Min(0)),
		validation.Field(&c.ThumbnailWidth, validation.Required, validation.Min(16), validation.Max(4096)),
		validation.Field(&c.WatchDebounceMsec, validation.Min(0)),
	)
}

// WatchDebounce returns the watcher debounce interval.
func (c *PublishConfig) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMsec) * time.Millisecond
}

// Options converts the configuration into publisher options.
func (c *Config) Options() publish.Options {
	return publish.Options{
		ForceScanFailure:        c.Publish.ForceScanFailure,
		ForcePushFailure:        c.Publish.ForcePushFailure,
		VerboseSanitizerLogging: c.Publish.VerboseSanitizerLogging,
		AutoMergeNewFolders:     c.Publish.AutoMergeNewFolders,
		PruneOnPublish:          c.Publish.PruneOnPublish,
		LockStaleAfter:          time.Duration(c.Publish.LockStaleAfterSeconds) * time.Second,
		ThumbnailWidth:          c.Publish.ThumbnailWidth,
		SiteTitle:               c.Site.Title,
		StylesheetPath:          c.Site.Stylesheet,
	}
}

// ThumbnailsConfig names the external tools thumbnails are generated with.
type ThumbnailsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	FFmpeg         string `yaml:"ffmpeg"`
	Pdftoppm       string `yaml:"pdftoppm"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Validate validates the thumbnails configuration.
func (c *ThumbnailsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FFmpeg, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Pdftoppm, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.TimeoutSeconds, validation.Min(0)),
	)
}

// Generator returns the thumbnail generator, or nil when generation is off.
func (c *ThumbnailsConfig) Generator() thumbs.Generator {
	if !c.Enabled {
		return nil
	}
	return thumbs.ExecGenerator{
		FFmpeg:   c.FFmpeg,
		Pdftoppm: c.Pdftoppm,
		Timeout:  time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

// SQLiteConfig holds SQLite database configuration. An empty path puts the
// database in the site state directory.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return nil
}

// Resolve returns the database path for layout.
func (c *SQLiteConfig) Resolve(layout site.Layout) string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(layout.StatePath(), "vitrine.db")
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	layout := site.Default(".")
	opts := publish.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Site: SiteConfig{
			Root:           layout.Root,
			ContentDir:     layout.ContentDir,
			MasterDocument: layout.MasterDocument,
			AggregatePage:  layout.AggregatePage,
			FolderPage:     layout.FolderPage,
			StateDir:       layout.StateDir,
			AssetsDir:      layout.AssetsDir,
			Title:          opts.SiteTitle,
		},
		Publish: PublishConfig{
			AutoMergeNewFolders:   opts.AutoMergeNewFolders,
			LockStaleAfterSeconds: int(opts.LockStaleAfter / time.Second),
			ThumbnailWidth:        opts.ThumbnailWidth,
			WatchDebounceMsec:     500,
		},
		Thumbnails: ThumbnailsConfig{
			Enabled:        true,
			FFmpeg:         "ffmpeg",
			Pdftoppm:       "pdftoppm",
			TimeoutSeconds: 30,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
