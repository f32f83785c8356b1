package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/lock"
	"github.com/starford/vitrine/internal/models"
)

func testConfig(t *testing.T, folders ...string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Site.Root = t.TempDir()
	cfg.Thumbnails.Enabled = false
	for _, f := range folders {
		if err := os.MkdirAll(filepath.Join(cfg.Site.Root, cfg.Site.ContentDir, f), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func testOpts(cfg *Config, out io.Writer) []Option {
	return []Option{
		WithConfig(cfg),
		WithOutput(out),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func TestPublishCommand(t *testing.T) {
	cfg := testConfig(t, "Intro", "Masks")
	var out bytes.Buffer

	if err := Publish(context.Background(), testOpts(cfg, &out)...); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	var res models.PublishResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if !res.Success || res.CardsProcessed != 2 {
		t.Errorf("result = %+v", res)
	}
	layout := cfg.Site.Layout()
	if _, err := os.Stat(layout.AggregatePath()); err != nil {
		t.Errorf("aggregate page missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(layout.StatePath(), "vitrine.db")); err != nil {
		t.Errorf("journal database missing: %v", err)
	}
}

func TestPublishCommandLocked(t *testing.T) {
	cfg := testConfig(t, "Intro")
	layout := cfg.Site.Layout()
	if err := os.MkdirAll(layout.StatePath(), 0o755); err != nil {
		t.Fatal(err)
	}
	l, err := lock.Acquire(layout.LockPath(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	err = Publish(context.Background(), testOpts(cfg, io.Discard)...)
	if !errors.Is(err, apperr.ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}

func TestForcedPushFailureFailsCommand(t *testing.T) {
	cfg := testConfig(t, "Intro")
	cfg.Publish.ForcePushFailure = true
	if err := Publish(context.Background(), testOpts(cfg, io.Discard)...); err == nil {
		t.Error("forced push failure should fail the command")
	}
}

func TestDiffPruneAndRebuild(t *testing.T) {
	cfg := testConfig(t, "Intro", "Masks")
	ctx := context.Background()
	if err := Publish(ctx, testOpts(cfg, io.Discard)...); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(filepath.Join(cfg.Site.Root, cfg.Site.ContentDir, "Masks")); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Diff(ctx, false, testOpts(cfg, &out)...); err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(out.String(), "Cards with no folder (1)") || !strings.Contains(out.String(), "- Masks") {
		t.Errorf("pretty diff = %s", out.String())
	}

	out.Reset()
	if err := Diff(ctx, true, testOpts(cfg, &out)...); err != nil {
		t.Fatalf("Diff --json: %v", err)
	}
	var rep models.PruneReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("diff json: %v", err)
	}
	if len(rep.CardsWithNoFolder) != 1 {
		t.Errorf("cards with no folder = %v", rep.CardsWithNoFolder)
	}

	if err := Prune(ctx, true, testOpts(cfg, io.Discard)...); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	out.Reset()
	if err := Diff(ctx, true, testOpts(cfg, &out)...); err != nil {
		t.Fatal(err)
	}
	rep = models.PruneReport{}
	_ = json.Unmarshal(out.Bytes(), &rep)
	if !rep.Empty() {
		t.Errorf("diff after prune = %+v", rep)
	}

	out.Reset()
	if err := RebuildRegistry(ctx, testOpts(cfg, &out)...); err != nil {
		t.Fatalf("RebuildRegistry: %v", err)
	}
	var snap models.RegistrySnapshot
	_ = json.Unmarshal(out.Bytes(), &snap)
	if len(snap.Items) != 1 || snap.Items[0].Folder != "Intro" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCommandsRequireConfig(t *testing.T) {
	if err := Publish(context.Background()); err == nil {
		t.Error("missing config should fail")
	}
}
