package thumbs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/models"
)

// ExecGenerator shells out to ffmpeg (images, video frames) and pdftoppm
// (PDF pages).
type ExecGenerator struct {
	FFmpeg   string
	Pdftoppm string
	Timeout  time.Duration
}

// Generate writes a JPEG thumbnail at dst no wider than maxWidth.
func (g ExecGenerator) Generate(ctx context.Context, kind models.SourceKind, src, dst string, maxWidth int) error {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	scale := fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)

	switch kind {
	case models.SourceImage:
		return g.run(ctx, g.FFmpeg, "-y", "-loglevel", "error", "-i", src, "-vf", scale, "-frames:v", "1", dst)
	case models.SourceVideo:
		return g.run(ctx, g.FFmpeg, "-y", "-loglevel", "error", "-ss", "1", "-i", src, "-vf", scale, "-frames:v", "1", dst)
	case models.SourcePDF:
		return g.pdf(ctx, src, dst, maxWidth)
	}
	return fmt.Errorf("thumbs: unsupported source kind %q", kind)
}

// pdf rasterizes the middle page of src.
func (g ExecGenerator) pdf(ctx context.Context, src, dst string, maxWidth int) error {
	page := 1
	if n, err := g.pdfPages(ctx, src); err == nil && n > 1 {
		page = (n + 1) / 2
	}
	prefix := strings.TrimSuffix(dst, filepath.Ext(dst))
	p := strconv.Itoa(page)
	if err := g.run(ctx, g.Pdftoppm, "-jpeg", "-singlefile", "-f", p, "-l", p,
		"-scale-to-x", strconv.Itoa(maxWidth), "-scale-to-y", "-1", src, prefix); err != nil {
		return err
	}
	if out := prefix + ".jpg"; out != dst {
		return os.Rename(out, dst)
	}
	return nil
}

func (g ExecGenerator) pdfPages(ctx context.Context, src string) (int, error) {
	info := filepath.Join(filepath.Dir(g.Pdftoppm), "pdfinfo")
	if filepath.Dir(g.Pdftoppm) == "." {
		info = "pdfinfo"
	}
	out, err := exec.CommandContext(ctx, info, src).Output()
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if v, ok := strings.CutPrefix(line, "Pages:"); ok {
			return strconv.Atoi(strings.TrimSpace(v))
		}
	}
	return 0, fmt.Errorf("thumbs: page count not found")
}

func (g ExecGenerator) run(ctx context.Context, bin string, args ...string) error {
	if bin == "" {
		return fmt.Errorf("thumbs: tool not configured: %w", apperr.ErrUnavailable)
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("thumbs: %s not found: %w", bin, apperr.ErrUnavailable)
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("thumbs: %s: %w: %s", filepath.Base(bin), err, strings.TrimSpace(string(out)))
	}
	return nil
}
