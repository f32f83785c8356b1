package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/starford/vitrine/internal/apperr"
	"github.com/starford/vitrine/internal/mcpserver"
	"github.com/starford/vitrine/internal/siteservice"
)

// oneShot runs fn against a service without an event broker. Logs go to
// stderr so stdout carries only the report.
func oneShot(opts []Option, fn func(a *application, svc *siteservice.Service) error) error {
	app, err := newApplication(os.Stderr, opts...)
	if err != nil {
		return err
	}
	svc, db, err := app.open(nil)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(app, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Publish runs one publish and prints its result.
func Publish(ctx context.Context, opts ...Option) error {
	return oneShot(opts, func(a *application, svc *siteservice.Service) error {
		res := svc.Publish(ctx)
		if err := printJSON(a.out, res); err != nil {
			return err
		}
		switch {
		case res.Locked:
			return fmt.Errorf("publish: %w", apperr.ErrLocked)
		case !res.Success:
			return fmt.Errorf("publish failed: %s", strings.Join(res.Errors, "; "))
		}
		return nil
	})
}

// Diff prints the drift report, as JSON when asJSON is set.
func Diff(ctx context.Context, asJSON bool, opts ...Option) error {
	return oneShot(opts, func(a *application, svc *siteservice.Service) error {
		rep, err := svc.Diff(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(a.out, rep)
		}
		_, err = io.WriteString(a.out, rep.Pretty())
		return err
	})
}

// Prune computes a fresh drift report, applies it and prints the outcome.
func Prune(ctx context.Context, deleteThumbs bool, opts ...Option) error {
	return oneShot(opts, func(a *application, svc *siteservice.Service) error {
		out, err := svc.Prune(ctx, deleteThumbs)
		if err != nil {
			return err
		}
		if err := printJSON(a.out, out); err != nil {
			return err
		}
		if len(out.Result.Errors) > 0 {
			return fmt.Errorf("prune finished with %d errors", len(out.Result.Errors))
		}
		return nil
	})
}

// RebuildRegistry regenerates the consolidated registry from the master document.
func RebuildRegistry(ctx context.Context, opts ...Option) error {
	return oneShot(opts, func(a *application, svc *siteservice.Service) error {
		snap, err := svc.RebuildRegistry(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("registry rebuilt", slog.Int("items", len(snap.Items)))
		return printJSON(a.out, snap)
	})
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	return oneShot(opts, func(a *application, svc *siteservice.Service) error {
		if err := svc.Reindex(ctx); err != nil {
			a.logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
		a.logger.Info("MCP server starting on stdio")
		return mcpserver.New(svc, a.version).ServeStdio()
	})
}
