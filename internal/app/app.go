// Package app wires configuration, stores, and services into a runnable
// application and drives the selected run mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openpredict/marketd/internal/config"
)

// App owns the wired dependencies for one process lifetime.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	cleanup func()
}

// New wires all dependencies for the configured mode.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	deps, cleanup, err := Wire(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return &App{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "app")),
		deps:    deps,
		cleanup: cleanup,
	}, nil
}

// Run blocks until the context is cancelled or the mode finishes.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting", slog.String("mode", mode))

	switch mode {
	case "full":
		return a.runFull(ctx)
	case "local":
		return a.runLocal(ctx)
	case "archive":
		return a.runArchive(ctx)
	default:
		return fmt.Errorf("app: unknown mode %q", mode)
	}
}

// Close releases all wired resources in reverse acquisition order.
func (a *App) Close() {
	if a.cleanup != nil {
		a.cleanup()
	}
	a.logger.Info("stopped")
}

// runFull serves the trading engine with all background loops attached.
func (a *App) runFull(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g)
	if a.deps.Feed != nil {
		g.Go(func() error {
			return a.deps.Feed.Run(ctx)
		})
	}
	if a.deps.Archiver != nil {
		g.Go(func() error {
			a.deps.Archiver.RunEvery(ctx, a.cfg.Archive.Interval.Duration)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	return g.Wait()
}

// runLocal runs the engine against in-memory stores. Useful for development
// and for exercising markets without external infrastructure.
func (a *App) runLocal(ctx context.Context) error {
	a.logger.InfoContext(ctx, "local mode ready, settlement refs are synthetic")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g)
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	return g.Wait()
}

// startServer launches the HTTP server, the WebSocket hub, and a shutdown
// watcher on the group, when the API is enabled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group) {
	if a.deps.Server == nil {
		return
	}
	if a.deps.Hub != nil {
		g.Go(func() error {
			return a.deps.Hub.Run(ctx)
		})
	}
	g.Go(func() error {
		return a.deps.Server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.deps.Server.Shutdown(shutdownCtx)
	})
}

// runArchive performs a single archival pass and exits.
func (a *App) runArchive(ctx context.Context) error {
	if a.deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires archive.enabled")
	}
	n, err := a.deps.Archiver.Run(ctx)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive pass complete", slog.Int64("entries", n))
	return nil
}
