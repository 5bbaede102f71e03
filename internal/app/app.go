// Package app provides the top-level application lifecycle for the cost
// simulator. It wires together the feed, controller, optional Redis cache,
// and HTTP server, and supervises their goroutines.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/costsim/internal/config"
	"github.com/alanyoungcy/costsim/internal/server"
	"github.com/alanyoungcy/costsim/internal/server/handler"
	"github.com/alanyoungcy/costsim/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the feed,
// the estimate publisher, and the HTTP server, and blocks until the context
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("instrument", a.cfg.Feed.Instrument),
		slog.String("channel", a.cfg.Feed.Channel),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	// Feed lifecycle: callback-driven, supervised via the context.
	g.Go(func() error {
		deps.Feed.Connect()
		<-ctx.Done()
		deps.Feed.Disconnect()
		return ctx.Err()
	})

	// Estimate publisher: mirror every view with a result into Redis.
	if deps.Estimates != nil {
		g.Go(func() error {
			return a.publishEstimates(ctx, deps)
		})
	}

	// HTTP server and WebSocket hub.
	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.Controller, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})

		srv := server.NewServer(
			server.Config{
				Port:        a.cfg.Server.Port,
				CORSOrigins: a.cfg.Server.CORSOrigins,
			},
			server.Handlers{
				Health:   handler.NewHealthHandler(a.logger),
				Estimate: handler.NewEstimateHandler(deps.Controller, estimateReader(deps), a.cfg.Feed.Instrument, a.logger),
			},
			hub,
			a.logger,
		)
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// estimateReader exposes the estimate cache to the HTTP handler without
// handing it a typed nil when Redis is disabled.
func estimateReader(deps *Dependencies) handler.EstimateReader {
	if deps.Estimates == nil {
		return nil
	}
	return deps.Estimates
}

// publishEstimates forwards each published view carrying a result to the
// Redis estimate cache. Publish failures are logged and skipped; the next
// view retries naturally.
func (a *App) publishEstimates(ctx context.Context, deps *Dependencies) error {
	views := deps.Controller.Subscribe()
	defer deps.Controller.Unsubscribe(views)

	symbol := a.cfg.Feed.Instrument
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case view, ok := <-views:
			if !ok {
				return nil
			}
			if view.Result == nil {
				continue
			}
			if err := deps.Estimates.SetLatest(ctx, symbol, view); err != nil {
				a.logger.Warn("publish estimate failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
