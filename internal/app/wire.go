package app

import (
	"context"
	"fmt"
	"log/slog"

	cacheredis "github.com/alanyoungcy/costsim/internal/cache/redis"
	"github.com/alanyoungcy/costsim/internal/config"
	"github.com/alanyoungcy/costsim/internal/domain"
	"github.com/alanyoungcy/costsim/internal/metrics"
	"github.com/alanyoungcy/costsim/internal/platform/okx"
	"github.com/alanyoungcy/costsim/internal/simulator"
)

// Dependencies holds everything the application modes need. Optional
// components (Redis) are nil when disabled in configuration.
type Dependencies struct {
	Model      *simulator.Model
	Controller *simulator.Controller
	Feed       *okx.Feed

	Redis     *cacheredis.Client
	Estimates *cacheredis.EstimateCache
}

// Wire builds the dependency graph from configuration. It returns the
// dependencies and a cleanup function that releases every acquired resource.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Cost model.
	deps.Model = simulator.NewModel(simulator.ModelConfig{
		MakerProportion: cfg.Simulation.MakerProportion,
		VolumeEstimator: simulator.DepthVolumeEstimator(cfg.Simulation.VolumeMultiple),
	})

	// Controller with the configured initial order parameters.
	deps.Controller = simulator.NewController(deps.Model, domain.OrderParams{
		Symbol:      cfg.Feed.Instrument,
		Side:        domain.SideBuy,
		QuantityUSD: cfg.Simulation.QuantityUSD,
		FeeTier:     cfg.Simulation.FeeTier,
	}, logger)

	// Feed wired straight into the controller. Reconnect attempts are
	// counted here so the feed package stays metrics-free.
	ctrl := deps.Controller
	deps.Feed = okx.NewFeed(
		cfg.Feed.WsURL,
		okx.Subscription{
			Channel:    cfg.Feed.Channel,
			Instrument: cfg.Feed.Instrument,
		},
		okx.Handlers{
			OnSnapshot: ctrl.HandleSnapshot,
			OnStatus: func(st okx.Status) {
				if st.State == okx.StateReconnecting {
					metrics.FeedReconnects.Inc()
				}
				ctrl.SetConnectivity(st.Connected, st.Err)
			},
		},
		okx.Options{
			PingInterval:         cfg.Feed.PingInterval.Duration,
			ReconnectDelay:       cfg.Feed.ReconnectDelay.Duration,
			MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		},
		logger,
	)

	// Optional Redis estimate cache.
	if cfg.Redis.Enabled {
		client, err := cacheredis.New(ctx, cacheredis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("app: connect redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })

		deps.Redis = client
		deps.Estimates = cacheredis.NewEstimateCache(client, cfg.Redis.EstimateTTL.Duration)
	}

	return deps, cleanup, nil
}
