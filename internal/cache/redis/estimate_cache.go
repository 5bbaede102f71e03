package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/costsim/internal/domain"
	"github.com/alanyoungcy/costsim/internal/simulator"
)

// estimateChannel is the pub/sub channel that every published estimate is
// fanned out on for external consumers.
const estimateChannel = "estimates"

// EstimateCache stores the latest simulation view per symbol with a short
// TTL and publishes each update. This is ephemeral last-value caching, not
// historical persistence: a stale entry simply expires.
type EstimateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewEstimateCache creates an EstimateCache backed by the given Client.
func NewEstimateCache(c *Client, ttl time.Duration) *EstimateCache {
	return &EstimateCache{
		rdb: c.rdb,
		ttl: ttl,
	}
}

func estimateKey(symbol string) string { return "estimate:" + symbol }

// SetLatest replaces the cached view for a symbol and publishes it on the
// estimates channel.
func (ec *EstimateCache) SetLatest(ctx context.Context, symbol string, view simulator.View) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal estimate %s: %w", symbol, err)
	}

	pipe := ec.rdb.TxPipeline()
	pipe.Set(ctx, estimateKey(symbol), data, ec.ttl)
	pipe.Publish(ctx, estimateChannel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set estimate %s: %w", symbol, err)
	}
	return nil
}

// GetLatest returns the cached view for a symbol. It returns
// domain.ErrNotFound when no entry exists or the entry has expired.
func (ec *EstimateCache) GetLatest(ctx context.Context, symbol string) (simulator.View, error) {
	data, err := ec.rdb.Get(ctx, estimateKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return simulator.View{}, domain.ErrNotFound
		}
		return simulator.View{}, fmt.Errorf("redis: get estimate %s: %w", symbol, err)
	}

	var view simulator.View
	if err := json.Unmarshal(data, &view); err != nil {
		return simulator.View{}, fmt.Errorf("redis: decode estimate %s: %w", symbol, err)
	}
	return view, nil
}
