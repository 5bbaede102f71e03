package simulator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/costsim/internal/domain"
	"github.com/alanyoungcy/costsim/internal/metrics"
)

// View is the immutable state bundle published to consumers whenever the
// latest result, connectivity, or error state changes. Feed and computation
// errors are tracked independently and never conflated.
type View struct {
	Result     *domain.SimulationResult `json:"result,omitempty"`
	Connected  bool                     `json:"connected"`
	FeedErr    string                   `json:"feed_error,omitempty"`
	ComputeErr string                   `json:"compute_error,omitempty"`
}

// Controller glues the feed to the cost model. It owns the current order
// parameters, recomputes the estimate on every snapshot while connected, and
// publishes the latest View to subscribers. All work is event-triggered; a
// new snapshot implicitly supersedes any previous result.
type Controller struct {
	model  *Model
	logger *slog.Logger

	mu     sync.RWMutex
	params domain.OrderParams
	view   View
	subs   map[chan View]struct{}
}

// NewController creates a controller with the given initial parameters.
func NewController(model *Model, params domain.OrderParams, logger *slog.Logger) *Controller {
	if params.Side == "" {
		params.Side = domain.SideBuy
	}
	return &Controller{
		model:  model,
		logger: logger.With(slog.String("component", "controller")),
		params: params,
		subs:   make(map[chan View]struct{}),
	}
}

// Params returns the current order parameters.
func (c *Controller) Params() domain.OrderParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// SetParams replaces the order parameters wholesale. No recomputation is
// forced; the new parameters take effect on the next snapshot.
func (c *Controller) SetParams(params domain.OrderParams) error {
	if params.QuantityUSD <= 0 || params.Symbol == "" {
		return domain.ErrInvalidParams
	}
	if params.Side == "" {
		params.Side = domain.SideBuy
	}

	c.mu.Lock()
	c.params = params
	c.mu.Unlock()

	c.logger.Info("parameters updated",
		slog.String("symbol", params.Symbol),
		slog.Float64("quantity_usd", params.QuantityUSD),
		slog.String("fee_tier", params.FeeTier),
	)
	return nil
}

// Latest returns the most recently published view.
func (c *Controller) Latest() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Subscribe registers a consumer. The channel holds at most one pending view;
// when the consumer lags, the stale view is dropped so the latest always wins.
func (c *Controller) Subscribe() chan View {
	ch := make(chan View, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.view
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (c *Controller) Unsubscribe(ch chan View) {
	c.mu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.mu.Unlock()
}

// HandleSnapshot runs the cost model against a fresh snapshot. Snapshots are
// processed in arrival order; computation failures set the computation error
// and never stop processing of subsequent snapshots.
func (c *Controller) HandleSnapshot(snap domain.OrderbookSnapshot) {
	c.mu.RLock()
	connected := c.view.Connected
	params := c.params
	c.mu.RUnlock()

	if !connected {
		return
	}

	metrics.SnapshotsReceived.Inc()

	start := time.Now()
	result, err := c.model.Estimate(snap, params)
	elapsed := time.Since(start)

	c.mu.Lock()
	if err != nil {
		c.view.Result = nil
		c.view.ComputeErr = err.Error()
		c.publishLocked()
		c.mu.Unlock()

		metrics.EstimateErrors.Inc()
		c.logger.Warn("estimate failed",
			slog.String("symbol", snap.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	result.InternalLatency = elapsed
	c.view.Result = &result
	c.view.ComputeErr = ""
	c.publishLocked()
	c.mu.Unlock()

	metrics.EstimatesComputed.Inc()
	metrics.ComputeLatency.Observe(elapsed.Seconds())
	c.logger.Debug("estimate updated", slog.Any("result", logValue(result)))
}

// SetConnectivity records the feed's connection state. errMsg is the terminal
// feed error, empty while retries remain or the connection is healthy.
func (c *Controller) SetConnectivity(connected bool, errMsg string) {
	c.mu.Lock()
	c.view.Connected = connected
	c.view.FeedErr = errMsg
	c.publishLocked()
	c.mu.Unlock()

	if connected {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
}

// publishLocked fans the current view out to all subscribers, replacing any
// undelivered older view. Caller holds mu.
func (c *Controller) publishLocked() {
	for ch := range c.subs {
		select {
		case ch <- c.view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c.view:
			default:
			}
		}
	}
}
