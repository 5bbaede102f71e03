// Package simulator implements the cost-estimation engine: a deterministic
// model that prices a hypothetical market order against one orderbook
// snapshot, and the controller that drives it from the live feed.
package simulator

import (
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/alanyoungcy/costsim/internal/domain"
)

const (
	// DefaultMakerProportion is the fraction of a market order assumed to
	// fill as maker. Market orders primarily cross the book, so the split
	// is heavily taker-weighted. This is a modeling assumption, not derived
	// from the book.
	DefaultMakerProportion = 0.1

	// DefaultVolumeMultiple scales the visible ask-side notional into a
	// rough daily-volume estimate. A coarse placeholder for historical
	// volume data.
	DefaultVolumeMultiple = 100.0
)

// VolumeEstimator estimates the available daily volume in USD for a snapshot.
// It is injectable because the depth-multiple heuristic is the least
// principled part of the model.
type VolumeEstimator func(snap domain.OrderbookSnapshot) float64

// DepthVolumeEstimator returns the default estimator: visible ask-side
// notional times a fixed multiple.
func DepthVolumeEstimator(multiple float64) VolumeEstimator {
	return func(snap domain.OrderbookSnapshot) float64 {
		return snap.AskDepthUSD() * multiple
	}
}

// ModelConfig tunes the cost model. Zero values fall back to the defaults.
type ModelConfig struct {
	MakerProportion float64
	VolumeEstimator VolumeEstimator
}

// Model is the pure cost-estimation function set. Given a snapshot and order
// parameters it computes execution price, slippage, fees, market impact, and
// the combined net cost. It is deterministic and side-effect free.
type Model struct {
	makerProportion float64
	estimateVolume  VolumeEstimator
}

// NewModel creates a Model from the given configuration.
func NewModel(cfg ModelConfig) *Model {
	maker := cfg.MakerProportion
	if maker <= 0 || maker >= 1 {
		maker = DefaultMakerProportion
	}
	estimate := cfg.VolumeEstimator
	if estimate == nil {
		estimate = DepthVolumeEstimator(DefaultVolumeMultiple)
	}
	return &Model{
		makerProportion: maker,
		estimateVolume:  estimate,
	}
}

// Estimate computes the full cost estimate for executing params against snap.
// It returns domain.ErrInsufficientBookDepth when either book side is empty
// or the visible depth implies no volume, and domain.ErrInvalidMidPrice when
// the mid price is not positive.
func (m *Model) Estimate(snap domain.OrderbookSnapshot, params domain.OrderParams) (domain.SimulationResult, error) {
	if params.QuantityUSD <= 0 {
		return domain.SimulationResult{}, domain.ErrInvalidParams
	}
	if len(snap.Asks) == 0 || len(snap.Bids) == 0 {
		return domain.SimulationResult{}, domain.ErrInsufficientBookDepth
	}
	mid := snap.MidPrice()
	if mid <= 0 {
		return domain.SimulationResult{}, domain.ErrInvalidMidPrice
	}

	slippage, slippagePct := m.executionCost(snap, params.QuantityUSD, mid)
	fees, feesPct := m.fees(params)

	impact, impactPct, err := m.marketImpact(snap, params)
	if err != nil {
		return domain.SimulationResult{}, err
	}

	return domain.SimulationResult{
		ID:              uuid.NewString(),
		Timestamp:       snap.Timestamp,
		QuantityUSD:     params.QuantityUSD,
		Slippage:        slippage,
		SlippagePct:     slippagePct,
		Fees:            fees,
		FeesPct:         feesPct,
		MarketImpact:    impact,
		MarketImpactPct: impactPct,
		NetCost:         slippage + fees + impact,
		NetCostPct:      slippagePct + feesPct + impactPct,
		MakerProportion: m.makerProportion,
	}, nil
}

// executionCost walks the ask side from the best price outward, consuming
// each level's notional against the remaining requested quantity, and
// accumulates a quantity-weighted average fill price. When the book cannot
// absorb the full quantity the weighted price reflects only the consumed
// levels; depth is never extrapolated. Known limitation: in that case the
// weights still divide by the requested quantity, understating the price.
func (m *Model) executionCost(snap domain.OrderbookSnapshot, quantityUSD, mid float64) (slippage, slippagePct float64) {
	remaining := quantityUSD
	var weightedPrice float64

	for _, lvl := range snap.Asks {
		if remaining <= 0 {
			break
		}
		levelNotional := lvl.Price * lvl.Size
		taken := math.Min(remaining, levelNotional)
		weightedPrice += lvl.Price * (taken / quantityUSD)
		remaining -= taken
	}

	slippage = weightedPrice - mid
	slippagePct = slippage / mid
	return slippage, slippagePct
}

// fees applies the fixed taker/maker split to the tier's rates. Unrecognized
// tier ids silently fall back to the lowest tier.
func (m *Model) fees(params domain.OrderParams) (fees, feesPct float64) {
	tier := FeeTierFor(params.FeeTier)
	taker := 1 - m.makerProportion

	fees = params.QuantityUSD * (taker*tier.Taker + m.makerProportion*tier.Maker)
	feesPct = fees / params.QuantityUSD
	return fees, feesPct
}

// marketImpact estimates price displacement from the order's share of
// estimated daily volume. This is a simplified single-period estimator, not
// a multi-period execution-schedule model.
func (m *Model) marketImpact(snap domain.OrderbookSnapshot, params domain.OrderParams) (impact, impactPct float64, err error) {
	profile := ImpactProfileFor(params.Symbol)

	volume := m.estimateVolume(snap)
	if volume <= 0 {
		return 0, 0, domain.ErrInsufficientBookDepth
	}

	shareOfVolume := params.QuantityUSD / volume
	impactPct = profile.Volatility * (1 + profile.PermanentImpact) *
		math.Sqrt(shareOfVolume) * profile.TemporaryImpact
	impact = params.QuantityUSD * impactPct
	return impact, impactPct, nil
}

// logValue summarizes a result for structured logging.
func logValue(res domain.SimulationResult) slog.Value {
	return slog.GroupValue(
		slog.Float64("quantity_usd", res.QuantityUSD),
		slog.Float64("net_cost", res.NetCost),
		slog.Float64("net_cost_pct", res.NetCostPct),
		slog.Duration("latency", res.InternalLatency),
	)
}
