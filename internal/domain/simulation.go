package domain

import "time"

// OrderSide distinguishes buy and sell orders. Only market buys are simulated
// in the current scope, so the cost model walks the ask side.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderParams describes the hypothetical market order whose execution cost is
// being simulated. Params are replaced wholesale on change, never mutated in
// place, so a single consistent set is used per computation.
type OrderParams struct {
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	QuantityUSD float64   `json:"quantity_usd"`
	FeeTier     string    `json:"fee_tier"`
}

// FeeTier holds the maker and taker fee rates for one exchange fee tier,
// both expressed as fractions of notional.
type FeeTier struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
}

// ImpactProfile holds the per-asset coefficients of the market impact model.
type ImpactProfile struct {
	TemporaryImpact float64 `json:"temporary_impact"`
	PermanentImpact float64 `json:"permanent_impact"`
	Volatility      float64 `json:"volatility"`
}

// SimulationResult is the cost estimate produced for one orderbook snapshot.
// Created fresh per computation and never mutated; each new snapshot
// supersedes the previous result.
type SimulationResult struct {
	ID              string        `json:"id"`
	Timestamp       time.Time     `json:"timestamp"`
	QuantityUSD     float64       `json:"quantity_usd"`
	Slippage        float64       `json:"slippage"`
	SlippagePct     float64       `json:"slippage_pct"`
	Fees            float64       `json:"fees"`
	FeesPct         float64       `json:"fees_pct"`
	MarketImpact    float64       `json:"market_impact"`
	MarketImpactPct float64       `json:"market_impact_pct"`
	NetCost         float64       `json:"net_cost"`
	NetCostPct      float64       `json:"net_cost_pct"`
	MakerProportion float64       `json:"maker_proportion"`
	InternalLatency time.Duration `json:"internal_latency_ns"`
}
