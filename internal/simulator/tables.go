package simulator

import "github.com/alanyoungcy/costsim/internal/domain"

// DefaultFeeTier is used when the requested tier id is unrecognized.
const DefaultFeeTier = "VIP0"

// feeTiers holds the OKX spot fee schedule, maker/taker as fractions of
// notional. Loaded once, never mutated.
var feeTiers = map[string]domain.FeeTier{
	"VIP0": {Maker: 0.0008, Taker: 0.001},
	"VIP1": {Maker: 0.0007, Taker: 0.0009},
	"VIP2": {Maker: 0.0006, Taker: 0.0008},
	"VIP3": {Maker: 0.0005, Taker: 0.0007},
	"VIP4": {Maker: 0.0004, Taker: 0.0006},
	"VIP5": {Maker: 0.0002, Taker: 0.0004},
}

// DefaultImpactSymbol is the reference asset whose impact profile is used
// when a symbol has no entry of its own.
const DefaultImpactSymbol = "BTC-USDT"

// impactProfiles holds the per-asset impact coefficients and volatility.
var impactProfiles = map[string]domain.ImpactProfile{
	"BTC-USDT":  {TemporaryImpact: 0.0001, PermanentImpact: 0.0003, Volatility: 0.02},
	"ETH-USDT":  {TemporaryImpact: 0.00015, PermanentImpact: 0.0004, Volatility: 0.025},
	"SOL-USDT":  {TemporaryImpact: 0.0002, PermanentImpact: 0.0005, Volatility: 0.035},
	"BNB-USDT":  {TemporaryImpact: 0.00018, PermanentImpact: 0.00045, Volatility: 0.03},
	"XRP-USDT":  {TemporaryImpact: 0.00025, PermanentImpact: 0.0006, Volatility: 0.04},
	"ADA-USDT":  {TemporaryImpact: 0.00025, PermanentImpact: 0.0006, Volatility: 0.04},
	"DOGE-USDT": {TemporaryImpact: 0.0003, PermanentImpact: 0.0007, Volatility: 0.045},
	"AVAX-USDT": {TemporaryImpact: 0.00022, PermanentImpact: 0.00055, Volatility: 0.038},
}

// FeeTierFor returns the fee rates for the given tier id, falling back to
// DefaultFeeTier when the id is unrecognized. Unknown tiers are not an error.
func FeeTierFor(id string) domain.FeeTier {
	if tier, ok := feeTiers[id]; ok {
		return tier
	}
	return feeTiers[DefaultFeeTier]
}

// ImpactProfileFor returns the impact profile for the given symbol, falling
// back to the reference asset when the symbol is unrecognized.
func ImpactProfileFor(symbol string) domain.ImpactProfile {
	if profile, ok := impactProfiles[symbol]; ok {
		return profile
	}
	return impactProfiles[DefaultImpactSymbol]
}
