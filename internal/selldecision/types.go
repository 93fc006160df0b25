package selldecision

import "time"

// Decision is the engine's final verdict for a position.
type Decision string

const (
	DecisionSell        Decision = "SELL"
	DecisionPartialSell Decision = "PARTIAL_SELL"
	DecisionHold        Decision = "HOLD"
	DecisionBlock       Decision = "BLOCK"
)

// Market trend labels.
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// Config carries every threshold the engine evaluates against. All values
// are injected so the engine is testable with synthetic configs.
type Config struct {
	MinProfitPct float64 // below this, profit analysis votes HOLD
	MaxLossPct   float64 // loss magnitude beyond this forces a stop-loss SELL

	MinHold time.Duration // positions younger than this are held
	MaxHold time.Duration // positions older than this are sold (time-based exit)

	VolatilityThreshold float64 // recorded as a caution, never decisive alone
	VolumeDropPct       float64 // volume decline recorded as a reason

	MaxDrawdownPct   float64 // portfolio drawdown beyond this forces SELL
	ConcentrationPct float64 // position share of portfolio forcing PARTIAL_SELL

	MinConfidence            int     // baseline confidence a sell signal needs
	ConfidenceBoostThreshold float64 // profit %% under which the bar is raised
	ConfidenceBoostIncrement int     // how much the bar is raised
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MinProfitPct:             2,
		MaxLossPct:               10,
		MinHold:                  30 * time.Minute,
		MaxHold:                  72 * time.Hour,
		VolatilityThreshold:      5,
		VolumeDropPct:            40,
		MaxDrawdownPct:           15,
		ConcentrationPct:         20,
		MinConfidence:            60,
		ConfidenceBoostThreshold: 5,
		ConfidenceBoostIncrement: 20,
	}
}

// MarketContext is an optional market snapshot; nil means the market
// analysis has no opinion.
type MarketContext struct {
	Volatility      float64 // e.g. stddev of recent log returns, in %
	VolumeChangePct float64 // negative = volume dropped
	Trend           string  // TrendBullish | TrendBearish | TrendNeutral
}

// PortfolioContext is an optional portfolio snapshot; nil means the risk
// analysis has no opinion.
type PortfolioContext struct {
	DrawdownPct      float64 // decline from portfolio peak, in %
	ConcentrationPct float64 // this position's share of open exposure, in %
}

// Evaluation is the engine's output: the verdict, every reason collected
// across sub-analyses in run order, and annotations the volume ladder and
// logging need.
type Evaluation struct {
	Decision         Decision
	Reasons          []string
	ProfitPct        float64
	HitTargetOrdinal int // 1-based ordinal of the reached target, 0 = none
}

// vote is one sub-analysis opinion. A HOLD with no reasons means "no
// opinion" and carries no weight in combination.
type vote struct {
	decision Decision
	reasons  []string
}
