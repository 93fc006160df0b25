// Package selldecision arbitrates whether an open position should be sold
// when a sell signal arrives or a monitor cycle re-evaluates it. The engine
// runs a set of independent sub-analyses and combines their votes; no single
// advisory observation can force a sale on its own.
package selldecision

import (
	"fmt"
	"log"
	"time"

	"signal-trader/internal/signal"
	"signal-trader/pkg/db"
)

// Engine evaluates sell decisions against configured thresholds.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New builds an engine. Zero-valued thresholds are replaced with defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MinProfitPct == 0 {
		cfg.MinProfitPct = def.MinProfitPct
	}
	if cfg.MaxLossPct == 0 {
		cfg.MaxLossPct = def.MaxLossPct
	}
	if cfg.MinHold == 0 {
		cfg.MinHold = def.MinHold
	}
	if cfg.MaxHold == 0 {
		cfg.MaxHold = def.MaxHold
	}
	if cfg.VolatilityThreshold == 0 {
		cfg.VolatilityThreshold = def.VolatilityThreshold
	}
	if cfg.VolumeDropPct == 0 {
		cfg.VolumeDropPct = def.VolumeDropPct
	}
	if cfg.MaxDrawdownPct == 0 {
		cfg.MaxDrawdownPct = def.MaxDrawdownPct
	}
	if cfg.ConcentrationPct == 0 {
		cfg.ConcentrationPct = def.ConcentrationPct
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.ConfidenceBoostThreshold == 0 {
		cfg.ConfidenceBoostThreshold = def.ConfidenceBoostThreshold
	}
	if cfg.ConfidenceBoostIncrement == 0 {
		cfg.ConfidenceBoostIncrement = def.ConfidenceBoostIncrement
	}
	return &Engine{cfg: cfg, now: time.Now}
}

// ShouldSell produces the final verdict for a position. sig may carry the
// triggering sell signal's confidence and targets; buy is the open buy trade
// being considered; mkt and pf are optional context snapshots.
func (e *Engine) ShouldSell(sig *signal.Signal, buy *db.Trade, currentPrice float64, mkt *MarketContext, pf *PortfolioContext) Evaluation {
	// Preconditions: without a position or a live price there is nothing to
	// decide on.
	if buy == nil || !buy.IsOpen() {
		return Evaluation{Decision: DecisionBlock, Reasons: []string{"no open position"}}
	}
	if currentPrice <= 0 || buy.Price <= 0 {
		return Evaluation{Decision: DecisionBlock, Reasons: []string{"no valid market price"}}
	}

	profitPct := (currentPrice - buy.Price) / buy.Price * 100

	// Loss guard: losing positions are never sold by this engine unless the
	// loss has blown through the stop-loss threshold.
	if profitPct <= 0 {
		if -profitPct > e.cfg.MaxLossPct {
			return Evaluation{
				Decision:  DecisionSell,
				Reasons:   []string{fmt.Sprintf("stop-loss: down %.2f%% exceeds max loss %.2f%%", -profitPct, e.cfg.MaxLossPct)},
				ProfitPct: profitPct,
			}
		}
		return Evaluation{
			Decision:  DecisionBlock,
			Reasons:   []string{fmt.Sprintf("position at %.2f%%, selling at a loss is blocked", profitPct)},
			ProfitPct: profitPct,
		}
	}

	held := e.now().Sub(buy.CreatedAt)
	targets := sellTargets(sig, buy)
	hitOrdinal := hitTarget(targets, currentPrice)

	votes := []vote{
		e.analyzeProfit(profitPct, hitOrdinal, len(targets)),
		e.analyzeTime(held),
		e.analyzeMarket(mkt),
		e.analyzeRisk(pf),
		e.analyzeConfidence(sig, profitPct),
	}

	eval := combine(votes)
	eval.ProfitPct = profitPct
	eval.HitTargetOrdinal = hitOrdinal

	log.Printf("selldecision: %s %s/%s profit=%.2f%% held=%s hit_target=%d -> %s (%d reasons)",
		buy.Channel, buy.Base, buy.Quote, profitPct, held.Truncate(time.Minute), hitOrdinal, eval.Decision, len(eval.Reasons))
	return eval
}

// analyzeProfit votes on realized gain against the configured floor and the
// signal's target ladder.
func (e *Engine) analyzeProfit(profitPct float64, hitOrdinal, targetCount int) vote {
	if profitPct < e.cfg.MinProfitPct {
		return vote{
			decision: DecisionHold,
			reasons:  []string{fmt.Sprintf("insufficient profit %.2f%% (min %.2f%%)", profitPct, e.cfg.MinProfitPct)},
		}
	}
	if hitOrdinal > 0 {
		if hitOrdinal >= targetCount {
			return vote{
				decision: DecisionSell,
				reasons:  []string{fmt.Sprintf("final target %d reached", hitOrdinal)},
			}
		}
		return vote{
			decision: DecisionPartialSell,
			reasons:  []string{fmt.Sprintf("target %d of %d reached", hitOrdinal, targetCount)},
		}
	}
	if profitPct > 2*e.cfg.MinProfitPct {
		return vote{
			decision: DecisionSell,
			reasons:  []string{fmt.Sprintf("profit %.2f%% well above minimum", profitPct)},
		}
	}
	return vote{decision: DecisionHold}
}

// analyzeTime votes on position age.
func (e *Engine) analyzeTime(held time.Duration) vote {
	if held < e.cfg.MinHold {
		return vote{
			decision: DecisionHold,
			reasons:  []string{fmt.Sprintf("held %s, below minimum hold %s", held.Truncate(time.Minute), e.cfg.MinHold)},
		}
	}
	if held > e.cfg.MaxHold {
		return vote{
			decision: DecisionSell,
			reasons:  []string{fmt.Sprintf("time-based exit after %s (max hold %s)", held.Truncate(time.Hour), e.cfg.MaxHold)},
		}
	}
	return vote{decision: DecisionHold}
}

// analyzeMarket votes on market conditions. Elevated volatility is recorded
// as a caution but is never decisive by itself.
func (e *Engine) analyzeMarket(mkt *MarketContext) vote {
	if mkt == nil {
		return vote{decision: DecisionHold}
	}
	v := vote{decision: DecisionHold}
	if mkt.Volatility > e.cfg.VolatilityThreshold {
		v.reasons = append(v.reasons, fmt.Sprintf("elevated volatility %.2f%%", mkt.Volatility))
	}
	if mkt.VolumeChangePct < -e.cfg.VolumeDropPct {
		v.reasons = append(v.reasons, fmt.Sprintf("volume down %.1f%%", -mkt.VolumeChangePct))
	}
	if mkt.Trend == TrendBearish {
		v.decision = DecisionSell
		v.reasons = append(v.reasons, "bearish trend")
	}
	return v
}

// analyzeRisk votes on portfolio exposure.
func (e *Engine) analyzeRisk(pf *PortfolioContext) vote {
	if pf == nil {
		return vote{decision: DecisionHold}
	}
	if pf.DrawdownPct > e.cfg.MaxDrawdownPct {
		return vote{
			decision: DecisionSell,
			reasons:  []string{fmt.Sprintf("risk management: portfolio drawdown %.2f%% exceeds %.2f%%", pf.DrawdownPct, e.cfg.MaxDrawdownPct)},
		}
	}
	if pf.ConcentrationPct > e.cfg.ConcentrationPct {
		return vote{
			decision: DecisionPartialSell,
			reasons:  []string{fmt.Sprintf("position is %.1f%% of open exposure", pf.ConcentrationPct)},
		}
	}
	return vote{decision: DecisionHold}
}

// analyzeConfidence votes on the sell signal's own confidence. The bar is
// raised when profit is thin, so a weak signal cannot close a barely
// profitable position.
func (e *Engine) analyzeConfidence(sig *signal.Signal, profitPct float64) vote {
	if sig == nil {
		return vote{decision: DecisionHold}
	}
	required := e.cfg.MinConfidence
	if profitPct < e.cfg.ConfidenceBoostThreshold {
		required += e.cfg.ConfidenceBoostIncrement
	}
	if sig.Confidence < required {
		return vote{
			decision: DecisionHold,
			reasons:  []string{fmt.Sprintf("signal confidence %d below required %d", sig.Confidence, required)},
		}
	}
	return vote{
		decision: DecisionSell,
		reasons:  []string{fmt.Sprintf("signal confidence %d meets required %d", sig.Confidence, required)},
	}
}

// combine applies the arbitration rule: BLOCK wins outright, two or more
// SELL votes make a SELL, any PARTIAL_SELL without a BLOCK makes a
// PARTIAL_SELL, anything else holds. Reasons are concatenated in the order
// the sub-analyses ran.
func combine(votes []vote) Evaluation {
	var eval Evaluation
	sells, partials, blocks := 0, 0, 0
	for _, v := range votes {
		eval.Reasons = append(eval.Reasons, v.reasons...)
		switch v.decision {
		case DecisionSell:
			sells++
		case DecisionPartialSell:
			partials++
		case DecisionBlock:
			blocks++
		}
	}
	switch {
	case blocks > 0:
		eval.Decision = DecisionBlock
	case sells >= 2:
		eval.Decision = DecisionSell
	case partials >= 1:
		eval.Decision = DecisionPartialSell
	default:
		eval.Decision = DecisionHold
	}
	return eval
}

// SellVolume translates a verdict into the volume to sell. Partial sales
// scale with how deep into the target ladder the price has moved; an
// unknown ordinal liquidates the position.
func SellVolume(eval Evaluation, available float64) float64 {
	switch eval.Decision {
	case DecisionSell:
		return available
	case DecisionPartialSell:
		switch eval.HitTargetOrdinal {
		case 1:
			return available * 0.25
		case 2:
			return available * 0.50
		case 3:
			return available * 0.75
		default:
			return available
		}
	default:
		return 0
	}
}

// sellTargets resolves the target ladder: the sell signal's own targets
// when present, otherwise the take-profit recorded on the buy trade.
func sellTargets(sig *signal.Signal, buy *db.Trade) []float64 {
	if sig != nil && len(sig.Targets) > 0 {
		return sig.Targets
	}
	if buy.TakeProfit > 0 {
		return []float64{buy.TakeProfit}
	}
	return nil
}

// hitTarget returns the 1-based ordinal of the highest target the price has
// reached, or 0 when none has.
func hitTarget(targets []float64, price float64) int {
	hit := 0
	for i, t := range targets {
		if price >= t {
			hit = i + 1
		}
	}
	return hit
}
