// Package market condenses recent candle history into the snapshot the sell
// engine consumes: realized volatility, volume change and a coarse trend.
package market

import (
	"context"
	"log"
	"math"

	"signal-trader/internal/selldecision"
	"signal-trader/pkg/exchange"
)

// OHLCSource provides candle history for a symbol.
type OHLCSource interface {
	OHLC(ctx context.Context, symbol string, intervalMinutes, count int) ([]exchange.Candle, error)
}

const (
	candleInterval = 60 // minutes
	candleCount    = 48 // two days of hourly candles
)

// Provider builds market snapshots from exchange candles.
type Provider struct {
	source OHLCSource
}

// NewProvider wraps an OHLC source.
func NewProvider(source OHLCSource) *Provider {
	return &Provider{source: source}
}

// Snapshot fetches candles and derives the market context. It returns nil
// when history is unavailable or too short; the sell engine treats a nil
// context as "no market opinion" rather than an error.
func (p *Provider) Snapshot(ctx context.Context, symbol string) *selldecision.MarketContext {
	candles, err := p.source.OHLC(ctx, symbol, candleInterval, candleCount)
	if err != nil {
		log.Printf("market: %s: candle fetch failed: %v", symbol, err)
		return nil
	}
	if len(candles) < 8 {
		return nil
	}

	return &selldecision.MarketContext{
		Volatility:      volatilityPct(candles),
		VolumeChangePct: volumeChangePct(candles),
		Trend:           trend(candles),
	}
}

// volatilityPct is the standard deviation of close-to-close log returns,
// expressed in percent.
func volatilityPct(candles []exchange.Candle) float64 {
	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * 100
}

// volumeChangePct compares the most recent quarter of candles against the
// preceding quarter. Negative means volume is drying up.
func volumeChangePct(candles []exchange.Candle) float64 {
	n := len(candles)
	q := n / 4
	if q == 0 {
		return 0
	}

	var recent, prior float64
	for _, c := range candles[n-q:] {
		recent += c.Volume
	}
	for _, c := range candles[n-2*q : n-q] {
		prior += c.Volume
	}
	if prior <= 0 {
		return 0
	}
	return (recent - prior) / prior * 100
}

// trend compares the latest close against the close one quarter of the
// window ago, with a 1% dead band around neutral.
func trend(candles []exchange.Candle) string {
	n := len(candles)
	ref := candles[n-1-n/4].Close
	last := candles[n-1].Close
	if ref <= 0 {
		return selldecision.TrendNeutral
	}

	change := (last - ref) / ref * 100
	switch {
	case change > 1:
		return selldecision.TrendBullish
	case change < -1:
		return selldecision.TrendBearish
	default:
		return selldecision.TrendNeutral
	}
}
