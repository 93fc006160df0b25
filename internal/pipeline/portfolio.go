package pipeline

import (
	"context"
	"log"
	"sync"

	"signal-trader/internal/selldecision"
	"signal-trader/pkg/db"
)

// portfolioTracker remembers the highest portfolio value seen this run so
// drawdown can be measured against the peak rather than the entry.
type portfolioTracker struct {
	mu   sync.Mutex
	peak float64
}

// observe records a portfolio value and returns the drawdown from peak, in
// percent.
func (t *portfolioTracker) observe(value float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value > t.peak {
		t.peak = value
	}
	if t.peak <= 0 {
		return 0
	}
	return (t.peak - value) / t.peak * 100
}

// portfolioContext values the open book and derives drawdown plus this
// position's concentration. Positions other than the one under evaluation
// are valued at their entry price to avoid a ticker call per open trade.
func (h *Handler) portfolioContext(ctx context.Context, buy *db.Trade, currentPrice float64) *selldecision.PortfolioContext {
	open, err := h.store.ListOpenTrades(ctx)
	if err != nil {
		log.Printf("pipeline: open trade listing failed, no portfolio context: %v", err)
		return nil
	}

	var total, position float64
	for _, t := range open {
		if t.Side != db.SideBuy {
			continue
		}
		price := t.Price
		if t.ID == buy.ID {
			price = currentPrice
		}
		value := t.Volume * price
		total += value
		if t.ID == buy.ID {
			position = value
		}
	}
	if total <= 0 {
		return nil
	}

	return &selldecision.PortfolioContext{
		DrawdownPct:      h.tracker.observe(total),
		ConcentrationPct: position / total * 100,
	}
}
