package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"signal-trader/internal/events"
	"signal-trader/internal/orchestrator"
	"signal-trader/internal/selldecision"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchange"
)

// Monitor periodically re-evaluates every open position with the sell
// engine, so stop-losses and time-based exits fire without waiting for a
// channel message.
type Monitor struct {
	handler  *Handler
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor builds a monitor over the handler's dependencies.
func NewMonitor(handler *Handler, interval time.Duration) *Monitor {
	return &Monitor{handler: handler, interval: interval}
}

// Start launches the monitor loop. The first cycle runs after one interval.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		log.Printf("monitor: started, interval %s", m.interval)
		for {
			select {
			case <-ctx.Done():
				log.Printf("monitor: stopped")
				return
			case <-ticker.C:
				m.cycle(ctx)
			}
		}
	}()
}

// Stop signals the loop and waits for any in-flight cycle to finish.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: panic during cycle: %v", r)
		}
	}()

	open, err := m.handler.store.ListOpenTrades(ctx)
	if err != nil {
		log.Printf("monitor: open trade listing failed: %v", err)
		return
	}

	for _, t := range open {
		if ctx.Err() != nil {
			return
		}
		if t.Side != db.SideBuy {
			continue
		}
		m.evaluate(ctx, t)
	}
}

// evaluate runs the sell engine for one open buy with no triggering signal;
// only the position's own state and the market can force an exit here.
func (m *Monitor) evaluate(ctx context.Context, buy db.Trade) {
	h := m.handler

	info, err := h.resolver.Resolve(ctx, buy.Base, buy.Quote)
	if err != nil {
		log.Printf("monitor: %s/%s no longer resolvable: %v", buy.Base, buy.Quote, err)
		return
	}
	price, err := h.trader.GetMarketPrice(ctx, info.Symbol)
	if err != nil {
		log.Printf("monitor: no market price for %s: %v", info.Symbol, err)
		return
	}

	var mkt *selldecision.MarketContext
	if h.mkt != nil {
		mkt = h.mkt.Snapshot(ctx, info.Symbol)
	}
	pf := h.portfolioContext(ctx, &buy, price)

	eval := h.engine.ShouldSell(nil, &buy, price, mkt, pf)
	h.publish(events.EventDecision, events.DecisionEvent{
		Channel:   buy.Channel,
		Base:      buy.Base,
		Quote:     buy.Quote,
		Decision:  string(eval.Decision),
		Reasons:   eval.Reasons,
		ProfitPct: eval.ProfitPct,
		At:        time.Now().UTC(),
	})

	switch eval.Decision {
	case selldecision.DecisionSell, selldecision.DecisionPartialSell:
	default:
		return
	}

	volume := selldecision.SellVolume(eval, buy.Volume)
	if volume <= 0 {
		return
	}
	log.Printf("monitor: exiting %s %s/%s volume=%g: %s",
		buy.Channel, buy.Base, buy.Quote, volume, strings.Join(eval.Reasons, "; "))

	h.orch.Execute(ctx, h.trader, orchestrator.Request{
		Channel:    buy.Channel,
		Side:       db.SideSell,
		Base:       buy.Base,
		Quote:      buy.Quote,
		Symbol:     info.Symbol,
		OrderType:  exchange.OrderMarket,
		Volume:     volume,
		BuyTradeID: buy.ID,
		BuyPrice:   buy.Price,
	})
}
