// Package pipeline drives a channel message end to end: parse, gate,
// resolve, decide and execute. One handler instance processes messages
// sequentially; the monitor re-evaluates open positions between messages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"signal-trader/internal/events"
	"signal-trader/internal/orchestrator"
	"signal-trader/internal/selldecision"
	"signal-trader/internal/signal"
	"signal-trader/internal/takeprofit"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchange"
)

// Sizing modes.
const (
	SizingFixedUSD = "fixed"
	SizingPercent  = "percent"
)

// Config carries the pipeline's trading policy.
type Config struct {
	MinConfidence     int
	MaxDailyTrades    int
	SizingMode        string
	OrderSizeUSD      float64
	OrderSizePct      float64
	DefaultLeverage   int
	SellEngineEnabled bool
}

// PairResolver maps signal currencies onto tradable pairs.
type PairResolver interface {
	Resolve(ctx context.Context, base, quote string) (exchange.PairInfo, error)
}

// MarketSource supplies the sell engine's market snapshot. Nil snapshots
// mean no opinion.
type MarketSource interface {
	Snapshot(ctx context.Context, symbol string) *selldecision.MarketContext
}

// Store is the persistence slice the pipeline needs beyond the
// orchestrator's own bookkeeping.
type Store interface {
	CountBuysSince(ctx context.Context, cutoff time.Time) (int, error)
	GetLastOpenBuyTrade(ctx context.Context, channel, base, quote string) (*db.Trade, error)
	ListOpenTrades(ctx context.Context) ([]db.Trade, error)
	AddLLMDecision(ctx context.Context, dec db.LLMDecision) error
}

// Handler processes raw channel messages.
type Handler struct {
	cfg      Config
	registry *signal.Registry
	resolver PairResolver
	store    Store
	trader   exchange.Trader
	selector *takeprofit.Selector
	engine   *selldecision.Engine
	orch     *orchestrator.Orchestrator
	mkt      MarketSource // nil disables market context
	bus      *events.Bus
	tracker  *portfolioTracker
}

// NewHandler wires the pipeline together.
func NewHandler(cfg Config, registry *signal.Registry, resolver PairResolver, store Store,
	trader exchange.Trader, selector *takeprofit.Selector, engine *selldecision.Engine,
	orch *orchestrator.Orchestrator, mkt MarketSource, bus *events.Bus) *Handler {
	if cfg.SizingMode == "" {
		cfg.SizingMode = SizingFixedUSD
	}
	return &Handler{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		store:    store,
		trader:   trader,
		selector: selector,
		engine:   engine,
		orch:     orch,
		mkt:      mkt,
		bus:      bus,
		tracker:  &portfolioTracker{},
	}
}

// HandleMessage runs one message through the pipeline. Every failure is
// logged and swallowed; a bad message never takes the consumer loop down.
func (h *Handler) HandleMessage(ctx context.Context, text, channel string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pipeline: %s: panic while handling message: %v", channel, r)
		}
	}()

	sig, err := h.registry.Parse(ctx, text, channel)
	if err != nil {
		if errors.Is(err, signal.ErrNoSignal) {
			log.Printf("pipeline: %s: not a signal, ignoring", channel)
		} else {
			log.Printf("pipeline: %s: parse failed: %v", channel, err)
		}
		return
	}

	h.publish(events.EventSignalParsed, events.SignalEvent{
		Channel:    channel,
		Action:     string(sig.Action),
		Base:       sig.Base,
		Quote:      sig.Quote,
		Confidence: sig.Confidence,
		At:         time.Now().UTC(),
	})

	// Confidence gate runs before pair resolution so low-quality signals
	// never cost an exchange round trip.
	if sig.Confidence < h.cfg.MinConfidence {
		log.Printf("pipeline: %s: signal %s %s confidence %d below threshold %d, skipping",
			channel, sig.Action, sig.Base, sig.Confidence, h.cfg.MinConfidence)
		return
	}

	info, err := h.resolver.Resolve(ctx, sig.Base, sig.Quote)
	if err != nil {
		log.Printf("pipeline: %s: %s/%s not tradable: %v", channel, sig.Base, sig.Quote, err)
		return
	}
	base, quote, _ := strings.Cut(info.WSName, "/")

	switch sig.Action {
	case signal.ActionBuy:
		h.handleBuy(ctx, sig, info, base, quote)
	case signal.ActionSell:
		h.handleSell(ctx, sig, info, base, quote)
	}
}

func (h *Handler) handleBuy(ctx context.Context, sig *signal.Signal, info exchange.PairInfo, base, quote string) {
	if h.cfg.MaxDailyTrades > 0 {
		cutoff := time.Now().Add(-24 * time.Hour)
		count, err := h.store.CountBuysSince(ctx, cutoff)
		if err != nil {
			log.Printf("pipeline: %s: daily trade count unavailable, refusing buy: %v", sig.Channel, err)
			return
		}
		if count >= h.cfg.MaxDailyTrades {
			log.Printf("pipeline: %s: daily trade limit %d reached, skipping buy %s/%s",
				sig.Channel, h.cfg.MaxDailyTrades, base, quote)
			h.publish(events.EventRiskAlert, events.RiskEvent{
				Channel: sig.Channel,
				Kind:    "daily_trade_limit",
				Detail:  fmt.Sprintf("%d buys in the last 24h", count),
				At:      time.Now().UTC(),
			})
			return
		}
	}

	price, orderType := h.entryPrice(ctx, sig, info)
	if price <= 0 {
		log.Printf("pipeline: %s: no usable price for %s, skipping buy", sig.Channel, info.Symbol)
		return
	}

	volume, err := h.orderVolume(ctx, sig.Channel, quote, price)
	if err != nil {
		log.Printf("pipeline: %s: sizing failed for %s/%s: %v", sig.Channel, base, quote, err)
		return
	}

	takeProfit, tpIdx := 0.0, -1
	var decisionID string
	if len(sig.Targets) > 0 {
		sel := h.selector.Select(ctx, sig)
		takeProfit, tpIdx = sel.Price, sel.Index
		decisionID = h.recordDecision(ctx, "take_profit", sig, sel.Reasoning)
	}

	leverage := sig.Leverage
	if leverage == 0 {
		leverage = h.cfg.DefaultLeverage
	}
	stopLoss := 0.0
	if sig.StopLoss != nil {
		stopLoss = *sig.StopLoss
	}

	h.orch.Execute(ctx, h.trader, orchestrator.Request{
		Channel:       sig.Channel,
		Side:          db.SideBuy,
		Base:          base,
		Quote:         quote,
		Symbol:        info.Symbol,
		OrderType:     orderType,
		Volume:        volume,
		Price:         price,
		Leverage:      leverage,
		TakeProfit:    takeProfit,
		TakeProfitIdx: tpIdx,
		StopLoss:      stopLoss,
		LLMDecisionID: decisionID,
	})
}

func (h *Handler) handleSell(ctx context.Context, sig *signal.Signal, info exchange.PairInfo, base, quote string) {
	buy, err := h.store.GetLastOpenBuyTrade(ctx, sig.Channel, base, quote)
	if err != nil {
		log.Printf("pipeline: %s: open position lookup failed for %s/%s: %v", sig.Channel, base, quote, err)
		return
	}
	if buy == nil {
		log.Printf("pipeline: %s: sell signal for %s/%s but no open position", sig.Channel, base, quote)
		return
	}

	price, err := h.trader.GetMarketPrice(ctx, info.Symbol)
	if err != nil {
		log.Printf("pipeline: %s: no market price for %s: %v", sig.Channel, info.Symbol, err)
		return
	}

	volume := buy.Volume
	if h.cfg.SellEngineEnabled {
		var mkt *selldecision.MarketContext
		if h.mkt != nil {
			mkt = h.mkt.Snapshot(ctx, info.Symbol)
		}
		pf := h.portfolioContext(ctx, buy, price)

		eval := h.engine.ShouldSell(sig, buy, price, mkt, pf)
		h.publish(events.EventDecision, events.DecisionEvent{
			Channel:   sig.Channel,
			Base:      base,
			Quote:     quote,
			Decision:  string(eval.Decision),
			Reasons:   eval.Reasons,
			ProfitPct: eval.ProfitPct,
			At:        time.Now().UTC(),
		})

		switch eval.Decision {
		case selldecision.DecisionBlock:
			h.publish(events.EventRiskAlert, events.RiskEvent{
				Channel: sig.Channel,
				Kind:    "sell_blocked",
				Detail:  strings.Join(eval.Reasons, "; "),
				At:      time.Now().UTC(),
			})
			return
		case selldecision.DecisionHold:
			return
		}
		volume = selldecision.SellVolume(eval, buy.Volume)
		if volume <= 0 {
			return
		}
	} else if price <= buy.Price {
		// Without the engine only a plain profitability check stands
		// between a sell signal and execution.
		log.Printf("pipeline: %s: sell of %s/%s skipped, price %g not above entry %g",
			sig.Channel, base, quote, price, buy.Price)
		return
	}

	h.orch.Execute(ctx, h.trader, orchestrator.Request{
		Channel:    sig.Channel,
		Side:       db.SideSell,
		Base:       base,
		Quote:      quote,
		Symbol:     info.Symbol,
		OrderType:  exchange.OrderMarket,
		Volume:     volume,
		BuyTradeID: buy.ID,
		BuyPrice:   buy.Price,
	})
}

// entryPrice decides what the order costs: the signal's entry (or range
// midpoint) makes a limit order, otherwise a live ticker price backs a
// market order.
func (h *Handler) entryPrice(ctx context.Context, sig *signal.Signal, info exchange.PairInfo) (float64, string) {
	if v, ok := sig.Entry(); ok && v > 0 {
		return v, exchange.OrderLimit
	}
	price, err := h.trader.GetMarketPrice(ctx, info.Symbol)
	if err != nil {
		log.Printf("pipeline: %s: ticker lookup failed for %s: %v", sig.Channel, info.Symbol, err)
		return 0, exchange.OrderMarket
	}
	return price, exchange.OrderMarket
}

// orderVolume sizes the buy in base currency.
func (h *Handler) orderVolume(ctx context.Context, channel, quote string, price float64) (float64, error) {
	switch h.cfg.SizingMode {
	case SizingPercent:
		balances, err := h.trader.GetBalance(ctx, channel)
		if err != nil {
			return 0, err
		}
		quoteBalance := balances[quote]
		if quoteBalance <= 0 {
			return 0, fmt.Errorf("no %s balance to size against", quote)
		}
		return quoteBalance * h.cfg.OrderSizePct / 100 / price, nil
	default:
		return h.cfg.OrderSizeUSD / price, nil
	}
}

// recordDecision persists a model or heuristic reasoning trail and returns
// its id for the trade row.
func (h *Handler) recordDecision(ctx context.Context, kind string, sig *signal.Signal, reasoning string) string {
	dec := db.LLMDecision{
		ID:        uuid.NewString(),
		Kind:      kind,
		Prompt:    fmt.Sprintf("%s %s/%s targets=%v", sig.Action, sig.Base, sig.Quote, sig.Targets),
		Reasoning: reasoning,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AddLLMDecision(ctx, dec); err != nil {
		log.Printf("pipeline: decision audit write failed: %v", err)
		return ""
	}
	return dec.ID
}

func (h *Handler) publish(e events.Event, payload any) {
	if h.bus != nil {
		h.bus.Publish(e, payload)
	}
}
