// Package orchestrator turns an approved trading decision into an exchange
// order plus its bookkeeping. It is the only component that calls the trader
// and writes trade rows, so every failure mode funnels through one place.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"signal-trader/internal/events"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchange"
)

// Store is the slice of persistence the orchestrator needs.
type Store interface {
	AddTrade(ctx context.Context, t db.Trade) error
	CloseTrade(ctx context.Context, id string, closePrice float64) (bool, error)
}

// Request describes one order to place. Price is the limit price and must be
// positive for limit orders; market orders leave it zero and take the fill
// price from the exchange.
type Request struct {
	Channel       string
	Side          string // db.SideBuy | db.SideSell
	Base          string
	Quote         string
	Symbol        string // exchange pair name, e.g. XBTUSDT
	OrderType     string // exchange.OrderMarket | exchange.OrderLimit
	Volume        float64
	Price         float64
	Leverage      int
	TakeProfit    float64
	TakeProfitIdx int // -1 when no target was selected
	StopLoss      float64
	BuyTradeID    string  // for sells: the open buy trade being closed
	BuyPrice      float64 // for sells: entry price, used for P&L
	LLMDecisionID string
}

// Outcome reports a successful execution. Closed is set when a sell also
// closed its originating buy trade.
type Outcome struct {
	Trade     *db.Trade
	Closed    bool
	ProfitPct float64
}

// Orchestrator executes orders against a trader and records them.
type Orchestrator struct {
	store Store
	bus   *events.Bus
}

// New builds an orchestrator. bus may be nil when nothing listens.
func New(store Store, bus *events.Bus) *Orchestrator {
	return &Orchestrator{store: store, bus: bus}
}

// Execute places the order and records the trade. It returns nil on every
// failure; callers treat nil as "nothing happened" and never see a panic or
// a partial outcome.
func (o *Orchestrator) Execute(ctx context.Context, trader exchange.Trader, req Request) (out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("orchestrator: panic during %s %s/%s: %v", req.Side, req.Base, req.Quote, r)
			out = nil
		}
	}()

	// Pre-flight: reject malformed requests before touching the exchange.
	if req.Volume <= 0 {
		log.Printf("orchestrator: rejected %s %s/%s: non-positive volume %g", req.Side, req.Base, req.Quote, req.Volume)
		return nil
	}
	if req.OrderType == exchange.OrderLimit && req.Price <= 0 {
		log.Printf("orchestrator: rejected %s %s/%s: limit order without a price", req.Side, req.Base, req.Quote)
		return nil
	}

	res, err := trader.ExecuteOrder(ctx, exchange.OrderRequest{
		Symbol:   req.Symbol,
		Base:     req.Base,
		Quote:    req.Quote,
		Side:     req.Side,
		Type:     req.OrderType,
		Volume:   req.Volume,
		Price:    req.Price,
		Channel:  req.Channel,
		Leverage: req.Leverage,
	})
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrInsufficientBalance):
			log.Printf("orchestrator: %s %s/%s not placed: %v", req.Side, req.Base, req.Quote, err)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			log.Printf("orchestrator: %s %s/%s aborted: %v", req.Side, req.Base, req.Quote, err)
		default:
			log.Printf("orchestrator: %s %s/%s failed at exchange: %v", req.Side, req.Base, req.Quote, err)
		}
		return nil
	}

	trade := &db.Trade{
		ID:            uuid.NewString(),
		Channel:       req.Channel,
		Base:          req.Base,
		Quote:         req.Quote,
		Side:          req.Side,
		Volume:        req.Volume,
		Price:         res.Price,
		OrderType:     req.OrderType,
		Status:        res.Status,
		TakeProfit:    req.TakeProfit,
		StopLoss:      req.StopLoss,
		TakeProfitIdx: req.TakeProfitIdx,
		Leverage:      req.Leverage,
		BuyTradeID:    req.BuyTradeID,
		LLMDecisionID: req.LLMDecisionID,
		CreatedAt:     time.Now().UTC(),
	}
	if trade.Status == "" {
		trade.Status = db.StatusOpen
	}

	if err := o.store.AddTrade(ctx, *trade); err != nil {
		log.Printf("orchestrator: order placed but trade %s not recorded: %v", trade.ID, err)
		return nil
	}
	log.Printf("orchestrator: recorded %s %s %s/%s volume=%g price=%g status=%s",
		trade.Side, trade.ID, trade.Base, trade.Quote, trade.Volume, trade.Price, trade.Status)

	out = &Outcome{Trade: trade}
	o.publish(events.EventTradeExecuted, events.TradeEvent{
		TradeID:    trade.ID,
		Channel:    trade.Channel,
		Side:       trade.Side,
		Base:       trade.Base,
		Quote:      trade.Quote,
		Volume:     trade.Volume,
		Price:      trade.Price,
		Status:     trade.Status,
		BuyTradeID: trade.BuyTradeID,
		At:         trade.CreatedAt,
	})

	if req.Side == db.SideSell && req.BuyTradeID != "" {
		out.Closed = o.closeBuy(ctx, req, res.Price, out)
	}
	return out
}

// closeBuy marks the originating buy trade closed. The compare-and-set in
// the store makes a second close of the same trade a no-op, so duplicate
// sell signals cannot double-close a position.
func (o *Orchestrator) closeBuy(ctx context.Context, req Request, fillPrice float64, out *Outcome) bool {
	if fillPrice <= 0 {
		log.Printf("orchestrator: closing buy %s without a fill price, P&L unavailable", req.BuyTradeID)
	}

	closed, err := o.store.CloseTrade(ctx, req.BuyTradeID, fillPrice)
	if err != nil {
		log.Printf("orchestrator: close of buy %s failed: %v", req.BuyTradeID, err)
		return false
	}
	if !closed {
		log.Printf("orchestrator: buy %s was already closed, skipping", req.BuyTradeID)
		return false
	}

	if req.BuyPrice > 0 && fillPrice > 0 {
		out.ProfitPct = (fillPrice - req.BuyPrice) / req.BuyPrice * 100
		log.Printf("orchestrator: closed buy %s at %g, P&L %.2f%%", req.BuyTradeID, fillPrice, out.ProfitPct)
	}

	o.publish(events.EventTradeClosed, events.TradeEvent{
		TradeID:    req.BuyTradeID,
		Channel:    req.Channel,
		Side:       db.SideBuy,
		Base:       req.Base,
		Quote:      req.Quote,
		Price:      fillPrice,
		Status:     db.StatusClosed,
		ProfitPct:  out.ProfitPct,
		BuyTradeID: req.BuyTradeID,
		At:         time.Now().UTC(),
	})
	return true
}

func (o *Orchestrator) publish(e events.Event, payload any) {
	if o.bus != nil {
		o.bus.Publish(e, payload)
	}
}
