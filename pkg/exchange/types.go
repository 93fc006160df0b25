package exchange

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientBalance aborts an order before any state change.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnsupportedOrder is returned for order shapes a trader cannot place.
	ErrUnsupportedOrder = errors.New("unsupported order")
)

// Order types.
const (
	OrderMarket = "market"
	OrderLimit  = "limit"
)

// OrderRequest describes one order to place.
type OrderRequest struct {
	Symbol   string // exchange symbol, e.g. XBTUSDT
	Base     string
	Quote    string
	Side     string // "buy" | "sell"
	Type     string // OrderMarket | OrderLimit
	Volume   float64
	Price    float64 // required for limit orders
	Channel  string  // wallet scope for simulated execution
	Leverage int     // 0 = spot
}

// OrderResult is what a trader reports back after placement.
type OrderResult struct {
	Status string // trade status to record, e.g. "open" or "simulated_open"
	Price  float64
	Base   string
	Quote  string
	TxID   string
}

// Trader is the exchange collaborator the pipeline depends on. Transport and
// auth failures surface as errors; the orchestrator is the boundary that
// catches them.
type Trader interface {
	GetBalance(ctx context.Context, channel string) (map[string]float64, error)
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)
	ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// PriceSource is the read-only slice of Trader that decision components need.
type PriceSource interface {
	GetMarketPrice(ctx context.Context, symbol string) (float64, error)
}
