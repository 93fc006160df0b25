package db

import (
	"database/sql"
	"time"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade statuses. A buy trade is open (or simulated_open in dry-run) until a
// matching sell closes it; submitted/failed are terminal states for orders
// that never produced a position.
const (
	StatusOpen          = "open"
	StatusSimulatedOpen = "simulated_open"
	StatusClosed        = "closed"
	StatusSubmitted     = "submitted"
	StatusFailed        = "failed"
)

// Trade is one executed (or simulated) order.
type Trade struct {
	ID            string
	Channel       string
	Base          string
	Quote         string
	Side          string
	Volume        float64
	Price         float64
	OrderType     string
	Status        string
	TakeProfit    float64 // 0 = none
	StopLoss      float64 // 0 = none
	TakeProfitIdx int     // index into the signal's target list, -1 = none
	Leverage      int     // 0 = spot
	BuyTradeID    string  // for sells: the buy trade this sell closes
	LLMDecisionID string  // optional link to the llm_decisions row
	ClosePrice    float64 // set when the trade is closed
	CreatedAt     time.Time
	ClosedAt      sql.NullTime
}

// IsOpen reports whether the trade still holds a position.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen || t.Status == StatusSimulatedOpen
}

// WalletBalance is a per-(channel, currency) balance row. Channel may be
// empty for the global wallet.
type WalletBalance struct {
	Channel   string
	Currency  string
	Balance   float64
	UpdatedAt time.Time
}

// LLMDecision records one model call made by a decision component, so the
// choice stays auditable after the fact.
type LLMDecision struct {
	ID        string
	Kind      string // "signal_parse" | "take_profit"
	Prompt    string
	Response  string
	Reasoning string
	CreatedAt time.Time
}
