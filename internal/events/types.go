package events

import "time"

// Event enumerates high-level topics inside the pipeline.
type Event string

const (
	EventSignalParsed  Event = "signal.parsed"
	EventTradeExecuted Event = "trade.executed"
	EventTradeClosed   Event = "trade.closed"
	EventDecision      Event = "decision"
	EventRiskAlert     Event = "risk_alert"
)

// SignalEvent is published after a message parses into a usable signal.
type SignalEvent struct {
	Channel    string    `json:"channel"`
	Action     string    `json:"action"`
	Base       string    `json:"base"`
	Quote      string    `json:"quote"`
	Confidence int       `json:"confidence"`
	At         time.Time `json:"at"`
}

// TradeEvent is published when an order is recorded or a position closed.
type TradeEvent struct {
	TradeID    string    `json:"trade_id"`
	Channel    string    `json:"channel"`
	Side       string    `json:"side"`
	Base       string    `json:"base"`
	Quote      string    `json:"quote"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Status     string    `json:"status"`
	ProfitPct  float64   `json:"profit_pct,omitempty"`
	BuyTradeID string    `json:"buy_trade_id,omitempty"`
	At         time.Time `json:"at"`
}

// DecisionEvent is published after the sell engine evaluates a position.
type DecisionEvent struct {
	Channel   string    `json:"channel"`
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Decision  string    `json:"decision"`
	Reasons   []string  `json:"reasons"`
	ProfitPct float64   `json:"profit_pct"`
	At        time.Time `json:"at"`
}

// RiskEvent is published when a guard blocks or forces an action.
type RiskEvent struct {
	Channel string    `json:"channel"`
	Kind    string    `json:"kind"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}
