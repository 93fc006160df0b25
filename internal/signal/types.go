// Package signal turns raw channel messages into structured trade signals.
package signal

import (
	"context"
	"errors"
)

// ErrNoSignal is returned when a message cannot be reduced to a usable
// signal. Callers drop the message and continue.
var ErrNoSignal = errors.New("no usable trading signal")

// Action is the trade direction a signal proposes.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionUnknown Action = "UNKNOWN"
)

// Signal is the parsed form of one message. Created per message, never
// mutated afterwards.
type Signal struct {
	Action     Action
	Base       string
	Quote      string // may be empty; defaults applied downstream
	EntryPrice *float64
	EntryRange *[2]float64 // [low, high], low <= high
	Targets    []float64
	StopLoss   *float64
	Leverage   int // futures only, 0 = spot
	Confidence int // 0-100
	Channel    string
}

// Usable reports whether the signal satisfies the minimum validity rule:
// a concrete action plus a base currency.
func (s *Signal) Usable() bool {
	return s != nil && (s.Action == ActionBuy || s.Action == ActionSell) && s.Base != ""
}

// Entry returns the point entry price: the explicit one when present,
// otherwise the arithmetic mean of the entry range.
func (s *Signal) Entry() (float64, bool) {
	if s.EntryPrice != nil {
		return *s.EntryPrice, true
	}
	if s.EntryRange != nil {
		return (s.EntryRange[0] + s.EntryRange[1]) / 2, true
	}
	return 0, false
}

// Parser extracts a signal from message text. Implementations must return
// an error wrapping ErrNoSignal rather than a partial/invalid signal.
type Parser interface {
	Parse(ctx context.Context, text, channel string) (*Signal, error)
}

// Completer is the injected text-completion capability, so tests can
// substitute canned JSON or simulated failures.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// PromptStore supplies stored prompt templates by name.
type PromptStore interface {
	GetPromptTemplate(ctx context.Context, name string) (string, error)
}
