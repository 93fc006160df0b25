package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Built-in fallback when the prompt store is unavailable. The stored
// template (name "signal_parser") normally wins so operators can tune it.
const fallbackParserPrompt = `You are a crypto trading signal parser. Extract a trading signal from the message below.
Respond with strict JSON only, no prose, using this exact shape:
{"action":"BUY|SELL","base_currency":"...","quote_currency":"...","entry_price":0,"entry_price_range":[0,0],"targets":[],"stop_loss":0,"leverage":0,"confidence":0}
Omit fields you cannot determine. confidence is an integer 0-100.`

type modelSignal struct {
	Action     string    `json:"action"`
	Base       string    `json:"base_currency"`
	Quote      string    `json:"quote_currency"`
	EntryPrice *float64  `json:"entry_price"`
	EntryRange []float64 `json:"entry_price_range"`
	Targets    []float64 `json:"targets"`
	StopLoss   *float64  `json:"stop_loss"`
	Leverage   int       `json:"leverage"`
	Confidence int       `json:"confidence"`
}

func (p *TextParser) parseWithModel(ctx context.Context, text string) (*Signal, error) {
	prompt := fallbackParserPrompt
	if p.prompts != nil {
		if tmpl, err := p.prompts.GetPromptTemplate(ctx, "signal_parser"); err == nil {
			prompt = tmpl
		}
	}

	raw, err := p.llm.Complete(ctx, prompt, text)
	if err != nil {
		return nil, err
	}

	var ms modelSignal
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &ms); err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}
	if ms.Action == "" {
		return nil, fmt.Errorf("%w: model output lacks action", ErrNoSignal)
	}

	sig := &Signal{
		Action:     ActionUnknown,
		Base:       strings.ToUpper(ms.Base),
		Quote:      strings.ToUpper(ms.Quote),
		EntryPrice: ms.EntryPrice,
		Targets:    ms.Targets,
		StopLoss:   ms.StopLoss,
		Leverage:   ms.Leverage,
		Confidence: ms.Confidence,
	}
	switch strings.ToUpper(ms.Action) {
	case "BUY", "LONG":
		sig.Action = ActionBuy
	case "SELL", "SHORT":
		sig.Action = ActionSell
	}
	if sig.Quote == "" {
		sig.Quote = p.opts.QuoteDefault
	}
	if len(ms.EntryRange) == 2 && (ms.EntryRange[0] != 0 || ms.EntryRange[1] != 0) {
		lo, hi := ms.EntryRange[0], ms.EntryRange[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		sig.EntryRange = &[2]float64{lo, hi}
	}
	if sig.Confidence <= 0 {
		sig.Confidence = llmThreshold
	}
	if sig.Confidence > maxConfidence {
		sig.Confidence = maxConfidence
	}
	return sig, nil
}

// StripCodeFence extracts the inner content when a model wraps its answer in
// a ``` fence (with or without a language tag). Plain text passes through.
func StripCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return strings.TrimSpace(s)
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		head := strings.TrimSpace(rest[:nl])
		if len(head) <= 8 && !strings.ContainsAny(head, "{[") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
