// Package takeprofit picks exactly one take-profit target to attach to a
// buy order, either via a model-assisted ranking or a static positional
// heuristic.
package takeprofit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"signal-trader/internal/signal"
)

// Selection is the chosen target plus an auditable reasoning tag.
type Selection struct {
	Price     float64
	Index     int
	Reasoning string
}

// Selector resolves one target from a signal's ordered target list. Only
// called for BUY signals with a non-empty list; persisting the choice is the
// orchestrator's responsibility.
type Selector struct {
	llm     signal.Completer   // nil disables the model mode
	prompts signal.PromptStore // nil falls back to the built-in prompt
}

// NewSelector builds a selector; pass a nil completer for static-only mode.
func NewSelector(llm signal.Completer, prompts signal.PromptStore) *Selector {
	return &Selector{llm: llm, prompts: prompts}
}

const fallbackSelectorPrompt = `You are a take-profit selection assistant for a %s %s position.
Entry price: %s. Stop loss: %s. Take-profit targets (ordered): %s.
Pick exactly one target to attach to the order. Respond with strict JSON only:
{"reasoning":"...","chosen_target_index":0,"chosen_target_value":0}`

type modelChoice struct {
	Reasoning string   `json:"reasoning"`
	Index     *int     `json:"chosen_target_index"`
	Value     *float64 `json:"chosen_target_value"`
}

// Select picks one target. The model mode degrades to the static heuristic
// on any failure or invalid output; the reasoning tag records which path
// produced the choice.
func (s *Selector) Select(ctx context.Context, sig *signal.Signal) Selection {
	if s.llm != nil {
		if sel, err := s.selectWithModel(ctx, sig); err == nil {
			return sel
		} else {
			log.Printf("takeprofit: model selection failed, using static heuristic: %v", err)
		}
	}
	return staticSelect(sig.Targets)
}

func (s *Selector) selectWithModel(ctx context.Context, sig *signal.Signal) (Selection, error) {
	tmpl := fallbackSelectorPrompt
	if s.prompts != nil {
		if t, err := s.prompts.GetPromptTemplate(ctx, "take_profit_selector"); err == nil {
			tmpl = t
		}
	}

	entry := "unknown"
	if v, ok := sig.Entry(); ok {
		entry = fmt.Sprintf("%g", v)
	}
	stop := "unknown"
	if sig.StopLoss != nil {
		stop = fmt.Sprintf("%g", *sig.StopLoss)
	}
	targets := make([]string, len(sig.Targets))
	for i, t := range sig.Targets {
		targets[i] = fmt.Sprintf("%g", t)
	}

	prompt := fmt.Sprintf(tmpl,
		sig.Base+"/"+sig.Quote, sig.Action, entry, stop, strings.Join(targets, ", "))

	raw, err := s.llm.Complete(ctx, prompt, "")
	if err != nil {
		return Selection{}, err
	}

	var choice modelChoice
	if err := json.Unmarshal([]byte(signal.StripCodeFence(raw)), &choice); err != nil {
		return Selection{}, fmt.Errorf("model output is not valid JSON: %w", err)
	}
	if choice.Index == nil || choice.Value == nil {
		return Selection{}, fmt.Errorf("model output missing index or value")
	}
	idx := *choice.Index
	if idx < 0 || idx >= len(sig.Targets) {
		return Selection{}, fmt.Errorf("model chose out-of-range index %d (targets=%d)", idx, len(sig.Targets))
	}

	return Selection{
		Price:     sig.Targets[idx],
		Index:     idx,
		Reasoning: "llm: " + choice.Reasoning,
	}, nil
}

// staticSelect is the positional heuristic: with three or more targets take
// the third-from-last (leaves headroom while realizing most of the move),
// otherwise the last one.
func staticSelect(targets []float64) Selection {
	if len(targets) >= 3 {
		idx := len(targets) - 3
		return Selection{
			Price:     targets[idx],
			Index:     idx,
			Reasoning: "static: third-from-last target",
		}
	}
	idx := len(targets) - 1
	return Selection{
		Price:     targets[idx],
		Index:     idx,
		Reasoning: "static: last target",
	}
}
