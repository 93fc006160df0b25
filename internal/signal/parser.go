package signal

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Confidence scoring: a base score plus a bonus per matched field group,
// capped at 100. Below llmThreshold the deterministic pass is considered
// inconclusive and the model pass runs.
const (
	baseConfidence = 40
	fieldBonus     = 15
	maxConfidence  = 100
	llmThreshold   = 85
)

const numPattern = `[0-9]+(?:\.[0-9]+)?`

var (
	buyRe      = regexp.MustCompile(`(?i)\b(?:long|buy)\b`)
	sellRe     = regexp.MustCompile(`(?i)\b(?:short|sell)\b`)
	pairRe     = regexp.MustCompile(`#?([A-Za-z0-9]{2,10})/([A-Za-z0-9]{2,10})\b`)
	hashtagRe  = regexp.MustCompile(`#([A-Za-z0-9]{2,10})\b`)
	leverageRe = regexp.MustCompile(`(?i)\b([0-9]{1,3})x\b`)
	numRe      = regexp.MustCompile(numPattern)
)

// Options tune a TextParser for one channel's message layout.
type Options struct {
	QuoteDefault string   // applied when a message names no quote currency
	EntryLabels  []string // synonyms preceding an entry price or range
	TargetLabels []string // synonyms preceding the take-profit list
	StopLabels   []string // synonyms preceding the stop loss
}

func (o *Options) applyDefaults() {
	if len(o.EntryLabels) == 0 {
		o.EntryLabels = []string{"entry", "buy zone", "entry zone"}
	}
	if len(o.TargetLabels) == 0 {
		o.TargetLabels = []string{"targets", "target", "tp", "take profit"}
	}
	if len(o.StopLabels) == 0 {
		o.StopLabels = []string{"sl", "stop loss", "stop-loss", "stoploss"}
	}
}

// TextParser is the default two-tier parser: a deterministic regex pass,
// then a model-assisted pass when the deterministic one is inconclusive.
type TextParser struct {
	opts    Options
	llm     Completer   // nil disables the model pass
	prompts PromptStore // nil falls back to the built-in prompt

	entryRangeRe *regexp.Regexp
	entryRe      *regexp.Regexp
	targetsRe    *regexp.Regexp
	stopRe       *regexp.Regexp
}

// NewTextParser compiles a parser for the given label synonyms.
func NewTextParser(opts Options, llm Completer, prompts PromptStore) *TextParser {
	opts.applyDefaults()

	p := &TextParser{opts: opts, llm: llm, prompts: prompts}
	p.entryRangeRe = labelRe(opts.EntryLabels, `(`+numPattern+`)\s*[-–]\s*(`+numPattern+`)`)
	p.entryRe = labelRe(opts.EntryLabels, `(`+numPattern+`)`)
	p.targetsRe = labelRe(opts.TargetLabels, `((?:`+numPattern+`\s*,\s*)*`+numPattern+`)`)
	p.stopRe = labelRe(opts.StopLabels, `(`+numPattern+`)`)
	return p
}

// labelRe builds "(?i)(?:label1|label2)[:\s]+<capture>" with longer labels
// tried first so "targets" wins over "target".
func labelRe(labels []string, capture string) *regexp.Regexp {
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	quoted := make([]string, len(sorted))
	for i, l := range sorted {
		quoted[i] = regexp.QuoteMeta(l)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)[:\s]+` + capture)
}

// Parse implements Parser.
func (p *TextParser) Parse(ctx context.Context, text, channel string) (*Signal, error) {
	det := p.parseDeterministic(text)
	det.Channel = channel

	if det.Usable() && det.Confidence >= llmThreshold {
		log.Printf("parser: %s: deterministic signal %s %s/%s confidence=%d",
			channel, det.Action, det.Base, det.Quote, det.Confidence)
		return det, nil
	}

	if p.llm != nil {
		sig, err := p.parseWithModel(ctx, text)
		if err == nil && sig.Usable() {
			sig.Channel = channel
			log.Printf("parser: %s: model signal %s %s/%s confidence=%d",
				channel, sig.Action, sig.Base, sig.Quote, sig.Confidence)
			return sig, nil
		}
		if err != nil {
			log.Printf("parser: %s: model pass failed, degrading: %v", channel, err)
		}
	}

	// Model pass unavailable or failed: the deterministic result stands if
	// it met the minimum validity rule.
	if det.Usable() {
		log.Printf("parser: %s: degraded to deterministic signal %s %s/%s confidence=%d",
			channel, det.Action, det.Base, det.Quote, det.Confidence)
		return det, nil
	}

	return nil, fmt.Errorf("%w: channel %s", ErrNoSignal, channel)
}

func (p *TextParser) parseDeterministic(text string) *Signal {
	sig := &Signal{Action: ActionUnknown, Quote: p.opts.QuoteDefault}
	score := baseConfidence

	switch {
	case buyRe.MatchString(text):
		sig.Action = ActionBuy
		score += fieldBonus
	case sellRe.MatchString(text) || strings.Contains(text, "Profit:"):
		sig.Action = ActionSell
		score += fieldBonus
	}

	if m := pairRe.FindStringSubmatch(text); m != nil {
		sig.Base = strings.ToUpper(m[1])
		sig.Quote = strings.ToUpper(m[2])
		score += fieldBonus
	} else if m := hashtagRe.FindStringSubmatch(text); m != nil {
		sig.Base = strings.ToUpper(m[1])
		score += fieldBonus
	}

	if m := leverageRe.FindStringSubmatch(text); m != nil {
		if lev, err := strconv.Atoi(m[1]); err == nil {
			sig.Leverage = lev
		}
	}

	if m := p.entryRangeRe.FindStringSubmatch(text); m != nil {
		a, aok := parseNum(m[1])
		b, bok := parseNum(m[2])
		if aok && bok {
			if a > b {
				a, b = b, a
			}
			sig.EntryRange = &[2]float64{a, b}
			score += fieldBonus
		}
	} else if m := p.entryRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseNum(m[1]); ok {
			sig.EntryPrice = &v
			score += fieldBonus
		}
	}

	if m := p.targetsRe.FindStringSubmatch(text); m != nil {
		for _, tok := range numRe.FindAllString(m[1], -1) {
			if v, ok := parseNum(tok); ok {
				sig.Targets = append(sig.Targets, v)
			}
		}
	}
	if m := p.stopRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseNum(m[1]); ok {
			sig.StopLoss = &v
		}
	}
	if len(sig.Targets) > 0 || sig.StopLoss != nil {
		score += fieldBonus
	}

	if score > maxConfidence {
		score = maxConfidence
	}
	sig.Confidence = score
	return sig
}

// parseNum parses a numeric token; malformed tokens are skipped rather than
// raising.
func parseNum(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
