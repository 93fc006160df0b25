package takeprofit

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"signal-trader/internal/signal"
)

type fakeCompleter struct {
	out string
	err error
}

func (f *fakeCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	return f.out, f.err
}

func buySignal(targets ...float64) *signal.Signal {
	return &signal.Signal{
		Action:  signal.ActionBuy,
		Base:    "BTC",
		Quote:   "USDT",
		Targets: targets,
		Channel: "alpha",
	}
}

func TestStaticSelection(t *testing.T) {
	cases := []struct {
		name      string
		targets   []float64
		wantIdx   int
		wantPrice float64
	}{
		{"single target", []float64{66000}, 0, 66000},
		{"two targets", []float64{66000, 67000}, 1, 67000},
		{"three targets", []float64{66000, 67000, 68000}, 0, 66000},
		{"five targets", []float64{66, 67, 68, 69, 70}, 2, 68},
	}

	s := NewSelector(nil, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := s.Select(context.Background(), buySignal(tc.targets...))
			if sel.Index != tc.wantIdx || sel.Price != tc.wantPrice {
				t.Errorf("got index=%d price=%g, want index=%d price=%g",
					sel.Index, sel.Price, tc.wantIdx, tc.wantPrice)
			}
			if !strings.HasPrefix(sel.Reasoning, "static:") {
				t.Errorf("Reasoning = %q, want static tag", sel.Reasoning)
			}
		})
	}
}

func TestModelSelection(t *testing.T) {
	llm := &fakeCompleter{out: `{"reasoning":"momentum favors the second target","chosen_target_index":1,"chosen_target_value":67000}`}
	s := NewSelector(llm, nil)

	sel := s.Select(context.Background(), buySignal(66000, 67000, 68000))
	if sel.Index != 1 || sel.Price != 67000 {
		t.Errorf("got index=%d price=%g, want index=1 price=67000", sel.Index, sel.Price)
	}
	if !strings.HasPrefix(sel.Reasoning, "llm:") {
		t.Errorf("Reasoning = %q, want llm tag", sel.Reasoning)
	}
}

func TestModelFailureFallsBackToStatic(t *testing.T) {
	cases := []struct {
		name string
		llm  *fakeCompleter
	}{
		{"transport error", &fakeCompleter{err: fmt.Errorf("api: timeout")}},
		{"invalid json", &fakeCompleter{out: "definitely take the moon target"}},
		{"out of range index", &fakeCompleter{out: `{"reasoning":"x","chosen_target_index":9,"chosen_target_value":1}`}},
		{"missing fields", &fakeCompleter{out: `{"reasoning":"x"}`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSelector(tc.llm, nil)
			sel := s.Select(context.Background(), buySignal(66000, 67000, 68000))
			if sel.Index != 0 || sel.Price != 66000 {
				t.Errorf("got index=%d price=%g, want static index=0 price=66000", sel.Index, sel.Price)
			}
			if !strings.HasPrefix(sel.Reasoning, "static:") {
				t.Errorf("Reasoning = %q, want static tag", sel.Reasoning)
			}
		})
	}
}
