package selldecision

import (
	"strings"
	"testing"
	"time"

	"signal-trader/internal/signal"
	"signal-trader/pkg/db"
)

func testEngine(cfg Config) *Engine {
	e := New(cfg)
	e.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return e
}

func openBuy(price float64, age time.Duration) *db.Trade {
	return &db.Trade{
		ID:        "buy-1",
		Channel:   "alpha",
		Base:      "XBT",
		Quote:     "USDT",
		Side:      db.SideBuy,
		Volume:    0.5,
		Price:     price,
		Status:    db.StatusOpen,
		CreatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func TestShouldSellPreconditions(t *testing.T) {
	e := testEngine(Config{})

	if got := e.ShouldSell(nil, nil, 100, nil, nil); got.Decision != DecisionBlock {
		t.Errorf("nil trade: got %s, want BLOCK", got.Decision)
	}

	closed := openBuy(100, time.Hour)
	closed.Status = db.StatusClosed
	if got := e.ShouldSell(nil, closed, 100, nil, nil); got.Decision != DecisionBlock {
		t.Errorf("closed trade: got %s, want BLOCK", got.Decision)
	}

	if got := e.ShouldSell(nil, openBuy(100, time.Hour), 0, nil, nil); got.Decision != DecisionBlock {
		t.Errorf("zero price: got %s, want BLOCK", got.Decision)
	}
}

func TestShouldSellLossGuard(t *testing.T) {
	e := testEngine(Config{MaxLossPct: 10})
	buy := openBuy(100, 2*time.Hour)

	// Moderate loss is blocked outright.
	got := e.ShouldSell(nil, buy, 95, nil, nil)
	if got.Decision != DecisionBlock {
		t.Fatalf("5%% loss: got %s, want BLOCK", got.Decision)
	}
	if got.ProfitPct != -5 {
		t.Errorf("ProfitPct = %g, want -5", got.ProfitPct)
	}

	// A loss beyond the threshold forces a stop-loss exit.
	got = e.ShouldSell(nil, buy, 85, nil, nil)
	if got.Decision != DecisionSell {
		t.Fatalf("15%% loss: got %s, want SELL", got.Decision)
	}
	if len(got.Reasons) == 0 || !strings.Contains(got.Reasons[0], "stop-loss") {
		t.Errorf("reasons = %v, want stop-loss reason", got.Reasons)
	}

	// Exactly at the threshold is still blocked.
	got = e.ShouldSell(nil, buy, 90, nil, nil)
	if got.Decision != DecisionBlock {
		t.Errorf("10%% loss: got %s, want BLOCK", got.Decision)
	}
}

func TestShouldSellNeedsTwoVotes(t *testing.T) {
	e := testEngine(Config{MinProfitPct: 2, MaxHold: 72 * time.Hour})

	// One SELL vote (bearish trend) is not enough while profit is in the
	// dead zone between min and 2x min.
	buy := openBuy(100, 2*time.Hour)
	mkt := &MarketContext{Trend: TrendBearish}
	got := e.ShouldSell(nil, buy, 103, mkt, nil)
	if got.Decision != DecisionHold {
		t.Fatalf("single SELL vote: got %s, want HOLD", got.Decision)
	}

	// A second SELL vote (strong profit) tips the combination.
	got = e.ShouldSell(nil, buy, 110, mkt, nil)
	if got.Decision != DecisionSell {
		t.Fatalf("two SELL votes: got %s, want SELL", got.Decision)
	}
	if len(got.Reasons) < 2 {
		t.Errorf("reasons = %v, want reasons from both analyses", got.Reasons)
	}
}

func TestShouldSellTimeBasedExit(t *testing.T) {
	e := testEngine(Config{MinProfitPct: 2, MaxHold: 72 * time.Hour})

	// Old position with strong profit: time and profit both vote SELL.
	got := e.ShouldSell(nil, openBuy(100, 80*time.Hour), 110, nil, nil)
	if got.Decision != DecisionSell {
		t.Fatalf("aged position: got %s, want SELL", got.Decision)
	}

	// Young position holds even with strong profit (one vote only).
	got = e.ShouldSell(nil, openBuy(100, 10*time.Minute), 110, nil, nil)
	if got.Decision != DecisionHold {
		t.Fatalf("young position: got %s, want HOLD", got.Decision)
	}
}

func TestShouldSellPartialOnTarget(t *testing.T) {
	e := testEngine(Config{MinProfitPct: 2})
	buy := openBuy(100, 2*time.Hour)
	sellSig := &signal.Signal{
		Action:     signal.ActionSell,
		Base:       "XBT",
		Targets:    []float64{110, 120, 130},
		Confidence: 40, // too weak to add a confidence SELL vote
	}

	got := e.ShouldSell(sellSig, buy, 112, nil, nil)
	if got.Decision != DecisionPartialSell {
		t.Fatalf("first target: got %s, want PARTIAL_SELL", got.Decision)
	}
	if got.HitTargetOrdinal != 1 {
		t.Errorf("HitTargetOrdinal = %d, want 1", got.HitTargetOrdinal)
	}

	// Final target reached makes the profit analysis vote SELL instead.
	got = e.ShouldSell(sellSig, buy, 131, nil, nil)
	if got.HitTargetOrdinal != 3 {
		t.Errorf("HitTargetOrdinal = %d, want 3", got.HitTargetOrdinal)
	}
}

func TestShouldSellConfidenceBoost(t *testing.T) {
	e := testEngine(Config{
		MinProfitPct:             2,
		MinConfidence:            60,
		ConfidenceBoostThreshold: 5,
		ConfidenceBoostIncrement: 20,
	})
	buy := openBuy(100, 2*time.Hour)
	sellSig := &signal.Signal{Action: signal.ActionSell, Base: "XBT", Confidence: 70}

	// Thin profit raises the bar to 80, so confidence 70 votes HOLD and
	// nothing else is voting SELL.
	got := e.ShouldSell(sellSig, buy, 103, nil, nil)
	if got.Decision != DecisionHold {
		t.Fatalf("thin profit: got %s, want HOLD", got.Decision)
	}

	// Comfortable profit keeps the bar at 60: confidence plus strong
	// profit makes two SELL votes.
	got = e.ShouldSell(sellSig, buy, 108, nil, nil)
	if got.Decision != DecisionSell {
		t.Fatalf("comfortable profit: got %s, want SELL", got.Decision)
	}
}

func TestShouldSellRiskManagement(t *testing.T) {
	e := testEngine(Config{MinProfitPct: 2, MaxDrawdownPct: 15, ConcentrationPct: 20})
	buy := openBuy(100, 2*time.Hour)

	// Excessive drawdown plus strong profit: two SELL votes.
	got := e.ShouldSell(nil, buy, 110, nil, &PortfolioContext{DrawdownPct: 20})
	if got.Decision != DecisionSell {
		t.Fatalf("drawdown: got %s, want SELL", got.Decision)
	}

	// Concentration alone forces a partial exit.
	got = e.ShouldSell(nil, buy, 103, nil, &PortfolioContext{ConcentrationPct: 35})
	if got.Decision != DecisionPartialSell {
		t.Fatalf("concentration: got %s, want PARTIAL_SELL", got.Decision)
	}
}

func TestSellVolumeLadder(t *testing.T) {
	cases := []struct {
		name string
		eval Evaluation
		want float64
	}{
		{"full sell", Evaluation{Decision: DecisionSell}, 1.0},
		{"partial first target", Evaluation{Decision: DecisionPartialSell, HitTargetOrdinal: 1}, 0.25},
		{"partial second target", Evaluation{Decision: DecisionPartialSell, HitTargetOrdinal: 2}, 0.50},
		{"partial third target", Evaluation{Decision: DecisionPartialSell, HitTargetOrdinal: 3}, 0.75},
		{"partial unknown ordinal", Evaluation{Decision: DecisionPartialSell}, 1.0},
		{"partial deep ladder", Evaluation{Decision: DecisionPartialSell, HitTargetOrdinal: 4}, 1.0},
		{"hold", Evaluation{Decision: DecisionHold}, 0},
		{"block", Evaluation{Decision: DecisionBlock}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SellVolume(tc.eval, 1.0); got != tc.want {
				t.Errorf("SellVolume = %g, want %g", got, tc.want)
			}
		})
	}
}
