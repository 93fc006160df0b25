package orchestrator

import (
	"context"
	"testing"

	"signal-trader/internal/events"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchange"
)

type fakeTrader struct {
	calls  int
	result *exchange.OrderResult
	err    error
}

func (f *fakeTrader) GetBalance(context.Context, string) (map[string]float64, error) {
	return nil, nil
}

func (f *fakeTrader) GetMarketPrice(context.Context, string) (float64, error) {
	return 0, nil
}

func (f *fakeTrader) ExecuteOrder(_ context.Context, _ exchange.OrderRequest) (*exchange.OrderResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeStore struct {
	trades []db.Trade
	closed map[string]bool
	addErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{closed: make(map[string]bool)}
}

func (f *fakeStore) AddTrade(_ context.Context, t db.Trade) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeStore) CloseTrade(_ context.Context, id string, _ float64) (bool, error) {
	if f.closed[id] {
		return false, nil
	}
	f.closed[id] = true
	return true, nil
}

func TestExecuteRejectsBeforeExchange(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"zero volume", Request{Side: db.SideBuy, OrderType: exchange.OrderMarket}},
		{"negative volume", Request{Side: db.SideBuy, OrderType: exchange.OrderMarket, Volume: -1}},
		{"limit without price", Request{Side: db.SideBuy, OrderType: exchange.OrderLimit, Volume: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trader := &fakeTrader{}
			store := newFakeStore()
			o := New(store, nil)

			if out := o.Execute(context.Background(), trader, tc.req); out != nil {
				t.Errorf("Execute = %+v, want nil", out)
			}
			if trader.calls != 0 {
				t.Errorf("trader calls = %d, want 0", trader.calls)
			}
			if len(store.trades) != 0 {
				t.Errorf("trades recorded = %d, want 0", len(store.trades))
			}
		})
	}
}

func TestExecuteInsufficientBalance(t *testing.T) {
	trader := &fakeTrader{err: exchange.ErrInsufficientBalance}
	store := newFakeStore()
	o := New(store, nil)

	out := o.Execute(context.Background(), trader, Request{
		Channel: "alpha", Side: db.SideBuy, Base: "XBT", Quote: "USDT",
		OrderType: exchange.OrderMarket, Volume: 1,
	})
	if out != nil {
		t.Errorf("Execute = %+v, want nil", out)
	}
	if len(store.trades) != 0 {
		t.Errorf("trades recorded = %d, want 0", len(store.trades))
	}
}

func TestExecuteBuyRecordsTrade(t *testing.T) {
	trader := &fakeTrader{result: &exchange.OrderResult{Status: db.StatusSimulatedOpen, Price: 65000}}
	store := newFakeStore()
	bus := events.NewBus()
	stream, unsub := bus.Subscribe(events.EventTradeExecuted, 1)
	defer unsub()

	o := New(store, bus)
	out := o.Execute(context.Background(), trader, Request{
		Channel: "alpha", Side: db.SideBuy, Base: "XBT", Quote: "USDT",
		OrderType: exchange.OrderLimit, Volume: 0.5, Price: 65000,
		TakeProfit: 68000, TakeProfitIdx: 2, StopLoss: 63000,
	})
	if out == nil {
		t.Fatal("Execute returned nil")
	}
	if out.Trade.ID == "" {
		t.Error("trade id not assigned")
	}
	if out.Trade.Status != db.StatusSimulatedOpen {
		t.Errorf("Status = %s, want simulated_open", out.Trade.Status)
	}
	if out.Trade.Price != 65000 {
		t.Errorf("Price = %g, want fill price 65000", out.Trade.Price)
	}
	if len(store.trades) != 1 {
		t.Fatalf("trades recorded = %d, want 1", len(store.trades))
	}

	select {
	case payload := <-stream:
		ev := payload.(events.TradeEvent)
		if ev.TradeID != out.Trade.ID {
			t.Errorf("event TradeID = %s, want %s", ev.TradeID, out.Trade.ID)
		}
	default:
		t.Error("no trade event published")
	}
}

func TestExecuteSellClosesBuyOnce(t *testing.T) {
	trader := &fakeTrader{result: &exchange.OrderResult{Status: db.StatusSimulatedOpen, Price: 110}}
	store := newFakeStore()
	o := New(store, nil)

	req := Request{
		Channel: "alpha", Side: db.SideSell, Base: "XBT", Quote: "USDT",
		OrderType: exchange.OrderMarket, Volume: 0.5,
		BuyTradeID: "buy-1", BuyPrice: 100,
	}

	out := o.Execute(context.Background(), trader, req)
	if out == nil {
		t.Fatal("Execute returned nil")
	}
	if !out.Closed {
		t.Error("Closed = false, want true")
	}
	if out.ProfitPct != 10 {
		t.Errorf("ProfitPct = %g, want 10", out.ProfitPct)
	}

	// A duplicate sell records its own trade but cannot close the buy again.
	out = o.Execute(context.Background(), trader, req)
	if out == nil {
		t.Fatal("second Execute returned nil")
	}
	if out.Closed {
		t.Error("second close should be a no-op")
	}
	if len(store.trades) != 2 {
		t.Errorf("trades recorded = %d, want 2", len(store.trades))
	}
}

func TestExecuteBookkeepingFailure(t *testing.T) {
	trader := &fakeTrader{result: &exchange.OrderResult{Price: 65000}}
	store := newFakeStore()
	store.addErr = context.DeadlineExceeded
	o := New(store, nil)

	out := o.Execute(context.Background(), trader, Request{
		Channel: "alpha", Side: db.SideBuy, Base: "XBT", Quote: "USDT",
		OrderType: exchange.OrderMarket, Volume: 1,
	})
	if out != nil {
		t.Errorf("Execute = %+v, want nil when the trade row cannot be written", out)
	}
}
