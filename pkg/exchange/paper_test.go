package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// memWallets is an in-memory WalletStore for tests.
type memWallets struct {
	balances map[string]float64 // "channel|currency" -> balance
}

func newMemWallets() *memWallets {
	return &memWallets{balances: make(map[string]float64)}
}

func key(channel, currency string) string { return channel + "|" + currency }

func (m *memWallets) ChannelBalances(_ context.Context, channel string) (map[string]float64, error) {
	res := make(map[string]float64)
	for k, v := range m.balances {
		if len(k) > len(channel) && k[:len(channel)+1] == channel+"|" {
			res[k[len(channel)+1:]] = v
		}
	}
	return res, nil
}

func (m *memWallets) GetWalletBalance(_ context.Context, channel, currency string) (float64, error) {
	return m.balances[key(channel, currency)], nil
}

func (m *memWallets) ApplyTransfer(_ context.Context, channel, debitCurrency string, debitAmount float64, creditCurrency string, creditAmount float64) error {
	k := key(channel, debitCurrency)
	if m.balances[k] < debitAmount {
		return fmt.Errorf("insufficient")
	}
	m.balances[k] -= debitAmount
	m.balances[key(channel, creditCurrency)] += creditAmount
	return nil
}

type fixedPrice float64

func (f fixedPrice) GetMarketPrice(context.Context, string) (float64, error) {
	return float64(f), nil
}

func TestPaperBuyAndSell(t *testing.T) {
	wallets := newMemWallets()
	wallets.balances[key("", "USDT")] = 1000
	p := NewPaperTrader(wallets, fixedPrice(100))

	res, err := p.ExecuteOrder(context.Background(), OrderRequest{
		Symbol: "XBTUSDT", Base: "XBT", Quote: "USDT",
		Side: "buy", Type: OrderLimit, Volume: 5, Price: 100, Channel: "alpha",
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.Status != "simulated_open" || res.Price != 100 {
		t.Errorf("result = %+v", res)
	}
	if wallets.balances[key("", "USDT")] != 500 || wallets.balances[key("", "XBT")] != 5 {
		t.Errorf("balances after buy: %v", wallets.balances)
	}

	// Market sell uses the live price.
	res, err = p.ExecuteOrder(context.Background(), OrderRequest{
		Symbol: "XBTUSDT", Base: "XBT", Quote: "USDT",
		Side: "sell", Type: OrderMarket, Volume: 5, Channel: "alpha",
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if res.Price != 100 {
		t.Errorf("sell fill price = %g, want live 100", res.Price)
	}
	if wallets.balances[key("", "USDT")] != 1000 || wallets.balances[key("", "XBT")] != 0 {
		t.Errorf("balances after sell: %v", wallets.balances)
	}
}

func TestPaperInsufficientFunds(t *testing.T) {
	wallets := newMemWallets()
	wallets.balances[key("", "USDT")] = 100
	p := NewPaperTrader(wallets, fixedPrice(100))

	_, err := p.ExecuteOrder(context.Background(), OrderRequest{
		Base: "XBT", Quote: "USDT", Side: "buy", Type: OrderLimit, Volume: 5, Price: 100,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("buy err = %v, want ErrInsufficientBalance", err)
	}
	if wallets.balances[key("", "USDT")] != 100 {
		t.Errorf("balance mutated on failed buy: %v", wallets.balances)
	}

	_, err = p.ExecuteOrder(context.Background(), OrderRequest{
		Base: "XBT", Quote: "USDT", Side: "sell", Type: OrderMarket, Volume: 1,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("sell err = %v, want ErrInsufficientBalance", err)
	}
}

func TestPaperPerChannelWallets(t *testing.T) {
	wallets := newMemWallets()
	wallets.balances[key("alpha", "USDT")] = 1000
	p := NewPaperTrader(wallets, fixedPrice(100))
	p.PerChannelWallets = true

	_, err := p.ExecuteOrder(context.Background(), OrderRequest{
		Base: "XBT", Quote: "USDT", Side: "buy", Type: OrderLimit, Volume: 1, Price: 100, Channel: "alpha",
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	// The beta channel has no funds of its own.
	_, err = p.ExecuteOrder(context.Background(), OrderRequest{
		Base: "XBT", Quote: "USDT", Side: "buy", Type: OrderLimit, Volume: 1, Price: 100, Channel: "beta",
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("beta err = %v, want ErrInsufficientBalance", err)
	}
}

func TestPaperUnsupportedSide(t *testing.T) {
	p := NewPaperTrader(newMemWallets(), fixedPrice(100))
	_, err := p.ExecuteOrder(context.Background(), OrderRequest{
		Base: "XBT", Quote: "USDT", Side: "short", Type: OrderMarket, Volume: 1,
	})
	if !errors.Is(err, ErrUnsupportedOrder) {
		t.Errorf("err = %v, want ErrUnsupportedOrder", err)
	}
}
