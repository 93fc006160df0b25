package exchange

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// WalletStore is the slice of the persistence layer the paper trader needs.
type WalletStore interface {
	ChannelBalances(ctx context.Context, channel string) (map[string]float64, error)
	GetWalletBalance(ctx context.Context, channel, currency string) (float64, error)
	ApplyTransfer(ctx context.Context, channel, debitCurrency string, debitAmount float64, creditCurrency string, creditAmount float64) error
}

// PaperTrader simulates order execution against a virtual wallet while using
// live market prices (dry-run). Every fill is a debit+credit pair applied in
// one store transaction.
type PaperTrader struct {
	wallets WalletStore
	prices  PriceSource

	// PerChannelWallets scopes balances by originating channel instead of
	// the single global wallet.
	PerChannelWallets bool
}

// NewPaperTrader builds a simulated trader over the given wallet store and
// live price source.
func NewPaperTrader(wallets WalletStore, prices PriceSource) *PaperTrader {
	return &PaperTrader{wallets: wallets, prices: prices}
}

func (p *PaperTrader) scope(channel string) string {
	if p.PerChannelWallets {
		return channel
	}
	return ""
}

// GetBalance returns the virtual wallet for the channel's scope.
func (p *PaperTrader) GetBalance(ctx context.Context, channel string) (map[string]float64, error) {
	return p.wallets.ChannelBalances(ctx, p.scope(channel))
}

// GetMarketPrice delegates to the live price source.
func (p *PaperTrader) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	return p.prices.GetMarketPrice(ctx, symbol)
}

// ExecuteOrder simulates a fill. Insufficient funds abort before any wallet
// mutation.
func (p *PaperTrader) ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	price := req.Price
	if price <= 0 {
		live, err := p.prices.GetMarketPrice(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("paper: market price for %s: %w", req.Symbol, err)
		}
		price = live
	}

	scope := p.scope(req.Channel)
	base := strings.ToUpper(req.Base)
	quote := strings.ToUpper(req.Quote)

	switch strings.ToLower(req.Side) {
	case "buy":
		cost := req.Volume * price
		have, err := p.wallets.GetWalletBalance(ctx, scope, quote)
		if err != nil {
			return nil, err
		}
		if have < cost {
			return nil, fmt.Errorf("%w: need %.2f %s, have %.2f", ErrInsufficientBalance, cost, quote, have)
		}
		if err := p.wallets.ApplyTransfer(ctx, scope, quote, cost, base, req.Volume); err != nil {
			return nil, fmt.Errorf("paper: apply buy: %w", err)
		}
	case "sell":
		have, err := p.wallets.GetWalletBalance(ctx, scope, base)
		if err != nil {
			return nil, err
		}
		if have < req.Volume {
			return nil, fmt.Errorf("%w: need %.8f %s, have %.8f", ErrInsufficientBalance, req.Volume, base, have)
		}
		proceeds := req.Volume * price
		if err := p.wallets.ApplyTransfer(ctx, scope, base, req.Volume, quote, proceeds); err != nil {
			return nil, fmt.Errorf("paper: apply sell: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: side %q", ErrUnsupportedOrder, req.Side)
	}

	log.Printf("paper: %s %s %.8f %s/%s @ %.4f", req.Side, req.Type, req.Volume, base, quote, price)

	return &OrderResult{
		Status: "simulated_open",
		Price:  price,
		Base:   base,
		Quote:  quote,
	}, nil
}
