package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInsufficientBalance is returned when a debit would drive a wallet
	// balance negative. No state is mutated in that case.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	// ErrPromptNotFound is returned when a prompt template name is unknown.
	ErrPromptNotFound = errors.New("prompt template not found")
)

const tradeColumns = `id, channel, base_currency, quote_currency, side, volume, price,
       order_type, status, take_profit, stop_loss, take_profit_idx, leverage,
       buy_trade_id, llm_decision_id, close_price, created_at, closed_at`

// AddTrade inserts a new trade row.
func (d *Database) AddTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, channel, base_currency, quote_currency, side, volume, price,
			order_type, status, take_profit, stop_loss, take_profit_idx, leverage,
			buy_trade_id, llm_decision_id, close_price, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		t.ID, t.Channel, t.Base, t.Quote, t.Side, t.Volume, t.Price,
		t.OrderType, t.Status, t.TakeProfit, t.StopLoss, t.TakeProfitIdx, t.Leverage,
		t.BuyTradeID, t.LLMDecisionID, t.ClosePrice, nullableTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// CloseTrade transitions an open buy trade to closed, recording the close
// price. The update is a check-and-set on status so two racing callers (the
// message path and the position monitor) can never close the same trade
// twice; the second call reports closed=false and changes nothing.
func (d *Database) CloseTrade(ctx context.Context, id string, closePrice float64) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE trades
		SET status = ?, close_price = ?, closed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`, StatusClosed, closePrice, id, StatusOpen, StatusSimulatedOpen)
	if err != nil {
		return false, fmt.Errorf("close trade %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTrade returns a trade by id, or nil if it does not exist.
func (d *Database) GetTrade(ctx context.Context, id string) (*Trade, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	return scanTrade(row)
}

// GetLastOpenBuyTrade returns the most recent still-open buy trade for the
// (channel, base, quote) triple, or nil when the channel holds no position.
func (d *Database) GetLastOpenBuyTrade(ctx context.Context, channel, base, quote string) (*Trade, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE channel = ? AND base_currency = ? AND quote_currency = ?
		  AND side = ? AND status IN (?, ?)
		ORDER BY created_at DESC
		LIMIT 1
	`, channel, strings.ToUpper(base), strings.ToUpper(quote), SideBuy, StatusOpen, StatusSimulatedOpen)
	return scanTrade(row)
}

// ListOpenTrades returns all open buy trades, oldest first. Used by the
// position monitor.
func (d *Database) ListOpenTrades(ctx context.Context) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE side = ? AND status IN (?, ?)
		ORDER BY created_at ASC
	`, SideBuy, StatusOpen, StatusSimulatedOpen)
	if err != nil {
		return nil, fmt.Errorf("query open trades: %w", err)
	}
	return collectTrades(rows)
}

// ListTrades returns the most recent trades up to limit.
func (d *Database) ListTrades(ctx context.Context, limit int) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return collectTrades(rows)
}

// CountBuysSince counts buy trades created at or after the cutoff, across
// all channels. Backs the rolling-day trade limit.
func (d *Database) CountBuysSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trades WHERE side = ? AND created_at >= ?
	`, SideBuy, cutoff.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count buys: %w", err)
	}
	return n, nil
}

// GetWalletBalance returns the balance for (channel, currency); missing rows
// read as zero.
func (d *Database) GetWalletBalance(ctx context.Context, channel, currency string) (float64, error) {
	var bal float64
	err := d.DB.QueryRowContext(ctx, `
		SELECT balance FROM wallets WHERE channel = ? AND currency = ?
	`, channel, strings.ToUpper(currency)).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query wallet: %w", err)
	}
	return bal, nil
}

// SetWalletBalance upserts a wallet row to an absolute amount.
func (d *Database) SetWalletBalance(ctx context.Context, channel, currency string, amount float64) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO wallets (channel, currency, balance, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(channel, currency) DO UPDATE SET
			balance = excluded.balance,
			updated_at = CURRENT_TIMESTAMP
	`, channel, strings.ToUpper(currency), amount)
	return err
}

// ApplyTransfer debits one currency and credits another inside a single
// transaction, so no reader ever observes half of a swap. Returns
// ErrInsufficientBalance (and mutates nothing) when the debit side lacks
// funds.
func (d *Database) ApplyTransfer(ctx context.Context, channel, debitCurrency string, debitAmount float64, creditCurrency string, creditAmount float64) error {
	if debitAmount < 0 || creditAmount < 0 {
		return fmt.Errorf("transfer amounts must be non-negative")
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback()

	debitCurrency = strings.ToUpper(debitCurrency)
	creditCurrency = strings.ToUpper(creditCurrency)

	var bal float64
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM wallets WHERE channel = ? AND currency = ?
	`, channel, debitCurrency).Scan(&bal)
	if err == sql.ErrNoRows {
		bal = 0
	} else if err != nil {
		return fmt.Errorf("query debit wallet: %w", err)
	}

	if bal < debitAmount {
		return fmt.Errorf("%w: %s %s need %.8f, have %.8f",
			ErrInsufficientBalance, channel, debitCurrency, debitAmount, bal)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
		WHERE channel = ? AND currency = ?
	`, debitAmount, channel, debitCurrency); err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (channel, currency, balance, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(channel, currency) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = CURRENT_TIMESTAMP
	`, channel, creditCurrency, creditAmount); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}

	return tx.Commit()
}

// ChannelBalances returns currency -> balance for one wallet scope.
func (d *Database) ChannelBalances(ctx context.Context, channel string) (map[string]float64, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT currency, balance FROM wallets WHERE channel = ?
	`, channel)
	if err != nil {
		return nil, fmt.Errorf("query channel wallets: %w", err)
	}
	defer rows.Close()

	res := make(map[string]float64)
	for rows.Next() {
		var currency string
		var balance float64
		if err := rows.Scan(&currency, &balance); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		res[currency] = balance
	}
	return res, rows.Err()
}

// ListWallets returns all wallet rows.
func (d *Database) ListWallets(ctx context.Context) ([]WalletBalance, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT channel, currency, balance, updated_at FROM wallets
		ORDER BY channel, currency
	`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var res []WalletBalance
	for rows.Next() {
		var w WalletBalance
		if err := rows.Scan(&w.Channel, &w.Currency, &w.Balance, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// ResetWallets wipes trades and wallets and reseeds the global wallet.
// Dry-run only; never call this against live bookkeeping.
func (d *Database) ResetWallets(ctx context.Context, seed map[string]float64) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trades`); err != nil {
		return fmt.Errorf("reset trades: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM wallets`); err != nil {
		return fmt.Errorf("reset wallets: %w", err)
	}
	for currency, amount := range seed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (channel, currency, balance, updated_at)
			VALUES ('', ?, ?, CURRENT_TIMESTAMP)
		`, strings.ToUpper(currency), amount); err != nil {
			return fmt.Errorf("seed wallet %s: %w", currency, err)
		}
	}
	return tx.Commit()
}

// GetPromptTemplate returns the stored template for name.
func (d *Database) GetPromptTemplate(ctx context.Context, name string) (string, error) {
	var tmpl string
	err := d.DB.QueryRowContext(ctx, `SELECT template FROM prompts WHERE name = ?`, name).Scan(&tmpl)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("query prompt %s: %w", name, err)
	}
	return tmpl, nil
}

// AddLLMDecision records a model call for auditability.
func (d *Database) AddLLMDecision(ctx context.Context, dec LLMDecision) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO llm_decisions (id, kind, prompt, response, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, dec.ID, dec.Kind, dec.Prompt, dec.Response, dec.Reasoning, nullableTime(dec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert llm decision: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*Trade, error) {
	var t Trade
	err := row.Scan(
		&t.ID, &t.Channel, &t.Base, &t.Quote, &t.Side, &t.Volume, &t.Price,
		&t.OrderType, &t.Status, &t.TakeProfit, &t.StopLoss, &t.TakeProfitIdx, &t.Leverage,
		&t.BuyTradeID, &t.LLMDecisionID, &t.ClosePrice, &t.CreatedAt, &t.ClosedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan trade: %w", err)
	}
	return &t, nil
}

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	defer rows.Close()
	var res []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
