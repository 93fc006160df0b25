package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    channel TEXT NOT NULL,
    base_currency TEXT NOT NULL,
    quote_currency TEXT NOT NULL,
    side TEXT NOT NULL,
    volume REAL NOT NULL,
    price REAL DEFAULT 0,
    order_type TEXT NOT NULL DEFAULT 'market',
    status TEXT NOT NULL,
    take_profit REAL DEFAULT 0,
    stop_loss REAL DEFAULT 0,
    take_profit_idx INTEGER DEFAULT -1,
    leverage INTEGER DEFAULT 0,
    buy_trade_id TEXT DEFAULT '',
    llm_decision_id TEXT DEFAULT '',
    close_price REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    closed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trades_open_lookup
    ON trades (channel, base_currency, quote_currency, side, status);

CREATE TABLE IF NOT EXISTS wallets (
    channel TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL,
    balance REAL NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (channel, currency)
);

CREATE TABLE IF NOT EXISTS prompts (
    name TEXT PRIMARY KEY,
    template TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS llm_decisions (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    prompt TEXT NOT NULL,
    response TEXT NOT NULL,
    reasoning TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Default prompt templates. Stored in the DB so operators can tune them
// without a redeploy; INSERT OR IGNORE keeps user edits across restarts.
const seedPrompts = `
INSERT OR IGNORE INTO prompts (name, template) VALUES
('signal_parser',
'You are a crypto trading signal parser. Extract a trading signal from the message below.
Respond with strict JSON only, no prose, using this exact shape:
{"action":"BUY|SELL","base_currency":"...","quote_currency":"...","entry_price":0,"entry_price_range":[0,0],"targets":[],"stop_loss":0,"leverage":0,"confidence":0}
Omit fields you cannot determine. confidence is an integer 0-100.'),
('take_profit_selector',
'You are a take-profit selection assistant for a %s %s position.
Entry price: %s. Stop loss: %s. Take-profit targets (ordered): %s.
Pick exactly one target to attach to the order. Respond with strict JSON only:
{"reasoning":"...","chosen_target_index":0,"chosen_target_value":0}');
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := d.DB.Exec(seedPrompts); err != nil {
		return fmt.Errorf("seed prompts: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "trades", "llm_decision_id", "TEXT DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "take_profit_idx", "INTEGER DEFAULT -1"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "close_price", "REAL DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
