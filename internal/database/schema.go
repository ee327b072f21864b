package database

import "fmt"

// Percentage configuration columns (max_position_pct etc.) are stored as
// decimals in [0,1].
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		strategy TEXT NOT NULL,
		cash_balance REAL NOT NULL DEFAULT 0,
		min_position_pct REAL NOT NULL,
		max_position_pct REAL NOT NULL,
		max_sector_pct REAL NOT NULL,
		max_monthly_turnover INTEGER NOT NULL,
		target_holdings INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS holdings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		ticker TEXT NOT NULL,
		shares REAL NOT NULL,
		avg_cost REAL NOT NULL,
		entry_score REAL NOT NULL,
		entry_date TEXT NOT NULL,
		sector TEXT NOT NULL DEFAULT '',
		current_price REAL,
		current_score REAL,
		updated_at TEXT NOT NULL,
		UNIQUE(portfolio_id, ticker)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		ticker TEXT NOT NULL,
		action TEXT NOT NULL CHECK (action IN ('BUY','SELL')),
		shares REAL NOT NULL,
		price REAL NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		executed_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		date TEXT NOT NULL,
		total_value REAL NOT NULL,
		period_return REAL,
		cumulative_return REAL,
		benchmark_return REAL,
		alpha REAL,
		holdings_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		strategy TEXT NOT NULL,
		composite REAL NOT NULL,
		value_score REAL,
		quality_score REAL,
		risk_score REAL,
		growth_score REAL,
		momentum_score REAL,
		scored_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_holdings_portfolio ON holdings(portfolio_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_portfolio_date ON snapshots(portfolio_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_scores_ticker ON stock_scores(ticker, scored_at)`,
	`CREATE TABLE IF NOT EXISTS universe (
		ticker TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		added_at TEXT NOT NULL
	)`,
}

// Migrate creates the schema if it does not exist
func (db *DB) Migrate() error {
	for i, stmt := range migrations {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
