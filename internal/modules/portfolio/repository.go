package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
)

// Repository is the sqlite-backed Store
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

var _ Store = (*Repository)(nil)

// Create persists a new portfolio and its initial cash balance
func (r *Repository) Create(p *Portfolio) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		INSERT INTO portfolios
		(id, name, strategy, cash_balance, min_position_pct, max_position_pct,
		 max_sector_pct, max_monthly_turnover, target_holdings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Strategy, p.Cash,
		p.MinPositionPct, p.MaxPositionPct, p.MaxSectorPct,
		p.MaxMonthlyTurnover, p.TargetHoldings, now, now,
	)
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to create portfolio: %w", err))
	}
	r.log.Info().Str("portfolio", p.ID).Str("strategy", p.Strategy).Msg("Portfolio created")
	return nil
}

// LoadPortfolio reads a portfolio and all its holdings
func (r *Repository) LoadPortfolio(id string) (*Portfolio, error) {
	p := &Portfolio{ID: id, Holdings: make(map[domain.Ticker]*Holding)}
	var createdAt, updatedAt string

	err := r.db.QueryRow(`
		SELECT name, strategy, cash_balance, min_position_pct, max_position_pct,
		       max_sector_pct, max_monthly_turnover, target_holdings, created_at, updated_at
		FROM portfolios WHERE id = ?`, id,
	).Scan(&p.Name, &p.Strategy, &p.Cash,
		&p.MinPositionPct, &p.MaxPositionPct, &p.MaxSectorPct,
		&p.MaxMonthlyTurnover, &p.TargetHoldings, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: portfolio %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = ts
	}

	rows, err := r.db.Query(`
		SELECT ticker, shares, avg_cost, entry_score, entry_date, sector, current_price, current_score
		FROM holdings WHERE portfolio_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		h := &Holding{}
		var ticker, entryDate string
		var price, score sql.NullFloat64
		if err := rows.Scan(&ticker, &h.Shares, &h.AvgCost, &h.EntryScore, &entryDate, &h.Sector, &price, &score); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.Ticker = domain.Ticker(ticker)
		if ts, err := time.Parse(time.RFC3339, entryDate); err == nil {
			h.EntryDate = ts
		}
		if price.Valid {
			h.CurrentPrice = &price.Float64
		}
		if score.Valid {
			h.CurrentScore = &score.Float64
		}
		p.Holdings[h.Ticker] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return p, nil
}

// ApplyTradeBatch applies a trade plan in one transaction. Any failure
// rolls back the whole batch: holdings, transactions and cash stay
// untouched.
func (r *Repository) ApplyTradeBatch(portfolioID string, trades []TradeOrder) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var cash float64
	err = tx.QueryRow(`SELECT cash_balance FROM portfolios WHERE id = ?`, portfolioID).Scan(&cash)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: portfolio %s", domain.ErrNotFound, portfolioID)
	}
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to read cash balance: %w", err))
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, trade := range trades {
		switch trade.Action {
		case ActionSell:
			cash, err = r.applySell(tx, portfolioID, trade, cash, now)
		case ActionBuy:
			cash, err = r.applyBuy(tx, portfolioID, trade, cash, now)
		default:
			err = fmt.Errorf("unknown trade action %q", trade.Action)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO transactions (portfolio_id, ticker, action, shares, price, reason, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			portfolioID, string(trade.Ticker), string(trade.Action), trade.Shares, trade.Price, trade.Reason, now)
		if err != nil {
			return mapSQLError(fmt.Errorf("failed to record transaction: %w", err))
		}
	}

	if cash < -0.01 {
		return fmt.Errorf("%w: trade batch would overdraw cash (%.2f)", domain.ErrPersistenceConflict, cash)
	}

	_, err = tx.Exec(`UPDATE portfolios SET cash_balance = ?, updated_at = ? WHERE id = ?`, cash, now, portfolioID)
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to update cash balance: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return mapSQLError(fmt.Errorf("failed to commit trade batch: %w", err))
	}

	r.log.Info().
		Str("portfolio", portfolioID).
		Int("trades", len(trades)).
		Float64("cash_after", cash).
		Msg("Trade batch applied")
	return nil
}

func (r *Repository) applySell(tx *sql.Tx, portfolioID string, trade TradeOrder, cash float64, now string) (float64, error) {
	var shares float64
	err := tx.QueryRow(`SELECT shares FROM holdings WHERE portfolio_id = ? AND ticker = ?`,
		portfolioID, string(trade.Ticker)).Scan(&shares)
	if errors.Is(err, sql.ErrNoRows) {
		return cash, fmt.Errorf("%w: selling unheld ticker %s", domain.ErrPersistenceConflict, trade.Ticker)
	}
	if err != nil {
		return cash, mapSQLError(fmt.Errorf("failed to read holding: %w", err))
	}
	if shares+1e-9 < trade.Shares {
		return cash, fmt.Errorf("%w: selling %.4f shares of %s but only %.4f held",
			domain.ErrPersistenceConflict, trade.Shares, trade.Ticker, shares)
	}

	remaining := shares - trade.Shares
	if math.Abs(remaining) < 1e-9 {
		_, err = tx.Exec(`DELETE FROM holdings WHERE portfolio_id = ? AND ticker = ?`,
			portfolioID, string(trade.Ticker))
	} else {
		_, err = tx.Exec(`UPDATE holdings SET shares = ?, current_price = ?, updated_at = ? WHERE portfolio_id = ? AND ticker = ?`,
			remaining, trade.Price, now, portfolioID, string(trade.Ticker))
	}
	if err != nil {
		return cash, mapSQLError(fmt.Errorf("failed to apply sell: %w", err))
	}
	return cash + trade.Value(), nil
}

func (r *Repository) applyBuy(tx *sql.Tx, portfolioID string, trade TradeOrder, cash float64, now string) (float64, error) {
	var shares, avgCost float64
	err := tx.QueryRow(`SELECT shares, avg_cost FROM holdings WHERE portfolio_id = ? AND ticker = ?`,
		portfolioID, string(trade.Ticker)).Scan(&shares, &avgCost)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.Exec(`
			INSERT INTO holdings
			(portfolio_id, ticker, shares, avg_cost, entry_score, entry_date, sector, current_price, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			portfolioID, string(trade.Ticker), trade.Shares, trade.Price, trade.Score, now, trade.Sector, trade.Price, now)
	case err != nil:
		return cash, mapSQLError(fmt.Errorf("failed to read holding: %w", err))
	default:
		// Adding to an existing position re-averages the cost basis
		newShares := shares + trade.Shares
		newCost := (shares*avgCost + trade.Value()) / newShares
		_, err = tx.Exec(`UPDATE holdings SET shares = ?, avg_cost = ?, current_price = ?, updated_at = ? WHERE portfolio_id = ? AND ticker = ?`,
			newShares, newCost, trade.Price, now, portfolioID, string(trade.Ticker))
	}
	if err != nil {
		return cash, mapSQLError(fmt.Errorf("failed to apply buy: %w", err))
	}
	return cash - trade.Value(), nil
}

// SaveSnapshot stores an immutable snapshot row, holdings serialized as a
// versioned JSON blob
func (r *Repository) SaveSnapshot(snap Snapshot) error {
	blob, err := MarshalHoldings(snap.Holdings)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.Exec(`
		INSERT INTO snapshots
		(portfolio_id, date, total_value, period_return, cumulative_return, benchmark_return, alpha, holdings_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.PortfolioID, snap.Date, snap.TotalValue,
		nullable(snap.PeriodReturn), nullable(snap.CumulativeReturn),
		nullable(snap.BenchmarkReturn), nullable(snap.Alpha), blob, now)
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to save snapshot: %w", err))
	}
	r.log.Info().Str("portfolio", snap.PortfolioID).Str("date", snap.Date).Msg("Snapshot saved")
	return nil
}

// LatestSnapshot returns the most recent snapshot, or nil when none exists
func (r *Repository) LatestSnapshot(portfolioID string) (*Snapshot, error) {
	var snap Snapshot
	var periodReturn, cumulativeReturn, benchmarkReturn, alpha sql.NullFloat64
	var blob string

	err := r.db.QueryRow(`
		SELECT portfolio_id, date, total_value, period_return, cumulative_return, benchmark_return, alpha, holdings_json
		FROM snapshots WHERE portfolio_id = ?
		ORDER BY date DESC, id DESC LIMIT 1`, portfolioID,
	).Scan(&snap.PortfolioID, &snap.Date, &snap.TotalValue,
		&periodReturn, &cumulativeReturn, &benchmarkReturn, &alpha, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	if periodReturn.Valid {
		snap.PeriodReturn = &periodReturn.Float64
	}
	if cumulativeReturn.Valid {
		snap.CumulativeReturn = &cumulativeReturn.Float64
	}
	if benchmarkReturn.Valid {
		snap.BenchmarkReturn = &benchmarkReturn.Float64
	}
	if alpha.Valid {
		snap.Alpha = &alpha.Float64
	}

	holdings, err := UnmarshalHoldings(blob)
	if err != nil {
		return nil, err
	}
	snap.Holdings = holdings
	return &snap, nil
}

// ListSnapshots returns a portfolio's snapshots, newest first
func (r *Repository) ListSnapshots(portfolioID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT portfolio_id, date, total_value, period_return, cumulative_return, benchmark_return, alpha, holdings_json
		FROM snapshots WHERE portfolio_id = ?
		ORDER BY date DESC, id DESC LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		var periodReturn, cumulativeReturn, benchmarkReturn, alpha sql.NullFloat64
		var blob string
		if err := rows.Scan(&snap.PortfolioID, &snap.Date, &snap.TotalValue,
			&periodReturn, &cumulativeReturn, &benchmarkReturn, &alpha, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if periodReturn.Valid {
			snap.PeriodReturn = &periodReturn.Float64
		}
		if cumulativeReturn.Valid {
			snap.CumulativeReturn = &cumulativeReturn.Float64
		}
		if benchmarkReturn.Valid {
			snap.BenchmarkReturn = &benchmarkReturn.Float64
		}
		if alpha.Valid {
			snap.Alpha = &alpha.Float64
		}
		holdings, err := UnmarshalHoldings(blob)
		if err != nil {
			return nil, err
		}
		snap.Holdings = holdings
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snaps, nil
}

// ScoreRecord is one row of the score history audit trail
type ScoreRecord struct {
	Ticker    domain.Ticker `json:"ticker"`
	Strategy  string        `json:"strategy"`
	Composite float64       `json:"composite"`
	Value     *float64      `json:"value,omitempty"`
	Quality   *float64      `json:"quality,omitempty"`
	Risk      *float64      `json:"risk,omitempty"`
	Growth    *float64      `json:"growth,omitempty"`
	Momentum  *float64      `json:"momentum,omitempty"`
	ScoredAt  string        `json:"scored_at"`
}

// ScoreHistory returns a ticker's score history, newest first
func (r *Repository) ScoreHistory(ticker domain.Ticker, limit int) ([]ScoreRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT ticker, strategy, composite, value_score, quality_score, risk_score, growth_score, momentum_score, scored_at
		FROM stock_scores WHERE ticker = ?
		ORDER BY scored_at DESC, id DESC LIMIT ?`, string(ticker), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query score history: %w", err)
	}
	defer rows.Close()

	var records []ScoreRecord
	for rows.Next() {
		var rec ScoreRecord
		var tk string
		var value, quality, risk, growth, momentum sql.NullFloat64
		if err := rows.Scan(&tk, &rec.Strategy, &rec.Composite,
			&value, &quality, &risk, &growth, &momentum, &rec.ScoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		rec.Ticker = domain.Ticker(tk)
		if value.Valid {
			rec.Value = &value.Float64
		}
		if quality.Valid {
			rec.Quality = &quality.Float64
		}
		if risk.Valid {
			rec.Risk = &risk.Float64
		}
		if growth.Valid {
			rec.Growth = &growth.Float64
		}
		if momentum.Valid {
			rec.Momentum = &momentum.Float64
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score history: %w", err)
	}
	return records, nil
}

// ListIDs returns every portfolio id, oldest first
func (r *Repository) ListIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM portfolios ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return ids, nil
}

// UpdateHoldingMarks refreshes a holding's current price and score after a
// review-cycle rescore
func (r *Repository) UpdateHoldingMarks(portfolioID string, ticker domain.Ticker, price, score *float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		UPDATE holdings SET current_price = COALESCE(?, current_price),
		                    current_score = COALESCE(?, current_score),
		                    updated_at = ?
		WHERE portfolio_id = ? AND ticker = ?`,
		nullable(price), nullable(score), now, portfolioID, string(ticker))
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to update holding marks: %w", err))
	}
	return nil
}

// SaveScores appends to the score history audit table
func (r *Repository) SaveScores(scores []scoring.FactorScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, s := range scores {
		_, err := tx.Exec(`
			INSERT INTO stock_scores
			(ticker, strategy, composite, value_score, quality_score, risk_score, growth_score, momentum_score, scored_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(s.Ticker), s.Strategy, s.Composite,
			nullable(s.Value), nullable(s.Quality), nullable(s.Risk),
			nullable(s.Growth), nullable(s.Momentum), now)
		if err != nil {
			return mapSQLError(fmt.Errorf("failed to save score for %s: %w", s.Ticker, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return mapSQLError(fmt.Errorf("failed to commit scores: %w", err))
	}
	return nil
}

func nullable(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// mapSQLError surfaces sqlite lock contention as a retryable conflict
func mapSQLError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceConflict, err)
	}
	return err
}
