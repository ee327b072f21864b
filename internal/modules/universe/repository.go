// Package universe manages the candidate pool the research workflow screens:
// the tickers eligible for selection and review, persisted in sqlite.
package universe

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

// Entry is one candidate security in the universe
type Entry struct {
	Ticker  domain.Ticker `json:"ticker"`
	Name    string        `json:"name"`
	Sector  string        `json:"sector"`
	Active  bool          `json:"active"`
	AddedAt time.Time     `json:"added_at"`
}

// Repository handles universe database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a universe repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "universe").Logger(),
	}
}

// Add inserts or reactivates a candidate ticker
func (r *Repository) Add(entry Entry) error {
	ticker := normalize(entry.Ticker)
	if ticker == "" {
		return fmt.Errorf("empty ticker")
	}
	_, err := r.db.Exec(`
		INSERT INTO universe (ticker, name, sector, active, added_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			active = 1`,
		string(ticker), entry.Name, entry.Sector, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add %s to universe: %w", ticker, err)
	}
	r.log.Info().Str("ticker", string(ticker)).Msg("Ticker added to universe")
	return nil
}

// Deactivate removes a ticker from screening without losing its row
func (r *Repository) Deactivate(ticker domain.Ticker) error {
	res, err := r.db.Exec("UPDATE universe SET active = 0 WHERE ticker = ?", string(normalize(ticker)))
	if err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", ticker, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deactivate %s: %w", ticker, domain.ErrNotFound)
	}
	return nil
}

// Get returns one universe entry
func (r *Repository) Get(ticker domain.Ticker) (*Entry, error) {
	row := r.db.QueryRow(
		"SELECT ticker, name, sector, active, added_at FROM universe WHERE ticker = ?",
		string(normalize(ticker)),
	)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ActiveTickers returns the tickers currently eligible for screening,
// ordered for deterministic batch fetching
func (r *Repository) ActiveTickers() ([]domain.Ticker, error) {
	rows, err := r.db.Query("SELECT ticker FROM universe WHERE active = 1 ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query active universe: %w", err)
	}
	defer rows.Close()

	var tickers []domain.Ticker
	for rows.Next() {
		var tk string
		if err := rows.Scan(&tk); err != nil {
			return nil, fmt.Errorf("failed to scan universe row: %w", err)
		}
		tickers = append(tickers, domain.Ticker(tk))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating universe: %w", err)
	}
	return tickers, nil
}

// All returns every universe entry, active or not
func (r *Repository) All() ([]Entry, error) {
	rows, err := r.db.Query("SELECT ticker, name, sector, active, added_at FROM universe ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			tk      string
			active  int
			addedAt string
		)
		if err := rows.Scan(&tk, &e.Name, &e.Sector, &active, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan universe row: %w", err)
		}
		e.Ticker = domain.Ticker(tk)
		e.Active = active != 0
		e.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating universe: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e       Entry
		tk      string
		active  int
		addedAt string
	)
	err := row.Scan(&tk, &e.Name, &e.Sector, &active, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan universe entry: %w", err)
	}
	e.Ticker = domain.Ticker(tk)
	e.Active = active != 0
	e.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
	return &e, nil
}

func normalize(ticker domain.Ticker) domain.Ticker {
	return domain.Ticker(strings.ToUpper(strings.TrimSpace(string(ticker))))
}
