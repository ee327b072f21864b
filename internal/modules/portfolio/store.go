package portfolio

import (
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
)

// Store is the persistence collaborator. ApplyTradeBatch must be atomic:
// all trades commit or none do.
type Store interface {
	LoadPortfolio(id string) (*Portfolio, error)
	ApplyTradeBatch(portfolioID string, trades []TradeOrder) error
	SaveSnapshot(snap Snapshot) error
	LatestSnapshot(portfolioID string) (*Snapshot, error)
	UpdateHoldingMarks(portfolioID string, ticker domain.Ticker, price, score *float64) error
	SaveScores(scores []scoring.FactorScore) error
}
