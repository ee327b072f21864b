// Package research orchestrates the two top-level workflows: building a
// portfolio from scratch and running the periodic review cycle.
package research

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/fetch"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/rebalancing"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/selection"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// UniverseSource lists the tickers eligible for screening
type UniverseSource interface {
	ActiveTickers() ([]domain.Ticker, error)
}

// BuildResult summarizes an initial portfolio construction
type BuildResult struct {
	Scored   int                    `json:"scored"`
	Chosen   []scoring.FactorScore  `json:"chosen"`
	Rejected []domain.Ticker        `json:"rejected_for_sector"`
	Orders   []portfolio.TradeOrder `json:"orders"`
	Snapshot *portfolio.Snapshot    `json:"snapshot,omitempty"`
}

// Service runs research workflows against one store and one data provider
type Service struct {
	store    portfolio.Store
	universe UniverseSource
	fetcher  rebalancing.DataFetcher
	scorer   *scoring.Engine
	selector *selection.Selector
	engine   *rebalancing.Engine
	log      zerolog.Logger
	locks    keyedMutex
	now      func() time.Time
}

// NewService wires the research workflows. The fetch config governs the one
// shared throttle all workflow fetches go through.
func NewService(
	provider domain.MarketDataProvider,
	bench domain.BenchmarkSource,
	store portfolio.Store,
	universe UniverseSource,
	fetchCfg fetch.Config,
	log zerolog.Logger,
) *Service {
	scorer := scoring.NewEngine(log)
	fetcher := newBatchFetcher(fetchCfg, provider, log)
	return &Service{
		store:    store,
		universe: universe,
		fetcher:  fetcher,
		scorer:   scorer,
		selector: selection.New(log),
		engine:   rebalancing.New(fetcher, scorer, store, bench, log),
		log:      log.With().Str("component", "research").Logger(),
		now:      time.Now,
	}
}

// BuildPortfolio screens the universe and invests the portfolio's cash into
// an initial set of positions. The portfolio must exist and hold nothing yet.
func (s *Service) BuildPortfolio(ctx context.Context, id string) (*BuildResult, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	p, err := s.store.LoadPortfolio(id)
	if err != nil {
		return nil, err
	}
	if len(p.Holdings) > 0 {
		return nil, fmt.Errorf("portfolio %s already has holdings, run a review instead", id)
	}
	if p.Cash <= 0 {
		return nil, fmt.Errorf("portfolio %s has no cash to invest", id)
	}

	tickers, err := s.universe.ActiveTickers()
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("universe is empty, nothing to screen")
	}

	s.log.Info().Str("portfolio", id).Int("universe", len(tickers)).Msg("Building portfolio")

	scored := s.scoreUniverse(ctx, p.Strategy, tickers)
	if len(scored) == 0 {
		return nil, fmt.Errorf("%w: no candidate could be scored", domain.ErrDataUnavailable)
	}
	if err := s.store.SaveScores(scored); err != nil {
		s.log.Warn().Err(err).Msg("Failed to append score history")
	}

	sel := s.selector.Select(scored, p.TargetHoldings, selection.Constraints{MaxSectorPct: p.MaxSectorPct})
	if len(sel.Chosen) == 0 {
		return nil, fmt.Errorf("%w: no candidate admitted under sector constraints", domain.ErrConstraintUnsatisfiable)
	}

	orders := sizeInitialBuys(p, sel.Chosen)
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: cash too small to fund any position", domain.ErrConstraintUnsatisfiable)
	}

	if err := s.store.ApplyTradeBatch(id, orders); err != nil {
		return nil, fmt.Errorf("failed to apply initial buys: %w", err)
	}

	// Reload so the snapshot reflects exactly what was persisted
	p, err = s.store.LoadPortfolio(id)
	if err != nil {
		return nil, err
	}
	snap := portfolio.SnapshotOf(p, s.now().UTC().Format("2006-01-02"))
	if err := s.store.SaveSnapshot(snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.log.Info().Str("portfolio", id).Int("positions", len(orders)).Msg("Portfolio built")
	return &BuildResult{
		Scored:   len(scored),
		Chosen:   sel.Chosen,
		Rejected: sel.RejectedForSector,
		Orders:   orders,
		Snapshot: &snap,
	}, nil
}

// RunReview executes one full review cycle for a portfolio
func (s *Service) RunReview(ctx context.Context, id string) (*rebalancing.CycleResult, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	p, err := s.store.LoadPortfolio(id)
	if err != nil {
		return nil, err
	}

	tickers, err := s.universe.ActiveTickers()
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	return s.engine.RunCycle(ctx, p, tickers)
}

// scoreUniverse fetches and scores the given tickers, dropping failures
func (s *Service) scoreUniverse(ctx context.Context, strategy string, tickers []domain.Ticker) []scoring.FactorScore {
	outcomes := s.fetcher.FetchBatch(ctx, tickers)

	scored := make([]scoring.FactorScore, 0, len(outcomes))
	for tk, out := range outcomes {
		if out.Err != nil {
			s.log.Warn().Err(out.Err).Str("ticker", string(tk)).Msg("Ticker excluded from screening")
			continue
		}
		score, err := s.scorer.Score(out.Raw, strategy)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", string(tk)).Msg("Scoring failed, ticker excluded")
			continue
		}
		scored = append(scored, score)
	}
	return scored
}

// sizeInitialBuys splits the cash balance across the chosen candidates,
// score weighted and clamped to the per-position bounds. Candidates without
// a price cannot be sized and are skipped.
func sizeInitialBuys(p *portfolio.Portfolio, chosen []scoring.FactorScore) []portfolio.TradeOrder {
	var priced []scoring.FactorScore
	scoreSum := 0.0
	for _, c := range chosen {
		if c.Price == nil || *c.Price <= 0 {
			continue
		}
		priced = append(priced, c)
		scoreSum += c.Composite
	}
	if len(priced) == 0 || scoreSum <= 0 {
		return nil
	}

	minValue := p.MinPositionPct * p.Cash
	maxValue := p.MaxPositionPct * p.Cash

	budgets := make([]float64, len(priced))
	budgetSum := 0.0
	for i, c := range priced {
		budgets[i] = formulas.Clamp(p.Cash*c.Composite/scoreSum, minValue, maxValue)
		budgetSum += budgets[i]
	}
	if budgetSum > p.Cash && budgetSum > 0 {
		scale := p.Cash / budgetSum
		for i := range budgets {
			budgets[i] *= scale
		}
	}

	var orders []portfolio.TradeOrder
	for i, c := range priced {
		if budgets[i] < minValue-1e-9 {
			continue
		}
		orders = append(orders, portfolio.TradeOrder{
			Ticker: c.Ticker,
			Action: portfolio.ActionBuy,
			Shares: budgets[i] / *c.Price,
			Price:  *c.Price,
			Reason: fmt.Sprintf("initial build, composite %.1f", c.Composite),
			Score:  c.Composite,
			Sector: c.Sector,
		})
	}
	return orders
}
