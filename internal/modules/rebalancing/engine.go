// Package rebalancing compares current holdings against a rescored universe
// and emits a bounded buy/sell trade plan. Each review cycle walks a strict
// state sequence; no state starts before its predecessor's outputs are
// final, because buy headroom depends on the post-sell composition.
package rebalancing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/fetch"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
)

// State is a review-cycle stage
type State string

const (
	StateLoaded         State = "LOADED"
	StateRescored       State = "RESCORED"
	StateSellFlagged    State = "SELL_FLAGGED"
	StateBuyCandidates  State = "BUY_CANDIDATES_FOUND"
	StateTradePlanBuilt State = "TRADE_PLAN_BUILT"
	StateValidated      State = "VALIDATED"
	StateApplied        State = "APPLIED"
	StateRejected       State = "REJECTED"
)

// DataFetcher supplies fresh snapshots for a set of tickers. The batch map
// always covers every requested ticker, failed ones carrying an error.
type DataFetcher interface {
	FetchBatch(ctx context.Context, tickers []domain.Ticker) map[domain.Ticker]fetch.Outcome
}

// CycleResult is the terminal outcome of one review cycle. An empty Plan
// with state APPLIED means no holdings met sell criteria: success, no
// turnover. REJECTED carries the violated invariant.
type CycleResult struct {
	State     State                  `json:"state"`
	Plan      []portfolio.TradeOrder `json:"plan"`
	Rejection string                 `json:"rejection,omitempty"`
	Snapshot  *portfolio.Snapshot    `json:"snapshot,omitempty"`
}

// Engine runs review cycles
type Engine struct {
	fetcher   DataFetcher
	scorer    *scoring.Engine
	store     portfolio.Store
	benchmark domain.BenchmarkSource
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a rebalance engine. benchmark may be nil; the criteria that
// need it are then skipped.
func New(fetcher DataFetcher, scorer *scoring.Engine, store portfolio.Store, benchmark domain.BenchmarkSource, log zerolog.Logger) *Engine {
	return &Engine{
		fetcher:   fetcher,
		scorer:    scorer,
		store:     store,
		benchmark: benchmark,
		log:       log.With().Str("component", "rebalancing").Logger(),
		now:       time.Now,
	}
}

// RunCycle executes one full review for a loaded portfolio against the
// candidate universe. Per-ticker fetch failures exclude that ticker and the
// cycle continues; a failure at validation or application aborts the whole
// cycle with no partial state change.
func (e *Engine) RunCycle(ctx context.Context, p *portfolio.Portfolio, universe []domain.Ticker) (*CycleResult, error) {
	log := e.log.With().Str("portfolio", p.ID).Logger()
	log.Info().Int("holdings", len(p.Holdings)).Int("universe", len(universe)).Msg("Review cycle started")

	// RESCORED: refresh and rescore every holding plus the rest of the
	// universe. Scores for unheld names are needed both for the
	// replacement sell rule and as the buy pool.
	held, candidateScores := e.rescore(ctx, p, universe)

	// Benchmark returns are cached per period for the cycle; "1mo" also
	// feeds the end-of-cycle snapshot's alpha.
	benchCache := map[string]*float64{"1mo": e.benchmarkReturn(ctx, "1mo")}

	// SELL_FLAGGED
	sells := e.flagSells(ctx, p, held, candidateScores, benchCache)
	log.Info().Int("sell_candidates", len(sells)).Msg("Sell flagging complete")

	// BUY_CANDIDATES_FOUND: only after sells are final; zero sells means
	// zero buys, no unforced turnover.
	var buys []scoring.FactorScore
	if len(sells) > 0 {
		buys = e.findBuyCandidates(p, sells, candidateScores)
	}
	log.Info().Int("buy_candidates", len(buys)).Msg("Buy screening complete")

	// TRADE_PLAN_BUILT
	plan := e.buildPlan(p, sells, buys)

	// VALIDATED and APPLIED are hard-abort zones: a deadline here must not
	// leave partial state.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cycle aborted before validation: %w", err)
	}
	if err := e.validate(p, plan); err != nil {
		log.Warn().Err(err).Msg("Trade plan rejected")
		return &CycleResult{State: StateRejected, Plan: plan, Rejection: err.Error()}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cycle aborted before application: %w", err)
	}
	if len(plan) > 0 {
		if err := e.store.ApplyTradeBatch(p.ID, plan); err != nil {
			return nil, fmt.Errorf("failed to apply trade plan: %w", err)
		}
		applyToModel(p, plan, e.now().UTC())
	}

	snap, err := e.snapshot(p, benchCache["1mo"])
	if err != nil {
		return nil, err
	}

	log.Info().Int("trades", len(plan)).Msg("Review cycle applied")
	return &CycleResult{State: StateApplied, Plan: plan, Snapshot: snap}, nil
}

// heldState pairs a holding's fresh score with the snapshot that produced
// it, so sell rules can inspect the underlying fundamentals
type heldState struct {
	score scoring.FactorScore
	raw   domain.RawFundamentals
}

// rescore fetches and scores the holdings and the unheld universe. Failed
// tickers are excluded from consideration, never fatal.
func (e *Engine) rescore(ctx context.Context, p *portfolio.Portfolio, universe []domain.Ticker) (map[domain.Ticker]heldState, []scoring.FactorScore) {
	heldSet := p.HeldTickers()
	all := make([]domain.Ticker, 0, len(universe)+len(p.Holdings))
	for tk := range p.Holdings {
		all = append(all, tk)
	}
	for _, tk := range universe {
		if !heldSet[tk] {
			all = append(all, tk)
		}
	}

	outcomes := e.fetcher.FetchBatch(ctx, all)

	held := make(map[domain.Ticker]heldState)
	var candidateScores []scoring.FactorScore
	var audit []scoring.FactorScore

	for tk, out := range outcomes {
		if out.Err != nil {
			e.log.Warn().Err(out.Err).Str("ticker", string(tk)).Msg("Ticker excluded from cycle")
			continue
		}
		score, err := e.scorer.Score(out.Raw, p.Strategy)
		if err != nil {
			e.log.Warn().Err(err).Str("ticker", string(tk)).Msg("Scoring failed, ticker excluded")
			continue
		}
		audit = append(audit, score)

		if heldSet[tk] {
			held[tk] = heldState{score: score, raw: out.Raw}
			h := p.Holdings[tk]
			h.CurrentScore = &score.Composite
			if score.Price != nil {
				h.CurrentPrice = score.Price
			}
			if err := e.store.UpdateHoldingMarks(p.ID, tk, score.Price, &score.Composite); err != nil {
				e.log.Warn().Err(err).Str("ticker", string(tk)).Msg("Failed to persist holding marks")
			}
		} else {
			candidateScores = append(candidateScores, score)
		}
	}

	if len(audit) > 0 {
		if err := e.store.SaveScores(audit); err != nil {
			e.log.Warn().Err(err).Msg("Failed to append score history")
		}
	}

	return held, candidateScores
}

// benchmarkReturn fetches the benchmark return for a period, degrading to
// nil when the source is missing or unavailable
func (e *Engine) benchmarkReturn(ctx context.Context, period string) *float64 {
	if e.benchmark == nil {
		return nil
	}
	ret, err := e.benchmark.FetchBenchmarkReturn(ctx, period)
	if err != nil {
		e.log.Warn().Err(err).Str("period", period).Msg("Benchmark unavailable, dependent criteria skipped")
		return nil
	}
	return &ret
}

// snapshot rolls up the post-trade state and persists it
func (e *Engine) snapshot(p *portfolio.Portfolio, benchReturn *float64) (*portfolio.Snapshot, error) {
	snap := portfolio.SnapshotOf(p, e.now().UTC().Format("2006-01-02"))

	last, err := e.store.LatestSnapshot(p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior snapshot: %w", err)
	}
	if last != nil && last.TotalValue > 0 {
		period := snap.TotalValue/last.TotalValue - 1
		snap.PeriodReturn = &period
		cumulative := period
		if last.CumulativeReturn != nil {
			cumulative = (1+*last.CumulativeReturn)*(1+period) - 1
		}
		snap.CumulativeReturn = &cumulative
		if benchReturn != nil {
			alpha := period - *benchReturn
			snap.BenchmarkReturn = benchReturn
			snap.Alpha = &alpha
		}
	}

	if err := e.store.SaveSnapshot(snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return &snap, nil
}

// applyToModel mirrors an applied trade batch onto the in-memory portfolio.
// now stamps the entry date of any position the batch opens.
func applyToModel(p *portfolio.Portfolio, plan []portfolio.TradeOrder, now time.Time) {
	for _, trade := range plan {
		switch trade.Action {
		case portfolio.ActionSell:
			p.Cash += trade.Value()
			if h, ok := p.Holdings[trade.Ticker]; ok {
				h.Shares -= trade.Shares
				if h.Shares <= 1e-9 {
					delete(p.Holdings, trade.Ticker)
				}
			}
		case portfolio.ActionBuy:
			p.Cash -= trade.Value()
			if h, ok := p.Holdings[trade.Ticker]; ok {
				total := h.Shares + trade.Shares
				h.AvgCost = (h.Shares*h.AvgCost + trade.Value()) / total
				h.Shares = total
				h.CurrentPrice = &trade.Price
			} else {
				price := trade.Price
				p.Holdings[trade.Ticker] = &portfolio.Holding{
					Ticker:       trade.Ticker,
					Shares:       trade.Shares,
					AvgCost:      trade.Price,
					EntryScore:   trade.Score,
					EntryDate:    now,
					Sector:       trade.Sector,
					CurrentPrice: &price,
				}
			}
		}
	}
}
