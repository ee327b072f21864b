package rebalancing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
)

const (
	// scoreDropThreshold flags a holding whose composite fell this many
	// points below its entry score
	scoreDropThreshold = 15.0

	// benchmarkLag flags a holding trailing the benchmark by more than
	// this many percentage points over its holding period
	benchmarkLag = 0.10

	// replacementMargin flags a holding when an unheld candidate scores
	// at least this many points higher
	replacementMargin = 20.0

	// deteriorationLeverage is the debt-to-equity level (percent) above
	// which negative margins count as fundamentals deterioration
	deteriorationLeverage = 150.0
)

// sellFlag is a holding that met at least one sell criterion
type sellFlag struct {
	holding *portfolio.Holding
	score   float64
	reason  string
}

// flagSells evaluates every rescored holding against the sell criteria.
// A holding whose fetch failed this cycle has no entry in held and is left
// alone. Flagged holdings come back weakest first, capped at the portfolio's
// monthly turnover limit.
func (e *Engine) flagSells(ctx context.Context, p *portfolio.Portfolio, held map[domain.Ticker]heldState, candidates []scoring.FactorScore, benchCache map[string]*float64) []sellFlag {
	best := bestCandidateScore(candidates)

	var flagged []sellFlag
	for tk, hs := range held {
		h := p.Holdings[tk]
		current := hs.score.Composite

		var reason string
		switch {
		case current < h.EntryScore-scoreDropThreshold:
			reason = fmt.Sprintf("score fell to %.1f, %.1f points below entry", current, h.EntryScore-current)
		case e.lagsBenchmark(ctx, h, benchCache):
			reason = fmt.Sprintf("trailing benchmark by more than %.0f points over holding period", benchmarkLag*100)
		case best != nil && *best >= current+replacementMargin:
			reason = fmt.Sprintf("candidate scoring %.1f available against %.1f", *best, current)
		case fundamentalsDeteriorated(hs.raw):
			reason = "leverage elevated with negative margins"
		default:
			continue
		}

		e.log.Info().Str("ticker", string(tk)).Str("reason", reason).Msg("Holding flagged for sale")
		flagged = append(flagged, sellFlag{holding: h, score: current, reason: reason})
	}

	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].score != flagged[j].score {
			return flagged[i].score < flagged[j].score
		}
		return flagged[i].holding.Ticker < flagged[j].holding.Ticker
	})
	if p.MaxMonthlyTurnover > 0 && len(flagged) > p.MaxMonthlyTurnover {
		flagged = flagged[:p.MaxMonthlyTurnover]
	}
	return flagged
}

// lagsBenchmark reports whether the holding's realized return trails the
// benchmark's return over the same period by more than the lag threshold.
// Skipped, never a pass or fail, when the benchmark is unavailable.
func (e *Engine) lagsBenchmark(ctx context.Context, h *portfolio.Holding, cache map[string]*float64) bool {
	if e.benchmark == nil || h.CurrentPrice == nil || h.AvgCost <= 0 {
		return false
	}
	period := periodSince(h.EntryDate, e.now())
	bench, ok := cache[period]
	if !ok {
		bench = e.benchmarkReturn(ctx, period)
		cache[period] = bench
	}
	if bench == nil {
		return false
	}
	realized := (*h.CurrentPrice - h.AvgCost) / h.AvgCost
	return realized < *bench-benchmarkLag
}

// fundamentalsDeteriorated is the point-in-time deterioration signal: heavy
// leverage combined with an unprofitable business.
func fundamentalsDeteriorated(raw domain.RawFundamentals) bool {
	if raw.DebtToEquity == nil || raw.ProfitMargin == nil {
		return false
	}
	return *raw.DebtToEquity > deteriorationLeverage && *raw.ProfitMargin < 0
}

func bestCandidateScore(candidates []scoring.FactorScore) *float64 {
	var best *float64
	for i := range candidates {
		c := candidates[i].Composite
		if best == nil || c > *best {
			v := c
			best = &v
		}
	}
	return best
}

// periodSince buckets a holding's age into the provider's return periods
func periodSince(entry, now time.Time) string {
	age := now.Sub(entry)
	switch {
	case age < 60*24*time.Hour:
		return "1mo"
	case age < 150*24*time.Hour:
		return "3mo"
	case age < 270*24*time.Hour:
		return "6mo"
	case age < 540*24*time.Hour:
		return "1y"
	case age < 1280*24*time.Hour:
		return "2y"
	default:
		return "5y"
	}
}
