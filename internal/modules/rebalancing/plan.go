package rebalancing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/scoring"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/selection"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// findBuyCandidates screens the scored, unheld universe down to the names
// worth buying: top decile by composite, a tradeable price, and sector
// headroom measured against the post-sell composition. At most one buy per
// actioned sell, and never enough combined trades to breach the turnover cap.
func (e *Engine) findBuyCandidates(p *portfolio.Portfolio, sells []sellFlag, candidates []scoring.FactorScore) []scoring.FactorScore {
	if len(candidates) == 0 {
		return nil
	}

	floor := topDecileFloor(candidates)

	// Sector counts after the flagged sells leave
	selling := make(map[string]bool, len(sells))
	for _, s := range sells {
		selling[string(s.holding.Ticker)] = true
	}
	sectorCounts := make(map[string]int)
	for tk, h := range p.Holdings {
		if !selling[string(tk)] {
			sectorCounts[h.Sector]++
		}
	}
	sectorCap := selection.SectorCap(p.TargetHoldings, p.MaxSectorPct)

	maxBuys := len(sells)
	if p.MaxMonthlyTurnover > 0 && maxBuys > p.MaxMonthlyTurnover-len(sells) {
		maxBuys = p.MaxMonthlyTurnover - len(sells)
	}
	if maxBuys <= 0 {
		return nil
	}

	selection.Rank(candidates)

	var chosen []scoring.FactorScore
	for _, c := range candidates {
		if len(chosen) == maxBuys {
			break
		}
		if c.Composite < floor || c.Price == nil || *c.Price <= 0 {
			continue
		}
		if sectorCounts[c.Sector] >= sectorCap {
			e.log.Debug().Str("ticker", string(c.Ticker)).Str("sector", c.Sector).Msg("Buy candidate rejected, sector at cap")
			continue
		}
		sectorCounts[c.Sector]++
		chosen = append(chosen, c)
	}
	return chosen
}

// topDecileFloor returns the composite score at the 90th percentile of the
// scored universe
func topDecileFloor(candidates []scoring.FactorScore) float64 {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Composite
	}
	sort.Float64s(scores)
	return stat.Quantile(0.9, stat.Empirical, scores, nil)
}

// buildPlan turns flagged sells and screened buys into concrete orders.
// Sells liquidate fully at the freshest price. Buy sizing draws on the sell
// proceeds plus idle cash, split by relative composite score so conviction
// drives position size, then clamped to the per-position bounds.
func (e *Engine) buildPlan(p *portfolio.Portfolio, sells []sellFlag, buys []scoring.FactorScore) []portfolio.TradeOrder {
	plan := make([]portfolio.TradeOrder, 0, len(sells)+len(buys))

	proceeds := 0.0
	for _, s := range sells {
		h := s.holding
		price := h.AvgCost
		if h.CurrentPrice != nil {
			price = *h.CurrentPrice
		}
		proceeds += h.Shares * price
		plan = append(plan, portfolio.TradeOrder{
			Ticker: h.Ticker,
			Action: portfolio.ActionSell,
			Shares: h.Shares,
			Price:  price,
			Reason: s.reason,
		})
	}

	if len(buys) == 0 {
		return plan
	}

	pool := proceeds + p.Cash
	total := p.TotalValue()
	minValue := p.MinPositionPct * total
	maxValue := p.MaxPositionPct * total

	scoreSum := 0.0
	for _, b := range buys {
		scoreSum += b.Composite
	}
	if scoreSum <= 0 {
		e.log.Warn().Int("buys", len(buys)).Msg("Buy candidates carry no score weight, selling without replacement")
		return plan
	}

	budgets := make([]float64, len(buys))
	budgetSum := 0.0
	for i, b := range buys {
		budgets[i] = formulas.Clamp(pool*b.Composite/scoreSum, minValue, maxValue)
		budgetSum += budgets[i]
	}
	// Clamping up can overdraw the pool; scale back proportionally and
	// drop any buy that no longer clears the minimum position size.
	if budgetSum > pool && budgetSum > 0 {
		scale := pool / budgetSum
		for i := range budgets {
			budgets[i] *= scale
		}
	}

	// Weakest sell slot receives the strongest buy; sells arrive weakest
	// first and buys strongest first, so index i pairs with index i.
	for i, b := range buys {
		if budgets[i] < minValue-1e-9 {
			e.log.Debug().Str("ticker", string(b.Ticker)).Msg("Buy dropped, budget below minimum position size")
			continue
		}
		reason := fmt.Sprintf("composite %.1f, top decile of universe", b.Composite)
		if i < len(sells) {
			reason = fmt.Sprintf("replaces %s; composite %.1f", sells[i].holding.Ticker, b.Composite)
		}
		plan = append(plan, portfolio.TradeOrder{
			Ticker: b.Ticker,
			Action: portfolio.ActionBuy,
			Shares: budgets[i] / *b.Price,
			Price:  *b.Price,
			Reason: reason,
			Score:  b.Composite,
			Sector: b.Sector,
		})
	}
	return plan
}
