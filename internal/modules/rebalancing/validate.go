package rebalancing

import (
	"fmt"
	"math"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
)

// weightTolerance absorbs float accumulation in weight checks
const weightTolerance = 1e-6

// validate simulates the plan against a copy of the portfolio and checks
// every structural invariant on the proposed post-trade state. The first
// violation rejects the whole plan; nothing is ever partially applied.
func (e *Engine) validate(p *portfolio.Portfolio, plan []portfolio.TradeOrder) error {
	if p.MaxMonthlyTurnover > 0 && len(plan) > p.MaxMonthlyTurnover {
		return &domain.InvariantViolationError{
			Invariant: "max_monthly_turnover",
			Detail:    fmt.Sprintf("%d trades planned, limit %d", len(plan), p.MaxMonthlyTurnover),
		}
	}
	if len(plan) == 0 {
		return nil
	}

	// NaN poisons every comparison below into a false negative, so
	// non-finite quantities are rejected before the simulation runs.
	for _, trade := range plan {
		if !finite(trade.Shares) || !finite(trade.Price) || trade.Shares <= 0 || trade.Price <= 0 {
			return &domain.InvariantViolationError{
				Invariant: "finite_order",
				Detail:    fmt.Sprintf("%s %s has shares %v at price %v", trade.Action, trade.Ticker, trade.Shares, trade.Price),
			}
		}
	}

	sim := clonePortfolio(p)
	applyToModel(sim, plan, e.now().UTC())

	if !finite(sim.Cash) || sim.Cash < -weightTolerance {
		return &domain.InvariantViolationError{
			Invariant: "cash_balance",
			Detail:    fmt.Sprintf("plan overdraws cash by %.2f", -sim.Cash),
		}
	}

	total := sim.TotalValue()
	if total <= 0 {
		return &domain.InvariantViolationError{Invariant: "portfolio_value", Detail: "post-trade value is not positive"}
	}

	// Position bounds apply to positions the plan touches. Legacy holdings
	// that drifted outside the bounds are flagged by the sell rules, not
	// grounds for rejecting an unrelated plan.
	touched := make(map[domain.Ticker]bool, len(plan))
	for _, trade := range plan {
		touched[trade.Ticker] = true
	}
	for tk, h := range sim.Holdings {
		if !touched[tk] {
			continue
		}
		weight := h.MarketValue() / total
		if weight < p.MinPositionPct-weightTolerance {
			return &domain.InvariantViolationError{
				Invariant: "min_position_pct",
				Detail:    fmt.Sprintf("%s would hold %.4f of portfolio, floor %.4f", tk, weight, p.MinPositionPct),
			}
		}
		if weight > p.MaxPositionPct+weightTolerance {
			return &domain.InvariantViolationError{
				Invariant: "max_position_pct",
				Detail:    fmt.Sprintf("%s would hold %.4f of portfolio, cap %.4f", tk, weight, p.MaxPositionPct),
			}
		}
	}

	if p.MaxSectorPct > 0 {
		for sector, weight := range sim.SectorWeights() {
			if weight > p.MaxSectorPct+weightTolerance {
				return &domain.InvariantViolationError{
					Invariant: "max_sector_pct",
					Detail:    fmt.Sprintf("%s would hold %.4f of portfolio, cap %.4f", sector, weight, p.MaxSectorPct),
				}
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clonePortfolio deep-copies the mutable state the simulation touches
func clonePortfolio(p *portfolio.Portfolio) *portfolio.Portfolio {
	clone := *p
	clone.Holdings = make(map[domain.Ticker]*portfolio.Holding, len(p.Holdings))
	for tk, h := range p.Holdings {
		hc := *h
		clone.Holdings[tk] = &hc
	}
	return &clone
}
