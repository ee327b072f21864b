package scoring

import (
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// riskComponents scores downside characteristics; a higher score means
// lower risk.
//
// Component weights: beta 55%, debt/equity 45%.
func riskComponents(raw domain.RawFundamentals) []component {
	return []component{
		{"beta", 0.55, mapBeta(raw.Beta)},
		{"debt_to_equity", 0.45, mapDebtToEquity(raw.DebtToEquity)},
	}
}

// mapBeta rewards low market sensitivity: 0.8 or below maxes out, 1.8+
// scores zero
func mapBeta(b *float64) *float64 {
	if b == nil {
		return nil
	}
	return domain.Float(formulas.Clamp(100*(1.8-*b), 0, 100))
}

// mapDebtToEquity penalizes leverage, capped at 200 (provider reports the
// ratio as a percentage)
func mapDebtToEquity(de *float64) *float64 {
	if de == nil {
		return nil
	}
	capped := formulas.Clamp(*de, 0, 200)
	return domain.Float((1 - capped/200) * 100)
}
