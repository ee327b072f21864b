package scoring

import (
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// qualityComponents scores profitability and balance-sheet health.
//
// Component weights: profit margin 30%, ROE 30%, operating margin 20%,
// current ratio 20%.
func qualityComponents(raw domain.RawFundamentals) []component {
	return []component{
		{"profit_margin", 0.30, mapMargin(raw.ProfitMargin)},
		{"roe", 0.30, mapROE(raw.ReturnOnEquity)},
		{"operating_margin", 0.20, mapMargin(raw.OperatingMargin)},
		{"current_ratio", 0.20, mapCurrentRatio(raw.CurrentRatio)},
	}
}

// mapMargin centers at 50 for break-even; a 20% margin maxes out
func mapMargin(m *float64) *float64 {
	if m == nil {
		return nil
	}
	return domain.Float(formulas.Clamp(50+*m*250, 0, 100))
}

// mapROE rewards return on equity up to 25%
func mapROE(r *float64) *float64 {
	if r == nil {
		return nil
	}
	return domain.Float(formulas.Clamp(*r/0.25*100, 0, 100))
}

// mapCurrentRatio rewards liquidity; a ratio of 2 maxes out
func mapCurrentRatio(cr *float64) *float64 {
	if cr == nil {
		return nil
	}
	return domain.Float(formulas.Clamp(*cr/2*100, 0, 100))
}
