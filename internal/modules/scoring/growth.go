package scoring

import (
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// growthComponents scores top- and bottom-line expansion.
//
// Component weights: revenue growth 60%, earnings growth 40%.
func growthComponents(raw domain.RawFundamentals) []component {
	return []component{
		{"revenue_growth", 0.60, mapGrowthRate(raw.RevenueGrowth)},
		{"earnings_growth", 0.40, mapGrowthRate(raw.EarningsGrowth)},
	}
}

// mapGrowthRate centers at 50 for flat; +20% growth maxes out, -20% zeroes
func mapGrowthRate(g *float64) *float64 {
	if g == nil {
		return nil
	}
	return domain.Float(formulas.Clamp(50+*g*250, 0, 100))
}
