package scoring

import (
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// momentumComponents scores price position and analyst sentiment.
//
// Component weights: 52-week range position 40%, analyst consensus 35%,
// target upside 25%.
func momentumComponents(raw domain.RawFundamentals) []component {
	return []component{
		{"range_position", 0.40, mapRangePosition(raw)},
		{"analyst_consensus", 0.35, mapConsensus(raw.AnalystScore)},
		{"target_upside", 0.25, mapTargetUpside(raw)},
	}
}

// mapRangePosition places the price within its 52-week range
func mapRangePosition(raw domain.RawFundamentals) *float64 {
	if raw.Price == nil || raw.FiftyTwoWkLow == nil || raw.FiftyTwoWkHigh == nil {
		return nil
	}
	pos := formulas.RangePosition(*raw.Price, *raw.FiftyTwoWkLow, *raw.FiftyTwoWkHigh)
	return domain.Float(pos * 100)
}

// mapConsensus maps the 0..1 consensus score onto 0..100
func mapConsensus(c *float64) *float64 {
	if c == nil {
		return nil
	}
	return domain.Float(formulas.Clamp(*c*100, 0, 100))
}

// mapTargetUpside scores the mean analyst target against the current price
func mapTargetUpside(raw domain.RawFundamentals) *float64 {
	if raw.TargetPrice == nil || raw.Price == nil || *raw.Price <= 0 {
		return nil
	}
	upside := (*raw.TargetPrice - *raw.Price) / *raw.Price
	// -30% -> 0, flat -> 50, +30% -> 100
	return domain.Float(formulas.Clamp(50+upside/0.30*50, 0, 100))
}
