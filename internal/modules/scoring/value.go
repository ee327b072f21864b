package scoring

import (
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/formulas"
)

// valueComponents scores valuation ratios. Lower multiples score higher;
// the DCF upside component rewards price below intrinsic value.
//
// Component weights: P/E 25%, PEG 15%, P/B 15%, EV/EBITDA 15%, DCF 15%,
// P/S 10%, dividend yield 5%.
func valueComponents(raw domain.RawFundamentals, dcfUpside *float64) []component {
	return []component{
		{"pe", 0.25, mapPE(raw.TrailingPE)},
		{"peg", 0.15, mapPEG(raw.PEGRatio)},
		{"pb", 0.15, mapDescending(raw.PriceToBook, 0.5, 8)},
		{"ev_ebitda", 0.15, mapDescending(raw.EVToEBITDA, 4, 25)},
		{"dcf_upside", 0.15, mapUpside(dcfUpside)},
		{"ps", 0.10, mapDescending(raw.PriceToSales, 0.5, 10)},
		{"dividend_yield", 0.05, mapDividendYield(raw.DividendYield)},
	}
}

// mapDescending maps a ratio where lower is better: best at or below lo,
// worst at or above hi
func mapDescending(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	if *v <= 0 {
		// Negative multiples mean negative earnings/book/sales; poor, not absent
		return domain.Float(10)
	}
	return domain.Float(formulas.Clamp(100*(hi-*v)/(hi-lo), 0, 100))
}

func mapPE(pe *float64) *float64 {
	return mapDescending(pe, 5, 40)
}

func mapPEG(peg *float64) *float64 {
	return mapDescending(peg, 0.5, 3)
}

func mapDividendYield(y *float64) *float64 {
	if y == nil {
		return nil
	}
	// 4% yield or better maxes out
	return domain.Float(formulas.Clamp(*y/0.04*100, 0, 100))
}

func mapUpside(u *float64) *float64 {
	if u == nil {
		return nil
	}
	// -50% downside -> 0, fair value -> 50, +50% upside -> 100
	return domain.Float(formulas.Clamp(50+*u*100, 0, 100))
}
