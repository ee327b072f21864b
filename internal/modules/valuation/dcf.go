// Package valuation implements a discounted-cash-flow engine: a five-year
// FCF projection with a Gordon-growth terminal value, plus a three-point
// bear/base/bull sensitivity.
package valuation

import (
	"fmt"
	"math"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

const (
	defaultYears          = 5
	defaultTerminalGrowth = 0.03
	moderateGrowth        = 0.08 // fallback when revenue growth is unknown
	maxFCFGrowth          = 0.25
)

// Discount rates by market-cap tier. Larger caps carry lower implied risk.
const (
	waccMega  = 0.09  // >= 200B
	waccLarge = 0.095 // >= 10B
	waccMid   = 0.105 // >= 2B
	waccSmall = 0.115 // >= 300M
	waccMicro = 0.125
)

// Assumptions is the parameter set one projection runs under
type Assumptions struct {
	DiscountRate   float64 `json:"discount_rate"`
	FCFGrowth      float64 `json:"fcf_growth"`
	TerminalGrowth float64 `json:"terminal_growth"`
	Years          int     `json:"years"`
}

// YearProjection is one projected year of free cash flow
type YearProjection struct {
	Year         int     `json:"year"`
	FCF          float64 `json:"fcf"`
	PresentValue float64 `json:"present_value"`
}

// Scenario is one point of the sensitivity. Valid is false when the Gordon
// denominator (discount - terminal growth) is not positive; the intrinsic
// value is then meaningless and must not be used.
type Scenario struct {
	Name           string      `json:"name"`
	Assumptions    Assumptions `json:"assumptions"`
	IntrinsicValue float64     `json:"intrinsic_value"`
	Valid          bool        `json:"valid"`
}

// Result is the full DCF output for one ticker
type Result struct {
	Ticker          domain.Ticker    `json:"ticker"`
	Assumptions     Assumptions      `json:"assumptions"`
	Projections     []YearProjection `json:"projections"`
	TerminalValue   float64          `json:"terminal_value"`
	TerminalValuePV float64          `json:"terminal_value_pv"`
	EnterpriseValue float64          `json:"enterprise_value"`
	EquityValue     float64          `json:"equity_value"`
	IntrinsicValue  float64          `json:"intrinsic_value"` // per share, base case
	Bear            Scenario         `json:"bear"`
	Base            Scenario         `json:"base"`
	Bull            Scenario         `json:"bull"`
}

// Inputs are the fundamentals a DCF consumes. FreeCashFlow and
// SharesOutstanding are mandatory; everything else has defaults.
type Inputs struct {
	Ticker            domain.Ticker
	FreeCashFlow      *float64
	SharesOutstanding *float64
	TotalDebt         *float64
	TotalCash         *float64
	RevenueGrowth     *float64
	MarketCap         *float64
}

// InputsFromRaw extracts DCF inputs from a fundamentals snapshot
func InputsFromRaw(raw domain.RawFundamentals) Inputs {
	return Inputs{
		Ticker:            raw.Ticker,
		FreeCashFlow:      raw.FreeCashFlow,
		SharesOutstanding: raw.SharesOutstanding,
		TotalDebt:         raw.TotalDebt,
		TotalCash:         raw.TotalCash,
		RevenueGrowth:     raw.RevenueGrowth,
		MarketCap:         raw.MarketCap,
	}
}

// Options override the defaulted assumptions
type Options struct {
	DiscountRate   *float64
	FCFGrowth      *float64
	TerminalGrowth *float64
	Years          int
}

// Compute runs the DCF. It fails with domain.ErrInvalidAssumption when free
// cash flow or shares outstanding are absent, or when the base-case discount
// rate does not exceed the terminal growth rate.
func Compute(in Inputs, opts Options) (*Result, error) {
	if in.FreeCashFlow == nil {
		return nil, fmt.Errorf("%w: %s: free cash flow missing", domain.ErrInvalidAssumption, in.Ticker)
	}
	if in.SharesOutstanding == nil || *in.SharesOutstanding <= 0 {
		return nil, fmt.Errorf("%w: %s: shares outstanding missing", domain.ErrInvalidAssumption, in.Ticker)
	}

	base := Assumptions{
		DiscountRate:   discountRateFor(in.MarketCap),
		TerminalGrowth: defaultTerminalGrowth,
		Years:          defaultYears,
	}
	if opts.Years > 0 {
		base.Years = opts.Years
	}
	if opts.TerminalGrowth != nil {
		base.TerminalGrowth = *opts.TerminalGrowth
	}
	if opts.DiscountRate != nil {
		base.DiscountRate = *opts.DiscountRate
	}
	if opts.FCFGrowth != nil {
		base.FCFGrowth = *opts.FCFGrowth
	} else {
		base.FCFGrowth = growthFor(in.RevenueGrowth, base.TerminalGrowth)
	}

	if base.DiscountRate <= base.TerminalGrowth {
		return nil, fmt.Errorf("%w: %s: discount rate %.4f not above terminal growth %.4f",
			domain.ErrInvalidAssumption, in.Ticker, base.DiscountRate, base.TerminalGrowth)
	}

	fcf0 := *in.FreeCashFlow
	shares := *in.SharesOutstanding
	netDebt := value(in.TotalDebt) - value(in.TotalCash)

	res := &Result{Ticker: in.Ticker, Assumptions: base}

	// Base projection, kept year by year for the result detail
	discounted := 0.0
	for y := 1; y <= base.Years; y++ {
		fcf := fcf0 * math.Pow(1+base.FCFGrowth, float64(y))
		pv := fcf / math.Pow(1+base.DiscountRate, float64(y))
		discounted += pv
		res.Projections = append(res.Projections, YearProjection{Year: y, FCF: fcf, PresentValue: pv})
	}

	finalFCF := fcf0 * math.Pow(1+base.FCFGrowth, float64(base.Years))
	res.TerminalValue = finalFCF * (1 + base.TerminalGrowth) / (base.DiscountRate - base.TerminalGrowth)
	res.TerminalValuePV = res.TerminalValue / math.Pow(1+base.DiscountRate, float64(base.Years))
	res.EnterpriseValue = discounted + res.TerminalValuePV
	res.EquityValue = res.EnterpriseValue - netDebt
	res.IntrinsicValue = res.EquityValue / shares

	res.Base = Scenario{Name: "base", Assumptions: base, IntrinsicValue: res.IntrinsicValue, Valid: true}
	res.Bear = runScenario("bear", bearAssumptions(base), fcf0, shares, netDebt)
	res.Bull = runScenario("bull", bullAssumptions(base), fcf0, shares, netDebt)

	return res, nil
}

func bearAssumptions(base Assumptions) Assumptions {
	return Assumptions{
		DiscountRate:   base.DiscountRate + 0.02,
		FCFGrowth:      math.Max(0, base.FCFGrowth-0.02),
		TerminalGrowth: math.Max(0.02, base.TerminalGrowth-0.01),
		Years:          base.Years,
	}
}

func bullAssumptions(base Assumptions) Assumptions {
	return Assumptions{
		DiscountRate:   math.Max(0.05, base.DiscountRate-0.02),
		FCFGrowth:      math.Min(maxFCFGrowth, base.FCFGrowth+0.02),
		TerminalGrowth: math.Min(0.04, base.TerminalGrowth+0.01),
		Years:          base.Years,
	}
}

// runScenario recomputes the projection under adjusted assumptions. A
// non-positive Gordon denominator flags the scenario invalid instead of
// producing an infinite or negative terminal value.
func runScenario(name string, a Assumptions, fcf0, shares, netDebt float64) Scenario {
	if a.DiscountRate <= a.TerminalGrowth {
		return Scenario{Name: name, Assumptions: a, Valid: false}
	}

	discounted := 0.0
	for y := 1; y <= a.Years; y++ {
		fcf := fcf0 * math.Pow(1+a.FCFGrowth, float64(y))
		discounted += fcf / math.Pow(1+a.DiscountRate, float64(y))
	}
	finalFCF := fcf0 * math.Pow(1+a.FCFGrowth, float64(a.Years))
	terminal := finalFCF * (1 + a.TerminalGrowth) / (a.DiscountRate - a.TerminalGrowth)
	ev := discounted + terminal/math.Pow(1+a.DiscountRate, float64(a.Years))

	return Scenario{
		Name:           name,
		Assumptions:    a,
		IntrinsicValue: (ev - netDebt) / shares,
		Valid:          true,
	}
}

// discountRateFor returns the WACC default for a market-cap tier
func discountRateFor(marketCap *float64) float64 {
	if marketCap == nil {
		return waccMid
	}
	switch mc := *marketCap; {
	case mc >= 200e9:
		return waccMega
	case mc >= 10e9:
		return waccLarge
	case mc >= 2e9:
		return waccMid
	case mc >= 300e6:
		return waccSmall
	default:
		return waccMicro
	}
}

// growthFor derives the FCF growth assumption from historical revenue
// growth, decayed toward the terminal rate
func growthFor(revenueGrowth *float64, terminal float64) float64 {
	if revenueGrowth == nil {
		return (terminal + moderateGrowth) / 2
	}
	if *revenueGrowth < 0 {
		return terminal
	}
	g := math.Min(*revenueGrowth, maxFCFGrowth)
	return g*0.7 + terminal*0.3
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
