package domain

// Ticker identifies a security. Opaque and immutable.
type Ticker string

// RawFundamentals is a per-ticker snapshot of everything the scoring and
// valuation engines consume. Every metric is a pointer: nil means the
// provider did not report the field, which is a different fact from zero.
type RawFundamentals struct {
	Ticker Ticker `json:"ticker"`
	Sector string `json:"sector"`

	// Quote
	Price         *float64 `json:"price,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	FiftyTwoWkHigh *float64 `json:"fifty_two_wk_high,omitempty"`
	FiftyTwoWkLow  *float64 `json:"fifty_two_wk_low,omitempty"`

	// Valuation ratios
	TrailingPE    *float64 `json:"trailing_pe,omitempty"`
	PriceToBook   *float64 `json:"price_to_book,omitempty"`
	PriceToSales  *float64 `json:"price_to_sales,omitempty"`
	PEGRatio      *float64 `json:"peg_ratio,omitempty"`
	EVToEBITDA    *float64 `json:"ev_to_ebitda,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`

	// Profitability / liquidity / leverage
	ProfitMargin    *float64 `json:"profit_margin,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`
	ReturnOnEquity  *float64 `json:"return_on_equity,omitempty"`
	CurrentRatio    *float64 `json:"current_ratio,omitempty"`
	DebtToEquity    *float64 `json:"debt_to_equity,omitempty"`

	// Cash flow / balance sheet
	FreeCashFlow      *float64 `json:"free_cash_flow,omitempty"`
	OperatingCashflow *float64 `json:"operating_cashflow,omitempty"`
	TotalDebt         *float64 `json:"total_debt,omitempty"`
	TotalCash         *float64 `json:"total_cash,omitempty"`
	SharesOutstanding *float64 `json:"shares_outstanding,omitempty"`

	// Growth
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth *float64 `json:"earnings_growth,omitempty"`

	// Analyst sentiment
	AnalystScore *float64 `json:"analyst_score,omitempty"`  // 0 (strong sell) .. 1 (strong buy)
	TargetPrice  *float64 `json:"target_price,omitempty"`
	NumAnalysts  *int     `json:"num_analysts,omitempty"`
}

// Float returns a pointer to v, for building optional fields in literals.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

// Quote is the point-in-time market data slice of a security.
type Quote struct {
	Price          *float64
	MarketCap      *float64
	TrailingPE     *float64
	PriceToBook    *float64
	PriceToSales   *float64
	PEGRatio       *float64
	EVToEBITDA     *float64
	DividendYield  *float64
	Beta           *float64
	FiftyTwoWkHigh *float64
	FiftyTwoWkLow  *float64
	Sector         string
}

// Fundamentals is the balance-sheet and cash-flow slice of a security.
type Fundamentals struct {
	FreeCashFlow      *float64
	OperatingCashflow *float64
	TotalDebt         *float64
	TotalCash         *float64
	SharesOutstanding *float64
	DebtToEquity      *float64
	ProfitMargin      *float64
	OperatingMargin   *float64
	ReturnOnEquity    *float64
	CurrentRatio      *float64
	RevenueGrowth     *float64
	EarningsGrowth    *float64
}

// Ratings is the analyst sentiment slice of a security.
type Ratings struct {
	ConsensusScore *float64 // 0 (strong sell) .. 1 (strong buy)
	TargetPrice    *float64
	NumAnalysts    *int
}

// Merge assembles a RawFundamentals snapshot from the three provider slices.
// Any slice may be nil; its fields simply stay absent.
func Merge(ticker Ticker, q *Quote, f *Fundamentals, r *Ratings) RawFundamentals {
	raw := RawFundamentals{Ticker: ticker}
	if q != nil {
		raw.Sector = q.Sector
		raw.Price = q.Price
		raw.MarketCap = q.MarketCap
		raw.TrailingPE = q.TrailingPE
		raw.PriceToBook = q.PriceToBook
		raw.PriceToSales = q.PriceToSales
		raw.PEGRatio = q.PEGRatio
		raw.EVToEBITDA = q.EVToEBITDA
		raw.DividendYield = q.DividendYield
		raw.Beta = q.Beta
		raw.FiftyTwoWkHigh = q.FiftyTwoWkHigh
		raw.FiftyTwoWkLow = q.FiftyTwoWkLow
	}
	if f != nil {
		raw.FreeCashFlow = f.FreeCashFlow
		raw.OperatingCashflow = f.OperatingCashflow
		raw.TotalDebt = f.TotalDebt
		raw.TotalCash = f.TotalCash
		raw.SharesOutstanding = f.SharesOutstanding
		raw.DebtToEquity = f.DebtToEquity
		raw.ProfitMargin = f.ProfitMargin
		raw.OperatingMargin = f.OperatingMargin
		raw.ReturnOnEquity = f.ReturnOnEquity
		raw.CurrentRatio = f.CurrentRatio
		raw.RevenueGrowth = f.RevenueGrowth
		raw.EarningsGrowth = f.EarningsGrowth
	}
	if r != nil {
		raw.AnalystScore = r.ConsensusScore
		raw.TargetPrice = r.TargetPrice
		raw.NumAnalysts = r.NumAnalysts
	}
	return raw
}
