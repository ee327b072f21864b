package portfolio

import (
	"time"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

// Constraints are the per-portfolio selection and sizing bounds. Percentage
// fields are decimals in [0,1].
type Constraints struct {
	MinPositionPct     float64 `json:"min_position_pct"`
	MaxPositionPct     float64 `json:"max_position_pct"`
	MaxSectorPct       float64 `json:"max_sector_pct"`
	MaxMonthlyTurnover int     `json:"max_monthly_turnover"`
	TargetHoldings     int     `json:"target_holdings"`
}

// Holding is one owned position. CurrentPrice and CurrentScore are nil
// until the review cycle refreshes them.
type Holding struct {
	Ticker       domain.Ticker `json:"ticker"`
	Shares       float64       `json:"shares"`
	AvgCost      float64       `json:"avg_cost"`
	EntryScore   float64       `json:"entry_score"`
	EntryDate    time.Time     `json:"entry_date"`
	Sector       string        `json:"sector"`
	CurrentPrice *float64      `json:"current_price,omitempty"`
	CurrentScore *float64      `json:"current_score,omitempty"`
}

// MarketValue is shares times the freshest known price, falling back to
// cost basis when the price has not been refreshed yet
func (h *Holding) MarketValue() float64 {
	price := h.AvgCost
	if h.CurrentPrice != nil {
		price = *h.CurrentPrice
	}
	return h.Shares * price
}

// Portfolio owns a set of holdings, unique per ticker. Only the rebalance
// engine's trade application mutates it.
type Portfolio struct {
	ID        string                         `json:"id"`
	Name      string                         `json:"name"`
	Strategy  string                         `json:"strategy"`
	Cash      float64                        `json:"cash"`
	Holdings  map[domain.Ticker]*Holding     `json:"holdings"`
	CreatedAt time.Time                      `json:"created_at"`
	Constraints
}

// TotalValue is cash plus the market value of every holding
func (p *Portfolio) TotalValue() float64 {
	total := p.Cash
	for _, h := range p.Holdings {
		total += h.MarketValue()
	}
	return total
}

// SectorWeights returns each sector's share of total portfolio value
func (p *Portfolio) SectorWeights() map[string]float64 {
	total := p.TotalValue()
	weights := make(map[string]float64)
	if total <= 0 {
		return weights
	}
	for _, h := range p.Holdings {
		weights[h.Sector] += h.MarketValue() / total
	}
	return weights
}

// HeldTickers returns the set of held tickers
func (p *Portfolio) HeldTickers() map[domain.Ticker]bool {
	held := make(map[domain.Ticker]bool, len(p.Holdings))
	for tk := range p.Holdings {
		held[tk] = true
	}
	return held
}

// TradeAction is BUY or SELL
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// TradeOrder is one planned trade. Ephemeral: it exists only inside a trade
// plan until the store applies it. Score and Sector ride along so a BUY can
// seed the new holding's entry state.
type TradeOrder struct {
	Ticker domain.Ticker `json:"ticker"`
	Action TradeAction   `json:"action"`
	Shares float64       `json:"shares"`
	Price  float64       `json:"price"`
	Reason string        `json:"reason"`
	Score  float64       `json:"score,omitempty"`
	Sector string        `json:"sector,omitempty"`
}

// Value is the cash value of the order
func (t TradeOrder) Value() float64 {
	return t.Shares * t.Price
}
