package portfolio

import (
	"encoding/json"
	"fmt"
	"sort"
)

// HoldingsBlobVersion is bumped whenever the serialized holding shape
// changes, so historical snapshot rows stay readable.
const HoldingsBlobVersion = 1

// Snapshot is an immutable point-in-time rollup of a portfolio, created once
// per review cycle. Return fields are nil when no prior snapshot or
// benchmark was available.
type Snapshot struct {
	PortfolioID      string   `json:"portfolio_id"`
	Date             string   `json:"date"` // YYYY-MM-DD
	TotalValue       float64  `json:"total_value"`
	PeriodReturn     *float64 `json:"period_return,omitempty"`
	CumulativeReturn *float64 `json:"cumulative_return,omitempty"`
	BenchmarkReturn  *float64 `json:"benchmark_return,omitempty"`
	Alpha            *float64 `json:"alpha,omitempty"`
	Holdings         []HoldingSnapshot `json:"holdings"`
}

// HoldingSnapshot is the serialized form of one holding inside the blob
type HoldingSnapshot struct {
	Ticker string  `json:"ticker"`
	Shares float64 `json:"shares"`
	Price  float64 `json:"price"`
	Weight float64 `json:"weight"`
	Sector string  `json:"sector"`
}

// holdingsBlob is the stored JSON document. The schema version travels with
// the data, not the code.
type holdingsBlob struct {
	SchemaVersion int               `json:"schema_version"`
	Holdings      []HoldingSnapshot `json:"holdings"`
}

// SnapshotOf rolls up the current portfolio state
func SnapshotOf(p *Portfolio, date string) Snapshot {
	total := p.TotalValue()
	snap := Snapshot{
		PortfolioID: p.ID,
		Date:        date,
		TotalValue:  total,
	}
	for _, h := range p.Holdings {
		price := h.AvgCost
		if h.CurrentPrice != nil {
			price = *h.CurrentPrice
		}
		weight := 0.0
		if total > 0 {
			weight = h.MarketValue() / total
		}
		snap.Holdings = append(snap.Holdings, HoldingSnapshot{
			Ticker: string(h.Ticker),
			Shares: h.Shares,
			Price:  price,
			Weight: weight,
			Sector: h.Sector,
		})
	}
	sort.Slice(snap.Holdings, func(i, j int) bool { return snap.Holdings[i].Ticker < snap.Holdings[j].Ticker })
	return snap
}

// MarshalHoldings serializes the holdings blob with its schema version
func MarshalHoldings(holdings []HoldingSnapshot) (string, error) {
	if holdings == nil {
		holdings = []HoldingSnapshot{}
	}
	data, err := json.Marshal(holdingsBlob{SchemaVersion: HoldingsBlobVersion, Holdings: holdings})
	if err != nil {
		return "", fmt.Errorf("failed to marshal holdings blob: %w", err)
	}
	return string(data), nil
}

// UnmarshalHoldings reads a holdings blob, rejecting versions this code does
// not understand
func UnmarshalHoldings(data string) ([]HoldingSnapshot, error) {
	var blob holdingsBlob
	if err := json.Unmarshal([]byte(data), &blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal holdings blob: %w", err)
	}
	if blob.SchemaVersion > HoldingsBlobVersion {
		return nil, fmt.Errorf("holdings blob schema version %d is newer than supported %d", blob.SchemaVersion, HoldingsBlobVersion)
	}
	return blob.Holdings, nil
}
