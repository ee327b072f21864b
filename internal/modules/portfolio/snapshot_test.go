package portfolio

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

func TestHoldingsBlobRoundTrip(t *testing.T) {
	original := []HoldingSnapshot{
		{Ticker: "AAPL", Shares: 12, Price: 180.5, Weight: 0.22, Sector: "Technology"},
		{Ticker: "JNJ", Shares: 30, Price: 155.0, Weight: 0.45, Sector: "Healthcare"},
		{Ticker: "XOM", Shares: 40, Price: 110.25, Weight: 0.33, Sector: "Energy"},
	}

	blob, err := MarshalHoldings(original)
	require.NoError(t, err)

	decoded, err := UnmarshalHoldings(blob)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestHoldingsBlobCarriesSchemaVersion(t *testing.T) {
	blob, err := MarshalHoldings(nil)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(blob), &doc))
	var version int
	require.NoError(t, json.Unmarshal(doc["schema_version"], &version))
	assert.Equal(t, HoldingsBlobVersion, version)
}

func TestUnmarshalHoldings_RejectsNewerSchema(t *testing.T) {
	_, err := UnmarshalHoldings(`{"schema_version": 99, "holdings": []}`)
	assert.Error(t, err)
}

func TestSnapshotOf(t *testing.T) {
	p := &Portfolio{
		ID:       "p1",
		Cash:     1000,
		Holdings: map[domain.Ticker]*Holding{},
	}
	p.Holdings["BBB"] = &Holding{
		Ticker: "BBB", Shares: 10, AvgCost: 100, Sector: "Tech",
		CurrentPrice: domain.Float(150), EntryDate: time.Now(),
	}
	p.Holdings["AAA"] = &Holding{
		Ticker: "AAA", Shares: 5, AvgCost: 200, Sector: "Health",
		EntryDate: time.Now(), // no refreshed price, falls back to cost
	}

	snap := SnapshotOf(p, "2026-08-31")

	// 1000 cash + 10*150 + 5*200
	assert.InDelta(t, 3500.0, snap.TotalValue, 1e-9)
	require.Len(t, snap.Holdings, 2)
	assert.Equal(t, "AAA", snap.Holdings[0].Ticker) // sorted by ticker
	assert.InDelta(t, 1000.0/3500.0, snap.Holdings[0].Weight, 1e-9)
	assert.Equal(t, "BBB", snap.Holdings[1].Ticker)
	assert.InDelta(t, 1500.0/3500.0, snap.Holdings[1].Weight, 1e-9)
}
