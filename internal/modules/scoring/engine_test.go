package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/logger"
)

func fullSnapshot() domain.RawFundamentals {
	return domain.RawFundamentals{
		Ticker: "ACME",
		Sector: "Technology",

		Price:          domain.Float(120),
		MarketCap:      domain.Float(250e9),
		Beta:           domain.Float(1.1),
		FiftyTwoWkHigh: domain.Float(150),
		FiftyTwoWkLow:  domain.Float(90),

		TrailingPE:    domain.Float(18),
		PriceToBook:   domain.Float(3.2),
		PriceToSales:  domain.Float(4.1),
		PEGRatio:      domain.Float(1.4),
		EVToEBITDA:    domain.Float(12),
		DividendYield: domain.Float(0.015),

		ProfitMargin:    domain.Float(0.22),
		OperatingMargin: domain.Float(0.28),
		ReturnOnEquity:  domain.Float(0.31),
		CurrentRatio:    domain.Float(1.6),
		DebtToEquity:    domain.Float(80),

		FreeCashFlow:      domain.Float(10e9),
		OperatingCashflow: domain.Float(12e9),
		TotalDebt:         domain.Float(20e9),
		TotalCash:         domain.Float(30e9),
		SharesOutstanding: domain.Float(5e9),

		RevenueGrowth:  domain.Float(0.08),
		EarningsGrowth: domain.Float(0.11),

		AnalystScore: domain.Float(0.8),
		TargetPrice:  domain.Float(140),
		NumAnalysts:  domain.Int(24),
	}
}

func TestScore_CompositeBoundsAndWeightSum(t *testing.T) {
	e := NewEngine(logger.Nop())

	for _, strategy := range StrategyNames() {
		score, err := e.Score(fullSnapshot(), strategy)
		require.NoError(t, err, strategy)

		assert.GreaterOrEqual(t, score.Composite, 0.0)
		assert.LessOrEqual(t, score.Composite, 100.0)

		wsum := 0.0
		for _, w := range score.AppliedWeights {
			wsum += w
		}
		assert.InDelta(t, 1.0, wsum, 1e-9, strategy)

		for _, sub := range []*float64{score.Value, score.Quality, score.Risk, score.Growth, score.Momentum} {
			require.NotNil(t, sub)
			assert.GreaterOrEqual(t, *sub, 0.0)
			assert.LessOrEqual(t, *sub, 100.0)
		}
	}
}

func TestScore_UnknownStrategy(t *testing.T) {
	e := NewEngine(logger.Nop())
	_, err := e.Score(fullSnapshot(), "moonshot")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestScore_MissingFieldRenormalizesWithinSubScore(t *testing.T) {
	e := NewEngine(logger.Nop())

	raw := fullSnapshot()
	raw.EarningsGrowth = nil
	score, err := e.Score(raw, "growth")
	require.NoError(t, err)

	// Growth sub-score now rests entirely on revenue growth
	require.NotNil(t, score.Growth)
	rev, ok := score.Components["growth.revenue_growth"]
	require.True(t, ok)
	assert.InDelta(t, rev, *score.Growth, 1e-9)
	_, hasEarnings := score.Components["growth.earnings_growth"]
	assert.False(t, hasEarnings)
}

func TestScore_AbsentSubScoreExcludedFromComposite(t *testing.T) {
	e := NewEngine(logger.Nop())

	raw := fullSnapshot()
	raw.RevenueGrowth = nil
	raw.EarningsGrowth = nil
	score, err := e.Score(raw, "balanced")
	require.NoError(t, err)

	assert.Nil(t, score.Growth)
	_, applied := score.AppliedWeights["growth"]
	assert.False(t, applied)

	wsum := 0.0
	for _, w := range score.AppliedWeights {
		wsum += w
	}
	assert.InDelta(t, 1.0, wsum, 1e-9)
}

func TestScore_InvalidDCFDropsOnlyValuationComponent(t *testing.T) {
	e := NewEngine(logger.Nop())

	raw := fullSnapshot()
	raw.FreeCashFlow = nil // DCF cannot run
	score, err := e.Score(raw, "value")
	require.NoError(t, err)

	_, hasDCF := score.Components["value.dcf_upside"]
	assert.False(t, hasDCF)
	// Value sub-score survives on the ratio components
	require.NotNil(t, score.Value)
	_, hasPE := score.Components["value.pe"]
	assert.True(t, hasPE)
}

func TestScore_ZeroIsNotAbsent(t *testing.T) {
	e := NewEngine(logger.Nop())

	withZero := fullSnapshot()
	withZero.DividendYield = domain.Float(0)
	withAbsent := fullSnapshot()
	withAbsent.DividendYield = nil

	zeroScore, err := e.Score(withZero, "value")
	require.NoError(t, err)
	absentScore, err := e.Score(withAbsent, "value")
	require.NoError(t, err)

	// A zero yield scores zero; an absent yield is excluded, so the two
	// value sub-scores must differ
	_, zeroHas := zeroScore.Components["value.dividend_yield"]
	_, absentHas := absentScore.Components["value.dividend_yield"]
	assert.True(t, zeroHas)
	assert.False(t, absentHas)
	assert.NotEqual(t, *zeroScore.Value, *absentScore.Value)
}

func TestScore_Deterministic(t *testing.T) {
	e := NewEngine(logger.Nop())

	a, err := e.Score(fullSnapshot(), "balanced")
	require.NoError(t, err)
	b, err := e.Score(fullSnapshot(), "balanced")
	require.NoError(t, err)

	assert.Equal(t, a.Composite, b.Composite)
	assert.Equal(t, a.Components, b.Components)
}

func TestScore_MonotonicPE(t *testing.T) {
	e := NewEngine(logger.Nop())

	cheap := fullSnapshot()
	cheap.TrailingPE = domain.Float(8)
	dear := fullSnapshot()
	dear.TrailingPE = domain.Float(35)

	cheapScore, err := e.Score(cheap, "value")
	require.NoError(t, err)
	dearScore, err := e.Score(dear, "value")
	require.NoError(t, err)

	assert.Greater(t, *cheapScore.Value, *dearScore.Value)
}

func TestStrategyWeightVectorsSumToOne(t *testing.T) {
	for name, w := range strategies {
		sum := w.Value + w.Quality + w.Risk + w.Growth + w.Momentum
		assert.InDelta(t, 1.0, sum, 1e-9, name)
	}
}
