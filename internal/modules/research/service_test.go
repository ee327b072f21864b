package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/database"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/fetch"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/portfolio"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/logger"
)

type fakeProvider struct {
	quotes map[domain.Ticker]*domain.Quote
}

func (f *fakeProvider) FetchQuote(_ context.Context, tk domain.Ticker) (*domain.Quote, error) {
	q, ok := f.quotes[tk]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return q, nil
}

func (f *fakeProvider) FetchFundamentals(_ context.Context, _ domain.Ticker) (*domain.Fundamentals, error) {
	return &domain.Fundamentals{
		ProfitMargin:   domain.Float(0.2),
		ReturnOnEquity: domain.Float(0.25),
		RevenueGrowth:  domain.Float(0.08),
	}, nil
}

func (f *fakeProvider) FetchRatings(_ context.Context, _ domain.Ticker) (*domain.Ratings, error) {
	return &domain.Ratings{ConsensusScore: domain.Float(0.7)}, nil
}

type fakeUniverse struct {
	tickers []domain.Ticker
}

func (f *fakeUniverse) ActiveTickers() ([]domain.Ticker, error) {
	return f.tickers, nil
}

func quoteFixture(price float64, sector string, pe float64) *domain.Quote {
	return &domain.Quote{
		Price:      domain.Float(price),
		MarketCap:  domain.Float(50e9),
		TrailingPE: domain.Float(pe),
		Beta:       domain.Float(1.0),
		Sector:     sector,
	}
}

func testService(t *testing.T, provider domain.MarketDataProvider, uni UniverseSource) (*Service, *portfolio.Repository) {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	repo := portfolio.NewRepository(db.Conn(), logger.Nop())
	svc := NewService(provider, nil, repo, uni, fetch.Config{BatchSize: 10}, logger.Nop())
	return svc, repo
}

func seedPortfolio(t *testing.T, repo *portfolio.Repository, cash float64) string {
	t.Helper()
	p := &portfolio.Portfolio{
		ID:       "research-test",
		Name:     "Research",
		Strategy: "balanced",
		Cash:     cash,
		Constraints: portfolio.Constraints{
			MinPositionPct:     0.02,
			MaxPositionPct:     0.10,
			MaxSectorPct:       0.40,
			MaxMonthlyTurnover: 10,
			TargetHoldings:     5,
		},
	}
	require.NoError(t, repo.Create(p))
	return p.ID
}

func TestBuildPortfolio(t *testing.T) {
	provider := &fakeProvider{quotes: map[domain.Ticker]*domain.Quote{
		"AAA": quoteFixture(100, "Technology", 14),
		"BBB": quoteFixture(50, "Health", 16),
		"CCC": quoteFixture(80, "Finance", 12),
		"DDD": quoteFixture(120, "Energy", 20),
		"EEE": quoteFixture(60, "Utilities", 18),
		"FFF": quoteFixture(90, "Materials", 25),
	}}
	uni := &fakeUniverse{tickers: []domain.Ticker{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}}
	svc, repo := testService(t, provider, uni)
	id := seedPortfolio(t, repo, 100000)

	res, err := svc.BuildPortfolio(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Scored)
	require.NotEmpty(t, res.Orders)
	assert.LessOrEqual(t, len(res.Orders), 5)
	require.NotNil(t, res.Snapshot)

	p, err := repo.LoadPortfolio(id)
	require.NoError(t, err)
	assert.Len(t, p.Holdings, len(res.Orders))
	assert.Less(t, p.Cash, 100000.0)

	// Every position sized within its bounds
	total := p.TotalValue()
	for _, h := range p.Holdings {
		w := h.MarketValue() / total
		assert.GreaterOrEqual(t, w, 0.02-1e-6)
		assert.LessOrEqual(t, w, 0.10+1e-6)
	}

	snap, err := repo.LatestSnapshot(id)
	require.NoError(t, err)
	require.NotNil(t, snap)
}

func TestBuildPortfolio_RefusesSecondBuild(t *testing.T) {
	provider := &fakeProvider{quotes: map[domain.Ticker]*domain.Quote{
		"AAA": quoteFixture(100, "Technology", 14),
	}}
	uni := &fakeUniverse{tickers: []domain.Ticker{"AAA"}}
	svc, repo := testService(t, provider, uni)
	id := seedPortfolio(t, repo, 100000)

	_, err := svc.BuildPortfolio(context.Background(), id)
	require.NoError(t, err)

	_, err = svc.BuildPortfolio(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has holdings")
}

func TestBuildPortfolio_UnknownPortfolio(t *testing.T) {
	svc, _ := testService(t, &fakeProvider{}, &fakeUniverse{})
	_, err := svc.BuildPortfolio(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuildPortfolio_UnfetchableTickersExcluded(t *testing.T) {
	provider := &fakeProvider{quotes: map[domain.Ticker]*domain.Quote{
		"AAA": quoteFixture(100, "Technology", 14),
	}}
	uni := &fakeUniverse{tickers: []domain.Ticker{"AAA", "GHOST"}}
	svc, repo := testService(t, provider, uni)
	id := seedPortfolio(t, repo, 100000)

	res, err := svc.BuildPortfolio(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scored)
}

func TestRunReview_AfterBuildIsQuiet(t *testing.T) {
	provider := &fakeProvider{quotes: map[domain.Ticker]*domain.Quote{
		"AAA": quoteFixture(100, "Technology", 14),
		"BBB": quoteFixture(50, "Health", 16),
	}}
	uni := &fakeUniverse{tickers: []domain.Ticker{"AAA", "BBB"}}
	svc, repo := testService(t, provider, uni)
	id := seedPortfolio(t, repo, 100000)

	_, err := svc.BuildPortfolio(context.Background(), id)
	require.NoError(t, err)

	// Nothing changed upstream, so the review should hold everything
	res, err := svc.RunReview(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, res.Plan)

	p, err := repo.LoadPortfolio(id)
	require.NoError(t, err)
	assert.Len(t, p.Holdings, 2)
}
