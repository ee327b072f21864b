package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/logger"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(logger.Nop())
	c.baseURL = srv.URL
	c.limiter = rate.NewLimiter(rate.Inf, 1) // no pacing in tests
	return c
}

const quoteBody = `{"quoteResponse":{"result":[{
	"symbol":"AAPL",
	"currentPrice":190.5,
	"sector":"Technology",
	"marketCap":2.9e12,
	"beta":1.2,
	"trailingPE":29.4,
	"profitMargins":0.25,
	"debtToEquity":170.0,
	"freeCashflow":1.0e11,
	"recommendationKey":"buy",
	"targetMeanPrice":210.0,
	"numberOfAnalystOpinions":38
}],"error":null}}`

func TestFetchQuote(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("symbols"), "AAPL")
		fmt.Fprint(w, quoteBody)
	})

	q, err := c.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, q.Price)
	assert.Equal(t, 190.5, *q.Price)
	assert.Equal(t, "Technology", q.Sector)
	require.NotNil(t, q.Beta)
	assert.Equal(t, 1.2, *q.Beta)
	assert.Nil(t, q.DividendYield, "absent field stays nil")
}

func TestFetchRatings(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteBody)
	})

	ratings, err := c.FetchRatings(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, ratings.ConsensusScore)
	assert.Equal(t, 0.8, *ratings.ConsensusScore)
	require.NotNil(t, ratings.NumAnalysts)
	assert.Equal(t, 38, *ratings.NumAnalysts)
}

func TestGetQuoteInfo_CacheSharesOneUpstreamHit(t *testing.T) {
	hits := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, quoteBody)
	})

	ctx := context.Background()
	_, err := c.FetchQuote(ctx, "AAPL")
	require.NoError(t, err)
	_, err = c.FetchFundamentals(ctx, "AAPL")
	require.NoError(t, err)
	_, err = c.FetchRatings(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
}

func TestGetQuoteInfo_RateLimited(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestGetQuoteInfo_UnknownTicker(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[],"error":null}}`)
	})

	_, err := c.FetchQuote(context.Background(), "NOSUCH")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchBenchmarkReturn(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/")
		assert.Equal(t, "1mo", r.URL.Query().Get("range"))
		fmt.Fprint(w, `{"chart":{"result":[{"indicators":{"quote":[{"close":[100.0,null,103.0,105.0]}]}}],"error":null}}`)
	})

	ret, err := c.FetchBenchmarkReturn(context.Background(), "1mo")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, ret, 1e-9)
}

func TestFetchBenchmarkReturn_Unavailable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchBenchmarkReturn(context.Background(), "1mo")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestLimiterSpacesRequests(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteBody)
	})
	c.limiter = rate.NewLimiter(rate.Every(50*time.Millisecond), 1)

	ctx := context.Background()
	start := time.Now()
	for _, tk := range []domain.Ticker{"A", "B", "C"} {
		_, err := c.FetchQuote(ctx, tk)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
