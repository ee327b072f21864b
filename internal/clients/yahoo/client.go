// Package yahoo implements the market data provider and benchmark source
// against the Yahoo Finance quote and chart APIs.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"

	// quoteCacheTTL keeps one upstream hit serving all three provider
	// slices (quote, fundamentals, ratings) of the same ticker
	quoteCacheTTL = 30 * time.Second
)

// Client is a Yahoo Finance API client. A client-side limiter spaces
// requests so bursts from concurrent callers cannot trip upstream
// throttling before the batch scheduler's pacing kicks in.
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	log     zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	info    map[string]interface{}
	fetched time.Time
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		baseURL: defaultBaseURL,
		log:     log.With().Str("client", "yahoo").Logger(),
		cache:   make(map[string]cachedQuote),
	}
}

var (
	_ domain.MarketDataProvider = (*Client)(nil)
	_ domain.BenchmarkSource    = (*Client)(nil)
)

// FetchQuote returns the market data slice of a ticker
func (c *Client) FetchQuote(ctx context.Context, ticker domain.Ticker) (*domain.Quote, error) {
	info, err := c.getQuoteInfo(ctx, string(ticker))
	if err != nil {
		return nil, err
	}

	price := getFloat64(info, "currentPrice")
	if price == nil {
		price = getFloat64(info, "regularMarketPrice")
	}

	return &domain.Quote{
		Price:          price,
		MarketCap:      getFloat64(info, "marketCap"),
		TrailingPE:     getFloat64(info, "trailingPE"),
		PriceToBook:    getFloat64(info, "priceToBook"),
		PriceToSales:   getFloat64(info, "priceToSalesTrailing12Months"),
		PEGRatio:       getFloat64(info, "pegRatio"),
		EVToEBITDA:     getFloat64(info, "enterpriseToEbitda"),
		DividendYield:  getFloat64(info, "dividendYield"),
		Beta:           getFloat64(info, "beta"),
		FiftyTwoWkHigh: getFloat64(info, "fiftyTwoWeekHigh"),
		FiftyTwoWkLow:  getFloat64(info, "fiftyTwoWeekLow"),
		Sector:         getString(info, "sector", ""),
	}, nil
}

// FetchFundamentals returns the balance-sheet and cash-flow slice of a ticker
func (c *Client) FetchFundamentals(ctx context.Context, ticker domain.Ticker) (*domain.Fundamentals, error) {
	info, err := c.getQuoteInfo(ctx, string(ticker))
	if err != nil {
		return nil, err
	}

	return &domain.Fundamentals{
		FreeCashFlow:      getFloat64(info, "freeCashflow"),
		OperatingCashflow: getFloat64(info, "operatingCashflow"),
		TotalDebt:         getFloat64(info, "totalDebt"),
		TotalCash:         getFloat64(info, "totalCash"),
		SharesOutstanding: getFloat64(info, "sharesOutstanding"),
		DebtToEquity:      getFloat64(info, "debtToEquity"),
		ProfitMargin:      getFloat64(info, "profitMargins"),
		OperatingMargin:   getFloat64(info, "operatingMargins"),
		ReturnOnEquity:    getFloat64(info, "returnOnEquity"),
		CurrentRatio:      getFloat64(info, "currentRatio"),
		RevenueGrowth:     getFloat64(info, "revenueGrowth"),
		EarningsGrowth:    getFloat64(info, "earningsGrowth"),
	}, nil
}

// FetchRatings returns the analyst sentiment slice of a ticker
func (c *Client) FetchRatings(ctx context.Context, ticker domain.Ticker) (*domain.Ratings, error) {
	info, err := c.getQuoteInfo(ctx, string(ticker))
	if err != nil {
		return nil, err
	}

	return &domain.Ratings{
		ConsensusScore: recommendationScore(getString(info, "recommendationKey", "")),
		TargetPrice:    getFloat64(info, "targetMeanPrice"),
		NumAnalysts:    getInt(info, "numberOfAnalystOpinions"),
	}, nil
}

// recommendationScore maps Yahoo's recommendation key onto [0,1]
func recommendationScore(key string) *float64 {
	scores := map[string]float64{
		"strong_buy":   1.0,
		"strongBuy":    1.0,
		"buy":          0.8,
		"hold":         0.5,
		"underperform": 0.3,
		"sell":         0.2,
		"strongSell":   0.0,
		"strong_sell":  0.0,
	}
	if s, ok := scores[key]; ok {
		return &s
	}
	return nil
}

// yahooQuoteResponse represents the response from the quote API
type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
		Error  interface{}              `json:"error"`
	} `json:"quoteResponse"`
}

// getQuoteInfo fetches quote information, serving repeats from a short
// lived cache
func (c *Client) getQuoteInfo(ctx context.Context, symbol string) (map[string]interface{}, error) {
	c.mu.Lock()
	if cached, ok := c.cache[symbol]; ok && time.Since(cached.fetched) < quoteCacheTTL {
		c.mu.Unlock()
		return cached.info, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait interrupted: %w", err)
	}

	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,regularMarketPrice,currentPrice,sector,marketCap,beta,"+
		"fiftyTwoWeekHigh,fiftyTwoWeekLow,trailingPE,priceToBook,priceToSalesTrailing12Months,"+
		"pegRatio,enterpriseToEbitda,dividendYield,profitMargins,operatingMargins,returnOnEquity,"+
		"currentRatio,debtToEquity,freeCashflow,operatingCashflow,totalDebt,totalCash,"+
		"sharesOutstanding,revenueGrowth,earningsGrowth,recommendationKey,targetMeanPrice,"+
		"numberOfAnalystOpinions")

	reqURL := c.baseURL + "/v7/finance/quote?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: quote API returned 429 for %s", domain.ErrRateLimited, symbol)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result yahooQuoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote API error: %v", result.QuoteResponse.Error)
	}
	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, symbol)
	}

	info := result.QuoteResponse.Result[0]
	c.mu.Lock()
	c.cache[symbol] = cachedQuote{info: info, fetched: time.Now()}
	c.mu.Unlock()
	return info, nil
}

// Helper functions to safely extract values from map

func getFloat64(m map[string]interface{}, key string) *float64 {
	if val, ok := m[key]; ok && val != nil {
		switch v := val.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

func getInt(m map[string]interface{}, key string) *int {
	if val := getFloat64(m, key); val != nil {
		i := int(*val)
		return &i
	}
	return nil
}

func getString(m map[string]interface{}, key, fallback string) string {
	if val, ok := m[key]; ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return fallback
}
