package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

// BenchmarkSymbol is the index whose return anchors alpha and the
// underperformance sell criterion
const BenchmarkSymbol = "^GSPC"

// yahooChartResponse is the slice of the chart API response we consume
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// FetchBenchmarkReturn returns the benchmark's simple return over a period
// like "1mo" or "1y", computed from daily closes
func (c *Client) FetchBenchmarkReturn(ctx context.Context, period string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter wait interrupted: %w", err)
	}

	params := url.Values{}
	params.Add("range", period)
	params.Add("interval", "1d")

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(BenchmarkSymbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, fmt.Errorf("%w: chart API returned 429", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: chart API returned status %d", domain.ErrDataUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}

	var result yahooChartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if result.Chart.Error != nil {
		return 0, fmt.Errorf("%w: chart API error: %v", domain.ErrDataUnavailable, result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return 0, fmt.Errorf("%w: empty chart for %s", domain.ErrDataUnavailable, BenchmarkSymbol)
	}

	closes := result.Chart.Result[0].Indicators.Quote[0].Close
	first, last := firstAndLastClose(closes)
	if first == nil || last == nil || *first == 0 {
		return 0, fmt.Errorf("%w: no usable closes for %s over %s", domain.ErrDataUnavailable, BenchmarkSymbol, period)
	}
	return *last / *first - 1, nil
}

// firstAndLastClose skips the null closes Yahoo interleaves on holidays
func firstAndLastClose(closes []*float64) (first, last *float64) {
	for _, c := range closes {
		if c == nil {
			continue
		}
		if first == nil {
			first = c
		}
		last = c
	}
	return first, last
}
