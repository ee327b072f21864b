package domain

import "context"

// MarketDataProvider is the upstream data source for per-ticker snapshots.
// Every field on the returned structs is individually nullable; a missing
// field is a valid response, not an error. An unknown ticker returns
// ErrNotFound.
type MarketDataProvider interface {
	FetchQuote(ctx context.Context, ticker Ticker) (*Quote, error)
	FetchFundamentals(ctx context.Context, ticker Ticker) (*Fundamentals, error)
	FetchRatings(ctx context.Context, ticker Ticker) (*Ratings, error)
}

// BenchmarkSource provides the benchmark return for a period, e.g. "1mo".
// An unavailable benchmark degrades the criteria that depend on it; callers
// must not treat it as fatal.
type BenchmarkSource interface {
	FetchBenchmarkReturn(ctx context.Context, period string) (float64, error)
}
