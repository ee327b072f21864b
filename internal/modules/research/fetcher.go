package research

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/fetch"
)

// batchFetcher drives the batch scheduler against the market data provider,
// assembling the three provider slices into one snapshot per ticker
type batchFetcher struct {
	sched    *fetch.Scheduler
	provider domain.MarketDataProvider
	log      zerolog.Logger
}

func newBatchFetcher(cfg fetch.Config, provider domain.MarketDataProvider, log zerolog.Logger) *batchFetcher {
	return &batchFetcher{
		sched:    fetch.New(cfg, log),
		provider: provider,
		log:      log.With().Str("component", "batch_fetcher").Logger(),
	}
}

// FetchBatch fetches every ticker through the shared throttle
func (f *batchFetcher) FetchBatch(ctx context.Context, tickers []domain.Ticker) map[domain.Ticker]fetch.Outcome {
	return f.sched.FetchAll(ctx, tickers, f.fetchTicker)
}

// fetchTicker assembles one snapshot. The quote is mandatory; fundamentals
// and ratings degrade to absent fields, except rate limiting, which must
// surface so the scheduler backs off.
func (f *batchFetcher) fetchTicker(ctx context.Context, ticker domain.Ticker) (domain.RawFundamentals, error) {
	quote, err := f.provider.FetchQuote(ctx, ticker)
	if err != nil {
		return domain.RawFundamentals{}, err
	}

	fundamentals, err := f.provider.FetchFundamentals(ctx, ticker)
	if err != nil {
		if fetch.IsRateLimit(err) {
			return domain.RawFundamentals{}, err
		}
		f.log.Warn().Err(err).Str("ticker", string(ticker)).Msg("Fundamentals unavailable, continuing with quote only")
		fundamentals = nil
	}

	ratings, err := f.provider.FetchRatings(ctx, ticker)
	if err != nil {
		if fetch.IsRateLimit(err) {
			return domain.RawFundamentals{}, err
		}
		f.log.Warn().Err(err).Str("ticker", string(ticker)).Msg("Ratings unavailable, continuing without them")
		ratings = nil
	}

	return domain.Merge(ticker, quote, fundamentals, ratings), nil
}
