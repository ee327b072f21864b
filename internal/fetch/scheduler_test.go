package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
	"github.com/vmarcondes-nilo/equity-research-agent/pkg/logger"
)

// virtualClock records sleeps instead of performing them
type virtualClock struct {
	slept time.Duration
}

func newVirtualClock() *virtualClock {
	return &virtualClock{}
}

func (c *virtualClock) Sleep(_ context.Context, d time.Duration) error {
	if d > 0 {
		c.slept += d
	}
	return nil
}

func testScheduler(cfg Config, clock *virtualClock) *Scheduler {
	return NewWithSleep(cfg, logger.Nop(), clock.Sleep)
}

func tickers(n int) []domain.Ticker {
	out := make([]domain.Ticker, n)
	for i := range out {
		out[i] = domain.Ticker(fmt.Sprintf("T%03d", i))
	}
	return out
}

func TestFetchAll_CompleteMap(t *testing.T) {
	clock := newVirtualClock()
	s := testScheduler(Config{MinDelay: 100 * time.Millisecond, BatchSize: 5}, clock)

	in := tickers(12)
	results := s.FetchAll(context.Background(), in, func(_ context.Context, tk domain.Ticker) (domain.RawFundamentals, error) {
		return domain.RawFundamentals{Ticker: tk}, nil
	})

	require.Len(t, results, 12)
	for _, tk := range in {
		out, ok := results[tk]
		require.True(t, ok, "missing ticker %s", tk)
		assert.NoError(t, out.Err)
		assert.Equal(t, tk, out.Raw.Ticker)
	}
	assert.Equal(t, 12, s.Stats().Requests)
	assert.Equal(t, 0, s.Stats().Errors)
}

func TestFetchAll_WallClockFloor(t *testing.T) {
	// 23 tickers, batches of 10 -> 3 chunks with 2 inter-batch gaps
	clock := newVirtualClock()
	s := testScheduler(Config{
		MinDelay:        500 * time.Millisecond,
		BatchSize:       10,
		InterBatchDelay: 2 * time.Second,
	}, clock)

	s.FetchAll(context.Background(), tickers(23), func(_ context.Context, tk domain.Ticker) (domain.RawFundamentals, error) {
		return domain.RawFundamentals{Ticker: tk}, nil
	})

	floor := 23*500*time.Millisecond + 2*2*time.Second
	assert.GreaterOrEqual(t, clock.slept, floor)
}

func TestFetchAll_OneBadTickerNeverAbortsBatch(t *testing.T) {
	clock := newVirtualClock()
	s := testScheduler(Config{BatchSize: 10, MaxRetries: 2, BaseBackoff: time.Second}, clock)

	boom := errors.New("provider exploded")
	results := s.FetchAll(context.Background(), []domain.Ticker{"AAA", "BAD", "CCC"}, func(_ context.Context, tk domain.Ticker) (domain.RawFundamentals, error) {
		if tk == "BAD" {
			return domain.RawFundamentals{}, boom
		}
		return domain.RawFundamentals{Ticker: tk}, nil
	})

	require.Len(t, results, 3)
	assert.NoError(t, results["AAA"].Err)
	assert.NoError(t, results["CCC"].Err)
	require.Error(t, results["BAD"].Err)
	assert.ErrorIs(t, results["BAD"].Err, domain.ErrDataUnavailable)

	// 2 clean + 3 attempts for the bad one
	assert.Equal(t, 5, s.Stats().Requests)
	assert.Equal(t, 2, s.Stats().Retries)
	assert.Equal(t, 1, s.Stats().Errors)
}

func TestFetchAll_ExponentialBackoffOnRateLimit(t *testing.T) {
	clock := newVirtualClock()
	s := testScheduler(Config{BatchSize: 10, MaxRetries: 3, BaseBackoff: time.Second}, clock)

	attempts := 0
	results := s.FetchAll(context.Background(), []domain.Ticker{"THR"}, func(_ context.Context, tk domain.Ticker) (domain.RawFundamentals, error) {
		attempts++
		if attempts < 3 {
			return domain.RawFundamentals{}, domain.ErrRateLimited
		}
		return domain.RawFundamentals{Ticker: tk}, nil
	})

	assert.NoError(t, results["THR"].Err)
	assert.Equal(t, 3, attempts)
	// backoff 1s after attempt 0, 2s after attempt 1
	assert.Equal(t, 3*time.Second, clock.slept)
}

func TestFetchAll_DeadlineAbortsBetweenChunks(t *testing.T) {
	clock := newVirtualClock()
	s := testScheduler(Config{BatchSize: 2, InterBatchDelay: time.Second}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	results := s.FetchAll(ctx, tickers(6), func(_ context.Context, tk domain.Ticker) (domain.RawFundamentals, error) {
		calls++
		if calls == 2 {
			cancel() // takes effect at the next chunk boundary
		}
		return domain.RawFundamentals{Ticker: tk}, nil
	})

	require.Len(t, results, 6, "partial result map must still cover every ticker")
	assert.Equal(t, 2, calls, "no fetch may be issued after cancellation")

	timedOut := 0
	for _, out := range results {
		if out.Err != nil {
			assert.ErrorIs(t, out.Err, domain.ErrDataUnavailable)
			timedOut++
		}
	}
	assert.Equal(t, 4, timedOut)
}

func TestEstimate(t *testing.T) {
	clock := newVirtualClock()
	s := testScheduler(Config{
		MinDelay:        500 * time.Millisecond,
		BatchSize:       10,
		InterBatchDelay: 2 * time.Second,
	}, clock)

	assert.Equal(t, 23*500*time.Millisecond+2*2*time.Second, s.Estimate(23))
	assert.Equal(t, time.Duration(0), s.Estimate(0))
	assert.Equal(t, 500*time.Millisecond, s.Estimate(1))
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(domain.ErrRateLimited))
	assert.True(t, IsRateLimit(fmt.Errorf("wrapped: %w", domain.ErrRateLimited)))
	assert.True(t, IsRateLimit(errors.New("HTTP 429 Too Many Requests")))
	assert.True(t, IsRateLimit(errors.New("provider rate limit exceeded")))
	assert.False(t, IsRateLimit(errors.New("connection refused")))
	assert.False(t, IsRateLimit(nil))
}
