// Package fetch runs throttled, retrying, batched execution of per-ticker
// data fetches. The upstream provider's rate limit is global, so a single
// Scheduler instance owns the throttle state for one whole invocation;
// spinning up independent schedulers per caller would defeat the limit.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/domain"
)

// Config holds throttle and retry parameters
type Config struct {
	MinDelay        time.Duration // floor between successive requests
	BatchSize       int           // tickers grouped per chunk
	InterBatchDelay time.Duration // pause after each chunk
	MaxRetries      int           // retries per ticker after the first attempt
	BaseBackoff     time.Duration // backoff doubles per attempt
}

// FetchFunc fetches the snapshot for one ticker
type FetchFunc func(ctx context.Context, ticker domain.Ticker) (domain.RawFundamentals, error)

// Outcome is the terminal per-ticker result: either Raw or Err is set
type Outcome struct {
	Raw domain.RawFundamentals
	Err error
}

// Stats are observability counters for one FetchAll run
type Stats struct {
	Requests int // fetch calls issued, including retries
	Retries  int
	Errors   int // tickers that ended in a terminal error
}

// Scheduler issues fetches strictly sequentially, each preceded by a full
// MinDelay pause. Pacing is unconditional rather than elapsed-aware because
// the provider limit is about request spacing, not throughput. Sleep is
// injectable so tests run on a virtual timeline.
type Scheduler struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
	log   zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a scheduler on the real clock
func New(cfg Config, log zerolog.Logger) *Scheduler {
	return NewWithSleep(cfg, log, sleepCtx)
}

// NewWithSleep creates a scheduler with an injected sleep function
func NewWithSleep(cfg Config, log zerolog.Logger, sleep func(context.Context, time.Duration) error) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Scheduler{
		cfg:   cfg,
		sleep: sleep,
		log:   log.With().Str("component", "fetch_scheduler").Logger(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchAll fetches every ticker and returns a complete map: each entry holds
// either the result or a terminal error. One bad ticker never aborts the
// batch. A context deadline aborts between chunks, never mid-request;
// unfetched tickers are marked with the context error.
func (s *Scheduler) FetchAll(ctx context.Context, tickers []domain.Ticker, fn FetchFunc) map[domain.Ticker]Outcome {
	results := make(map[domain.Ticker]Outcome, len(tickers))

	chunks := chunk(tickers, s.cfg.BatchSize)
	for ci, c := range chunks {
		if err := ctx.Err(); err != nil {
			s.markUnfetched(results, chunks[ci:], err)
			break
		}

		for _, ticker := range c {
			raw, err := s.fetchOne(ctx, ticker, fn)
			if err != nil {
				s.mu.Lock()
				s.stats.Errors++
				s.mu.Unlock()
				s.log.Warn().Err(err).Str("ticker", string(ticker)).Msg("Ticker fetch failed terminally")
				results[ticker] = Outcome{Err: err}
				continue
			}
			results[ticker] = Outcome{Raw: raw}
		}

		if ci < len(chunks)-1 {
			if err := s.sleep(ctx, s.cfg.InterBatchDelay); err != nil {
				s.markUnfetched(results, chunks[ci+1:], err)
				break
			}
		}
	}

	stats := s.Stats()
	s.log.Info().
		Int("tickers", len(tickers)).
		Int("requests", stats.Requests).
		Int("errors", stats.Errors).
		Msg("Batch fetch complete")

	return results
}

// fetchOne runs the throttle + retry loop for a single ticker
func (s *Scheduler) fetchOne(ctx context.Context, ticker domain.Ticker, fn FetchFunc) (domain.RawFundamentals, error) {
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := s.sleep(ctx, s.cfg.MinDelay); err != nil {
			return domain.RawFundamentals{}, err
		}

		s.mu.Lock()
		s.stats.Requests++
		if attempt > 0 {
			s.stats.Retries++
		}
		s.mu.Unlock()

		raw, err := fn(ctx, ticker)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if attempt < s.cfg.MaxRetries {
			backoff := s.cfg.BaseBackoff * time.Duration(1<<uint(attempt))
			evt := s.log.Warn().Err(err).
				Str("ticker", string(ticker)).
				Int("attempt", attempt+1).
				Dur("backoff", backoff)
			if IsRateLimit(err) {
				evt.Msg("Provider rate limit, backing off")
			} else {
				evt.Msg("Fetch failed, retrying")
			}
			if err := s.sleep(ctx, backoff); err != nil {
				return domain.RawFundamentals{}, err
			}
		}
	}

	// Exhausted retries: degrade to data-unavailable for this ticker
	return domain.RawFundamentals{}, fmt.Errorf("%w: %s after %d attempts: %v",
		domain.ErrDataUnavailable, ticker, s.cfg.MaxRetries+1, lastErr)
}

func (s *Scheduler) markUnfetched(results map[domain.Ticker]Outcome, chunks [][]domain.Ticker, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		for _, ticker := range c {
			if _, done := results[ticker]; !done {
				results[ticker] = Outcome{Err: fmt.Errorf("%w: %s: fetch aborted: %v", domain.ErrDataUnavailable, ticker, cause)}
				s.stats.Errors++
			}
		}
	}
	s.log.Warn().Err(cause).Msg("Fetch aborted between chunks, remaining tickers marked unavailable")
}

// Stats returns a copy of the run counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Estimate computes the expected wall-clock time for n tickers. Used to set
// caller expectations, not for correctness.
func (s *Scheduler) Estimate(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	batches := int(math.Ceil(float64(n) / float64(s.cfg.BatchSize)))
	return time.Duration(n)*s.cfg.MinDelay + time.Duration(batches-1)*s.cfg.InterBatchDelay
}

// IsRateLimit classifies a provider error as transient throttling
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

func chunk(tickers []domain.Ticker, size int) [][]domain.Ticker {
	var out [][]domain.Ticker
	for len(tickers) > 0 {
		n := size
		if n > len(tickers) {
			n = len(tickers)
		}
		out = append(out, tickers[:n])
		tickers = tickers[n:]
	}
	return out
}
