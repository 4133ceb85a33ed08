package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-scrape-products/parser"
)

// Retrier wraps a Fetcher with exponential backoff on rate limiting. Other
// failures are returned on the first attempt.
type Retrier struct {
	fetcher      Fetcher
	maxRetries   int
	initialDelay time.Duration
	jitterMax    time.Duration
	metrics      *Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewRetrier builds a Retrier. initialDelay may be zero.
func NewRetrier(fetcher Fetcher, maxRetries int, initialDelay, jitterMax time.Duration, metrics *Metrics) *Retrier {
	r := &Retrier{
		fetcher:      fetcher,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		jitterMax:    jitterMax,
		metrics:      metrics,
		sleep:        sleepContext,
	}
	r.jitter = r.randomJitter
	return r
}

// Attempt fetches url until it succeeds, fails terminally, or the retry
// budget is spent. It returns the number of retries performed.
func (r *Retrier) Attempt(ctx context.Context, url string) (parser.SelectorResults, int, error) {
	retries := 0
	for {
		outcome := r.fetcher.Fetch(ctx, url)

		switch outcome.Kind {
		case OutcomeSuccess:
			return outcome.Results, retries, nil

		case OutcomeRateLimited:
			retries++
			if retries >= r.maxRetries {
				slog.Error("giving up after rate limiting",
					slog.String("url", url),
					slog.Int("retries", retries),
				)
				return nil, retries, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, retries,
					ErrRateLimited{Err: fmt.Errorf("status %d", outcome.StatusCode)})
			}

			delay := r.backoff(retries)
			slog.Warn("rate limit exceeded, retrying",
				slog.String("url", url),
				slog.Int("retry", retries),
				slog.Duration("delay", delay),
			)
			r.metrics.IncRetries()
			if err := r.sleep(ctx, delay); err != nil {
				return nil, retries, ErrRateLimited{Err: err}
			}

		case OutcomeHardFailure:
			return nil, retries, ErrHardFailure{StatusCode: outcome.StatusCode}

		default:
			err := outcome.Err
			if err == nil {
				err = errors.New("unknown transport failure")
			}
			return nil, retries, ErrTransport{Err: err}
		}
	}
}

// backoff returns initialDelay * 2^retry plus jitter.
func (r *Retrier) backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	return r.initialDelay*time.Duration(1<<retry) + r.jitter()
}

func (r *Retrier) randomJitter() time.Duration {
	if r.jitterMax <= 0 {
		return 0
	}
	return rand.N(r.jitterMax)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
