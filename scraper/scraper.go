package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-products/cache"
	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/aluiziolira/go-scrape-products/parser"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// LargeBatchWarning is the batch size above which a warning is logged.
const LargeBatchWarning = 1000

// Cache is the part of the cache store the scraper depends on.
type Cache interface {
	Lookup(ctx context.Context, url string) (cache.Entry, bool, error)
	Store(ctx context.Context, url string, fields models.Fields) (bool, error)
}

// ProgressFunc receives the number of finished URLs after each one completes.
// Calls are serialized.
type ProgressFunc func(completed, total int)

// Option customizes a Scraper.
type Option func(*Scraper)

// WithFetcher replaces the extraction API client.
func WithFetcher(f Fetcher) Option {
	return func(s *Scraper) {
		s.fetcher = f
	}
}

// WithCache enables the cache layer.
func WithCache(c Cache) Option {
	return func(s *Scraper) {
		s.cache = c
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Scraper) {
		s.progress = fn
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		s.now = now
	}
}

// Scraper runs the per-URL pipeline across a bounded worker pool.
type Scraper struct {
	cfg      *config.Config
	fetcher  Fetcher
	cache    Cache
	retry    *Retrier
	progress ProgressFunc
	now      func() time.Time
	Metrics  *Metrics

	flight singleflight.Group
}

// NewScraper builds a scraper configured from cfg.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if cfg.Concurrency < 1 || cfg.Concurrency > config.MaxConcurrency {
		return nil, fmt.Errorf("concurrency must be between 1 and %d", config.MaxConcurrency)
	}
	if cfg.TaskTimeout <= 0 {
		return nil, fmt.Errorf("task timeout must be positive")
	}

	s := &Scraper{
		cfg:     cfg,
		now:     time.Now,
		Metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		client, err := NewClient(cfg, s.Metrics)
		if err != nil {
			return nil, fmt.Errorf("create extraction client: %w", err)
		}
		s.fetcher = client
	}
	s.retry = NewRetrier(s.fetcher, cfg.MaxRetries, cfg.InitialDelay(), cfg.JitterMax, s.Metrics)
	return s, nil
}

// Run scrapes every URL and returns one result per input, in input order.
// Cancelling ctx, or a deadline that ends dispatch early, abandons the batch
// and returns a context error.
func (s *Scraper) Run(ctx context.Context, urls []string) (*models.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	if len(urls) > LargeBatchWarning {
		slog.Warn("large batch may take a long time and exceed rate limits",
			slog.Int("urls", len(urls)),
			slog.Int("recommended_max", LargeBatchWarning),
		)
	}

	batch := &models.Batch{
		ID:        uuid.New(),
		Results:   make([]models.ScrapeResult, len(urls)),
		StartedAt: s.now(),
	}
	slog.Info("starting batch",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("urls", len(urls)),
		slog.Int("workers", s.cfg.Concurrency),
	)

	var (
		g           errgroup.Group
		mu          sync.Mutex
		completed   int
		dispatchErr error
	)
	g.SetLimit(s.cfg.Concurrency)
	limiter := s.dispatchLimiter()

	for i, raw := range urls {
		// Wait fails early when the next slot falls past the ctx deadline.
		if err := limiter.Wait(ctx); err != nil {
			dispatchErr = err
			break
		}
		g.Go(func() error {
			batch.Results[i] = s.runTask(ctx, raw)
			s.Metrics.IncResults()

			mu.Lock()
			completed++
			if s.progress != nil {
				s.progress(completed, len(urls))
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		slog.Info("batch canceled", slog.String("batch_id", batch.ID.String()))
		return nil, err
	}
	if dispatchErr != nil {
		slog.Info("batch abandoned before every url was dispatched",
			slog.String("batch_id", batch.ID.String()),
			slog.Int("dispatched", completed),
			slog.Int("urls", len(urls)),
		)
		return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, dispatchErr)
	}

	batch.CompletedAt = s.now()
	slog.Info("batch complete",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("urls", len(batch.Results)),
		slog.Int("errors", batch.ErrorCount()),
		slog.Int("cached", batch.CachedCount()),
		slog.Duration("duration", batch.CompletedAt.Sub(batch.StartedAt)),
	)
	return batch, nil
}

// dispatchLimiter lets the first Concurrency tasks start at once and then
// releases at most one task per DispatchPause.
func (s *Scraper) dispatchLimiter() *rate.Limiter {
	if s.cfg.DispatchPause <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(s.cfg.DispatchPause), s.cfg.Concurrency)
}

// runTask bounds scrapeOne by the task timeout. A timed out task is recorded
// as failed; its in-flight request keeps running and its result is dropped.
func (s *Scraper) runTask(ctx context.Context, raw string) models.ScrapeResult {
	done := make(chan models.ScrapeResult, 1)
	go func() {
		done <- s.scrapeOne(ctx, raw)
	}()

	timer := time.NewTimer(s.cfg.TaskTimeout)
	defer timer.Stop()

	select {
	case result := <-done:
		return result
	case <-timer.C:
		return s.failure(raw, ErrTaskTimeout{After: s.cfg.TaskTimeout}, 0)
	case <-ctx.Done():
		return s.failure(raw, ctx.Err(), 0)
	}
}

type fetched struct {
	fields  models.Fields
	retries int
}

func (s *Scraper) scrapeOne(ctx context.Context, raw string) models.ScrapeResult {
	if _, err := ValidateURL(raw); err != nil {
		return s.failure(raw, err, 0)
	}
	target := strings.TrimSpace(raw)

	if s.cache != nil {
		entry, ok, err := s.cache.Lookup(ctx, target)
		if err != nil {
			slog.Warn("cache lookup failed", slog.String("url", target), slog.Any("error", err))
		}
		s.Metrics.IncCacheLookup(ok)
		if ok {
			slog.Debug("using cached data", slog.String("url", target))
			return models.ScrapeResult{
				URL:       raw,
				Fields:    entry.Fields.Clone(),
				Cached:    true,
				ScrapedAt: s.now(),
			}
		}
	}

	v, err, shared := s.flight.Do(target, func() (any, error) {
		return s.retrieve(ctx, target)
	})
	res, _ := v.(fetched)
	if err != nil {
		return s.failure(raw, err, res.retries)
	}
	if shared {
		slog.Debug("shared retrieval for duplicate url", slog.String("url", target))
	}

	return models.ScrapeResult{
		URL:       raw,
		Fields:    res.fields.Clone(),
		Retries:   res.retries,
		ScrapedAt: s.now(),
	}
}

func (s *Scraper) retrieve(ctx context.Context, target string) (fetched, error) {
	results, retries, err := s.retry.Attempt(ctx, target)
	if err != nil {
		return fetched{retries: retries}, err
	}

	fields := parser.Extract(results, target)
	if s.cache != nil {
		written, err := s.cache.Store(ctx, target, fields)
		if err != nil {
			slog.Warn("cache write failed", slog.String("url", target), slog.Any("error", err))
		} else if !written {
			slog.Debug("nothing resolved, skipping cache", slog.String("url", target))
		}
	}
	return fetched{fields: fields, retries: retries}, nil
}

func (s *Scraper) failure(raw string, err error, retries int) models.ScrapeResult {
	category := errorTypeLabel(err)
	s.Metrics.IncError(category)
	slog.Error("scrape failed",
		slog.String("url", raw),
		slog.String("category", category),
		slog.Any("error", err),
	)
	return models.ScrapeResult{
		URL:       raw,
		Fields:    models.NewFields(),
		Error:     ErrorMessage(err),
		Retries:   retries,
		ScrapedAt: s.now(),
	}
}
