package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/maltedev/vendor-scraper/internal/metrics"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/ratelimit"
)

// Base implements the fetch and scrape halves of Scraper for any vendor;
// the vendor supplies only a Parser.
type Base struct {
	vendor  Vendor
	parser  Parser
	fetcher fetch.Fetcher
	limiter ratelimit.Limiter
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewBase(cfg Config, vendor Vendor, parser Parser) *Base {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NewVendorLimiter(0)
	}

	policy := cfg.Policy
	if policy.IsZero() {
		policy = DefaultPolicy()
	}

	return &Base{
		vendor:  vendor,
		parser:  parser,
		fetcher: cfg.Fetcher,
		limiter: limiter,
		policy:  policy.normalized(),
		logger:  logger.With("component", "scraper", "vendor", vendor.Key),
		metrics: cfg.Metrics,
	}
}

func (b *Base) Vendor() Vendor {
	return b.vendor
}

func (b *Base) Policy() Policy {
	return b.policy
}

// WithOverrides returns a copy with o applied to the policy. The copy shares
// the rate limiter with b.
func (b *Base) WithOverrides(o Overrides) Scraper {
	c := *b
	c.policy = b.policy.Apply(o).normalized()
	return &c
}

func (b *Base) Scrape(ctx context.Context, rawURL string) (product models.Product, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("scraper panicked", "url", rawURL, "panic", r, "stack", string(debug.Stack()))
			product = models.Product{}
			err = fmt.Errorf("%w: %v", ErrScraperPanic, r)
		}

		status, code := "success", ""
		if err != nil {
			status, code = "failed", ErrorCode(err)
			b.logger.Warn("scrape failed", "url", rawURL, "code", code, "error", err)
		} else {
			b.logger.Info("scraped product", "url", rawURL, "part_number", product.VendorPartNumber, "duration", time.Since(start))
		}
		b.metrics.ObserveScrape(b.vendor.Key, status, code, time.Since(start))
	}()

	b.logger.Info("scraping product", "url", rawURL)

	doc, err := b.Fetch(ctx, rawURL)
	if err != nil {
		return models.Product{}, err
	}

	return b.Parse(doc, rawURL)
}

func (b *Base) Parse(doc *fetch.Document, rawURL string) (models.Product, error) {
	return b.parser.Parse(doc, rawURL)
}

// Fetch retrieves rawURL, waiting for the vendor's rate limit before every
// attempt and retrying transient failures with exponential backoff.
func (b *Base) Fetch(ctx context.Context, rawURL string) (*fetch.Document, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Attempts: 0, Cause: err}
	}

	var lastErr error
	for attempt := 1; attempt <= b.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := b.policy.Backoff(attempt - 1)
			b.logger.Warn("retrying fetch", "url", rawURL, "attempt", attempt, "backoff", backoff, "error", lastErr)
			if err := wait(ctx, backoff); err != nil {
				return nil, &FetchError{URL: rawURL, Attempts: attempt - 1, Cause: err}
			}
		}

		doc, err := b.attempt(ctx, rawURL)
		if err == nil {
			b.metrics.ObserveFetchAttempt(b.vendor.Key, "ok")
			return doc, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Cause: ctxErr}
		}
		if !fetch.IsTransient(err) {
			b.metrics.ObserveFetchAttempt(b.vendor.Key, "permanent")
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Cause: err}
		}
		b.metrics.ObserveFetchAttempt(b.vendor.Key, "transient")
	}

	return nil, &FetchError{URL: rawURL, Attempts: b.policy.MaxAttempts, Cause: lastErr}
}

func (b *Base) attempt(ctx context.Context, rawURL string) (*fetch.Document, error) {
	waitStart := time.Now()
	if err := b.limiter.Wait(ctx, b.vendor.Key, b.policy.RequestDelay); err != nil {
		return nil, err
	}
	b.metrics.ObserveRateLimitWait(b.vendor.Key, time.Since(waitStart))

	attemptCtx := ctx
	if b.policy.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, b.policy.Timeout)
		defer cancel()
	}

	doc, err := b.fetcher.Fetch(attemptCtx, fetch.Request{URL: rawURL, Headers: b.vendor.Headers})
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s: %w", fetch.ErrTimeout, b.policy.Timeout, err)
	}
	return doc, err
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", fetch.ErrMalformedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", fetch.ErrMalformedURL, rawURL)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
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
