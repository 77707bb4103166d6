package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/maltedev/vendor-scraper/internal/metrics"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/ratelimit"
)

// Scraper turns a vendor product URL into a canonical product.
type Scraper interface {
	Vendor() Vendor
	Fetch(ctx context.Context, url string) (*fetch.Document, error)
	Parse(doc *fetch.Document, url string) (models.Product, error)
	// Scrape fetches and parses url. It never panics; every failure is
	// returned as an error.
	Scrape(ctx context.Context, url string) (models.Product, error)
	WithOverrides(o Overrides) Scraper
}

// Parser extracts a canonical product from a fetched vendor page.
type Parser interface {
	Parse(doc *fetch.Document, url string) (models.Product, error)
}

// Vendor describes the site a scraper handles.
type Vendor struct {
	Key     string
	Name    string
	BaseURL string
	Version string
	Headers map[string]string
}

// Config holds what every scraper instance is built from. Limiter must be
// shared by all instances so the per-vendor schedule holds across them.
type Config struct {
	Fetcher fetch.Fetcher
	Limiter ratelimit.Limiter
	Policy  Policy
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Factory builds a scraper for one vendor.
type Factory func(cfg Config) Scraper

// maxBackoffDuration bounds an uncapped backoff.
const maxBackoffDuration = time.Hour

// Policy controls request pacing and retries.
type Policy struct {
	RequestDelay time.Duration `json:"request_delay,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	MaxAttempts  int           `json:"max_attempts,omitempty"`
	BackoffBase  time.Duration `json:"backoff_base,omitempty"`
	MaxBackoff   time.Duration `json:"max_backoff,omitempty"`
}

func DefaultPolicy() Policy {
	return Policy{
		RequestDelay: time.Second,
		Timeout:      30 * time.Second,
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		MaxBackoff:   30 * time.Second,
	}
}

// Overrides are per-invocation policy changes. A nil field keeps the
// configured value; a set field replaces it, zero included.
type Overrides struct {
	RequestDelay *time.Duration `json:"request_delay,omitempty"`
	Timeout      *time.Duration `json:"timeout,omitempty"`
	MaxAttempts  *int           `json:"max_attempts,omitempty"`
	BackoffBase  *time.Duration `json:"backoff_base,omitempty"`
	MaxBackoff   *time.Duration `json:"max_backoff,omitempty"`
}

func (o Overrides) IsZero() bool {
	return o == (Overrides{})
}

// Apply returns p with every set field of o.
func (p Policy) Apply(o Overrides) Policy {
	if o.RequestDelay != nil {
		p.RequestDelay = *o.RequestDelay
	}
	if o.Timeout != nil {
		p.Timeout = *o.Timeout
	}
	if o.MaxAttempts != nil {
		p.MaxAttempts = *o.MaxAttempts
	}
	if o.BackoffBase != nil {
		p.BackoffBase = *o.BackoffBase
	}
	if o.MaxBackoff != nil {
		p.MaxBackoff = *o.MaxBackoff
	}
	return p
}

func (p Policy) IsZero() bool {
	return p == (Policy{})
}

// Backoff is the pause after the n-th failed attempt: BackoffBase doubled
// for every earlier failure, capped at MaxBackoff. Without a cap the pause
// saturates at maxBackoffDuration instead of overflowing.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.BackoffBase <= 0 {
		return 0
	}

	limit := p.MaxBackoff
	if limit <= 0 {
		limit = maxBackoffDuration
	}

	d := p.BackoffBase
	for i := 1; i < n && d < limit; i++ {
		if d > limit/2 {
			d = limit
			break
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.RequestDelay < 0 {
		p.RequestDelay = 0
	}
	return p
}
