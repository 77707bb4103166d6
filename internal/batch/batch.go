// Package batch drives many product URLs through resolution and scraping
// with bounded concurrency.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/vendor-scraper/internal/metrics"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Resolver finds the scraper for a URL or vendor key.
type Resolver interface {
	ResolveByURL(url string) (scraper.Scraper, bool)
	ResolveByVendorKey(vendorKey string) (scraper.Scraper, bool)
}

// Request is one unit of work. VendorKey, when set, selects the scraper
// directly instead of resolving by URL.
type Request struct {
	URL       string `json:"url"`
	VendorKey string `json:"vendor,omitempty"`
}

type RunOptions struct {
	// Overrides are applied to each scraper's configured policy.
	Overrides   scraper.Overrides
	Concurrency int
}

// Outcome is the result for one input URL.
type Outcome struct {
	URL      string          `json:"url"`
	Vendor   string          `json:"vendor,omitempty"`
	Status   string          `json:"status"`
	Product  *models.Product `json:"product,omitempty"`
	Error    *ErrorInfo      `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`

	Err error `json:"-"`
}

// ErrorInfo is the structured, serialisable form of a failed outcome.
type ErrorInfo struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
	Field    string `json:"field,omitempty"`
	RawValue string `json:"raw_value,omitempty"`
}

type Result struct {
	BatchID   uuid.UUID     `json:"batch_id"`
	Outcomes  []Outcome     `json:"outcomes"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Products returns the successful records in input order.
func (r *Result) Products() []models.Product {
	products := make([]models.Product, 0, r.Succeeded)
	for _, o := range r.Outcomes {
		if o.Product != nil {
			products = append(products, *o.Product)
		}
	}
	return products
}

type Orchestrator struct {
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewOrchestrator(resolver Resolver, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		resolver: resolver,
		logger:   logger.With("component", "batch"),
		metrics:  m,
	}
}

// URLs builds requests for plain URLs, all resolved by domain.
func URLs(urls ...string) []Request {
	reqs := make([]Request, len(urls))
	for i, u := range urls {
		reqs[i] = Request{URL: u}
	}
	return reqs
}

// Run scrapes every request and returns exactly one outcome per request, in
// request order. Individual failures never fail the batch. Cancelling ctx
// aborts in-flight fetches; requests not yet started are reported as
// cancelled.
func (o *Orchestrator) Run(ctx context.Context, reqs []Request, opts RunOptions) *Result {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	result := &Result{
		BatchID:   uuid.New(),
		Outcomes:  make([]Outcome, len(reqs)),
		StartedAt: time.Now(),
	}
	logger := o.logger.With("batch_id", result.BatchID)
	logger.Info("starting batch", "urls", len(reqs), "concurrency", concurrency)

	o.metrics.BatchStarted()
	defer o.metrics.BatchFinished()

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		// each goroutine writes only its own slot
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				result.Outcomes[i] = failure(req, "", err, 0)
				return nil
			}
			result.Outcomes[i] = o.scrape(ctx, req, opts.Overrides)
			return nil
		})
	}
	g.Wait()

	for _, out := range result.Outcomes {
		if out.Status == StatusSuccess {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	result.Duration = time.Since(result.StartedAt)

	logger.Info("batch finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result
}

func (o *Orchestrator) scrape(ctx context.Context, req Request, overrides scraper.Overrides) (out Outcome) {
	start := time.Now()
	var vendor string

	// factories and vendor parsers run under the same recovery
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scrape panicked", "url", req.URL, "vendor", vendor, "panic", r)
			out = failure(req, vendor, scraper.ErrScraperPanic, time.Since(start))
		}
	}()

	s, ok := o.resolve(req)
	if !ok {
		input := req.URL
		if req.VendorKey != "" {
			input = req.VendorKey
		}
		return failure(req, "", &scraper.UnsupportedVendorError{Input: input}, time.Since(start))
	}
	if !overrides.IsZero() {
		s = s.WithOverrides(overrides)
	}
	vendor = s.Vendor().Key

	product, err := s.Scrape(ctx, req.URL)
	if err != nil {
		return failure(req, vendor, err, time.Since(start))
	}

	return Outcome{
		URL:      req.URL,
		Vendor:   vendor,
		Status:   StatusSuccess,
		Product:  &product,
		Duration: time.Since(start),
	}
}

func (o *Orchestrator) resolve(req Request) (scraper.Scraper, bool) {
	if req.VendorKey != "" {
		return o.resolver.ResolveByVendorKey(req.VendorKey)
	}
	return o.resolver.ResolveByURL(req.URL)
}

func failure(req Request, vendor string, err error, d time.Duration) Outcome {
	return Outcome{
		URL:      req.URL,
		Vendor:   vendor,
		Status:   StatusFailed,
		Error:    describe(err),
		Err:      err,
		Duration: d,
	}
}

func describe(err error) *ErrorInfo {
	info := &ErrorInfo{
		Code:    scraper.ErrorCode(err),
		Message: err.Error(),
	}

	var (
		fetchErr   *scraper.FetchError
		parseErr   *scraper.ParseError
		validation *models.ValidationError
	)
	switch {
	case errors.As(err, &fetchErr):
		info.Attempts = fetchErr.Attempts
	case errors.As(err, &parseErr):
		info.Field = parseErr.Field
		info.RawValue = parseErr.RawValue
	case errors.As(err, &validation):
		info.Field = validation.Field()
	}
	return info
}
