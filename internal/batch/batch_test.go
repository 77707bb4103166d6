package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scrapeFunc func(ctx context.Context, url string) (models.Product, error)

type fakeScraper struct {
	key    string
	policy scraper.Policy
	scrape scrapeFunc
}

func (f *fakeScraper) Vendor() scraper.Vendor {
	return scraper.Vendor{Key: f.key, Name: strings.ToUpper(f.key)}
}

func (f *fakeScraper) Fetch(context.Context, string) (*fetch.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeScraper) Parse(*fetch.Document, string) (models.Product, error) {
	return models.Product{}, errors.New("not implemented")
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) (models.Product, error) {
	return f.scrape(ctx, url)
}

func (f *fakeScraper) WithOverrides(o scraper.Overrides) scraper.Scraper {
	c := *f
	c.policy = f.policy.Apply(o)
	return &c
}

// fakeResolver maps hosts containing a key to that key's scraper.
type fakeResolver struct {
	scrapers map[string]*fakeScraper
}

func (r *fakeResolver) ResolveByURL(url string) (scraper.Scraper, bool) {
	for key, s := range r.scrapers {
		if strings.Contains(url, key+".example") {
			return s, true
		}
	}
	return nil, false
}

func (r *fakeResolver) ResolveByVendorKey(key string) (scraper.Scraper, bool) {
	s, ok := r.scrapers[key]
	return s, ok
}

func product(url string) (models.Product, error) {
	part := url[strings.LastIndex(url, "/")+1:]
	return models.NewProduct(models.Product{
		VendorName:       "Acme",
		VendorPartNumber: part,
		SourceURL:        url,
		Title:            "Part " + part,
		Pricing:          models.Pricing{Currency: "USD"},
	})
}

func succeed(ctx context.Context, url string) (models.Product, error) {
	return product(url)
}

func newOrchestrator(scrapers ...*fakeScraper) *Orchestrator {
	r := &fakeResolver{scrapers: map[string]*fakeScraper{}}
	for _, s := range scrapers {
		r.scrapers[s.key] = s
	}
	return NewOrchestrator(r, nil, nil)
}

func TestRunPreservesOrderAndIsolatesFailures(t *testing.T) {
	o := newOrchestrator(&fakeScraper{key: "acme", scrape: succeed})

	result := o.Run(context.Background(), URLs(
		"https://acme.example/p/AAA-1",
		"https://unknown.example/p/BBB-2",
		"https://acme.example/p/CCC-3",
	), RunOptions{Concurrency: 3})

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.NotEqual(t, uuid.Nil, result.BatchID)

	first, second, third := result.Outcomes[0], result.Outcomes[1], result.Outcomes[2]

	assert.Equal(t, StatusSuccess, first.Status)
	require.NotNil(t, first.Product)
	assert.Equal(t, "AAA-1", first.Product.VendorPartNumber)
	assert.Equal(t, "acme", first.Vendor)

	assert.Equal(t, StatusFailed, second.Status)
	assert.Nil(t, second.Product)
	var unsupported *scraper.UnsupportedVendorError
	require.ErrorAs(t, second.Err, &unsupported)
	assert.Equal(t, "https://unknown.example/p/BBB-2", unsupported.Input)
	assert.Equal(t, scraper.CodeUnsupportedVendor, second.Error.Code)

	assert.Equal(t, StatusSuccess, third.Status)
	assert.Equal(t, "CCC-3", third.Product.VendorPartNumber)

	products := result.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "AAA-1", products[0].VendorPartNumber)
	assert.Equal(t, "CCC-3", products[1].VendorPartNumber)
}

func TestRunEmpty(t *testing.T) {
	result := newOrchestrator().Run(context.Background(), nil, RunOptions{})
	assert.Empty(t, result.Outcomes)
	assert.Empty(t, result.Products())
}

func TestRunBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	s := &fakeScraper{key: "acme", scrape: func(ctx context.Context, url string) (models.Product, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return product(url)
	}}

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = "https://acme.example/p/P-" + string(rune('A'+i))
	}

	result := newOrchestrator(s).Run(context.Background(), URLs(urls...), RunOptions{Concurrency: 3})

	assert.Equal(t, 10, result.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
	for i, out := range result.Outcomes {
		assert.Equal(t, urls[i], out.URL)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once

	s := &fakeScraper{key: "acme", scrape: func(ctx context.Context, url string) (models.Product, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return models.Product{}, &scraper.FetchError{URL: url, Attempts: 1, Cause: ctx.Err()}
	}}

	go func() {
		<-started
		cancel()
	}()

	done := make(chan *Result)
	go func() {
		done <- newOrchestrator(s).Run(ctx, URLs(
			"https://acme.example/p/AAA-1",
			"https://acme.example/p/BBB-2",
			"https://acme.example/p/CCC-3",
		), RunOptions{Concurrency: 1})
	}()

	select {
	case result := <-done:
		require.Len(t, result.Outcomes, 3)
		assert.Equal(t, 3, result.Failed)
		for _, out := range result.Outcomes {
			assert.Equal(t, scraper.CodeCancelled, out.Error.Code, out.URL)
		}
		assert.Equal(t, 1, result.Outcomes[0].Error.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not return after cancellation")
	}
}

func TestRunVendorKeyAndPolicyOverride(t *testing.T) {
	var mu sync.Mutex
	var seen []scraper.Policy

	attempts, noDelay := 7, time.Duration(0)
	base := &fakeScraper{key: "acme", policy: scraper.DefaultPolicy()}
	base.scrape = func(ctx context.Context, url string) (models.Product, error) {
		return product(url)
	}
	// WithOverrides copies, so capture the policy through a wrapper resolver
	r := &policyRecorder{fakeResolver: fakeResolver{scrapers: map[string]*fakeScraper{"acme": base}}, mu: &mu, seen: &seen}
	o := NewOrchestrator(r, nil, nil)

	result := o.Run(context.Background(), []Request{
		{URL: "https://elsewhere.example/p/AAA-1", VendorKey: "acme"},
		{URL: "https://elsewhere.example/p/BBB-2", VendorKey: "nope"},
	}, RunOptions{Overrides: scraper.Overrides{MaxAttempts: &attempts, RequestDelay: &noDelay}})

	assert.Equal(t, StatusSuccess, result.Outcomes[0].Status)
	assert.Equal(t, scraper.CodeUnsupportedVendor, result.Outcomes[1].Error.Code)
	assert.Contains(t, result.Outcomes[1].Error.Message, "nope")

	require.Len(t, seen, 1)
	assert.Equal(t, 7, seen[0].MaxAttempts)
	assert.Equal(t, time.Duration(0), seen[0].RequestDelay, "an explicit zero delay replaces the configured one")
	assert.Equal(t, scraper.DefaultPolicy().Timeout, seen[0].Timeout)
}

type policyRecorder struct {
	fakeResolver
	mu   *sync.Mutex
	seen *[]scraper.Policy
}

func (r *policyRecorder) ResolveByVendorKey(key string) (scraper.Scraper, bool) {
	s, ok := r.scrapers[key]
	if !ok {
		return nil, false
	}
	return &recordingScraper{fakeScraper: s, r: r}, true
}

type recordingScraper struct {
	*fakeScraper
	r *policyRecorder
}

func (s *recordingScraper) WithOverrides(o scraper.Overrides) scraper.Scraper {
	c := s.fakeScraper.WithOverrides(o).(*fakeScraper)
	s.r.mu.Lock()
	*s.r.seen = append(*s.r.seen, c.policy)
	s.r.mu.Unlock()
	return c
}

func TestRunDescribesFailures(t *testing.T) {
	s := &fakeScraper{key: "acme", scrape: func(ctx context.Context, url string) (models.Product, error) {
		switch {
		case strings.HasSuffix(url, "fetch"):
			return models.Product{}, &scraper.FetchError{URL: url, Attempts: 3, Cause: &fetch.StatusError{URL: url, StatusCode: 503}}
		case strings.HasSuffix(url, "parse"):
			return models.Product{}, scraper.MalformedField("pricing.unit_price", "POA", errors.New("bad"))
		case strings.HasSuffix(url, "invalid"):
			return models.NewProduct(models.Product{VendorName: "Acme", Title: "x", SourceURL: url, Pricing: models.Pricing{Currency: "USD"}})
		default:
			panic("parser bug")
		}
	}}

	result := newOrchestrator(s).Run(context.Background(), URLs(
		"https://acme.example/p/fetch",
		"https://acme.example/p/parse",
		"https://acme.example/p/invalid",
		"https://acme.example/p/panic",
	), RunOptions{})

	require.Len(t, result.Outcomes, 4)
	assert.Equal(t, 4, result.Failed)

	assert.Equal(t, &ErrorInfo{
		Code:     scraper.CodeFetchFailed,
		Message:  result.Outcomes[0].Err.Error(),
		Attempts: 3,
	}, result.Outcomes[0].Error)

	assert.Equal(t, scraper.CodeParseFailed, result.Outcomes[1].Error.Code)
	assert.Equal(t, "pricing.unit_price", result.Outcomes[1].Error.Field)
	assert.Equal(t, "POA", result.Outcomes[1].Error.RawValue)

	assert.Equal(t, scraper.CodeValidationFailed, result.Outcomes[2].Error.Code)
	assert.Equal(t, "vendor_part_number", result.Outcomes[2].Error.Field)

	assert.Equal(t, scraper.CodeInternal, result.Outcomes[3].Error.Code)
	assert.ErrorIs(t, result.Outcomes[3].Err, scraper.ErrScraperPanic)
}

// panickingResolver fails while building the scraper for one vendor.
type panickingResolver struct {
	fakeResolver
}

func (r *panickingResolver) ResolveByURL(url string) (scraper.Scraper, bool) {
	if strings.Contains(url, "broken.example") {
		panic("factory bug")
	}
	return r.fakeResolver.ResolveByURL(url)
}

func TestRunIsolatesResolverPanics(t *testing.T) {
	s := &fakeScraper{key: "acme", scrape: func(ctx context.Context, url string) (models.Product, error) {
		return product(url)
	}}
	r := &panickingResolver{fakeResolver{scrapers: map[string]*fakeScraper{"acme": s}}}

	var result *Result
	require.NotPanics(t, func() {
		result = NewOrchestrator(r, nil, nil).Run(context.Background(), URLs(
			"https://acme.example/p/AAA-1",
			"https://broken.example/p/BBB-2",
			"https://acme.example/p/CCC-3",
		), RunOptions{Concurrency: 2})
	})

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, StatusFailed, result.Outcomes[1].Status)
	assert.Equal(t, scraper.CodeInternal, result.Outcomes[1].Error.Code)
	assert.ErrorIs(t, result.Outcomes[1].Err, scraper.ErrScraperPanic)
}
