// Package service combines the registry, the batch orchestrator and the
// export pipeline behind the operations the CLI and HTTP API expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/maltedev/vendor-scraper/internal/batch"
	"github.com/maltedev/vendor-scraper/internal/export"
	"github.com/maltedev/vendor-scraper/internal/metrics"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/registry"
	"github.com/maltedev/vendor-scraper/internal/scraper"
)

const (
	SinkFile  = "file"
	SinkRedis = "redis"
)

var (
	ErrNoURLs      = errors.New("no urls given")
	ErrUnknownSink = errors.New("unknown export sink")
)

type Options struct {
	Registry      *registry.Registry
	Sinks         map[string]export.Sink
	Prefix        string
	DefaultFormat export.Format
	Concurrency   int
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

type Service struct {
	registry      *registry.Registry
	orchestrator  *batch.Orchestrator
	pipelines     map[string]*export.Pipeline
	defaultFormat export.Format
	concurrency   int
	logger        *slog.Logger
	closers       []func() error
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	format := opts.DefaultFormat
	if format == "" {
		format = export.FormatXLSX
	}

	pipelines := make(map[string]*export.Pipeline, len(opts.Sinks))
	for name, sink := range opts.Sinks {
		pipelines[name] = export.NewPipeline(sink, export.PipelineOptions{
			Prefix:  opts.Prefix,
			Logger:  logger,
			Metrics: opts.Metrics,
		})
	}

	return &Service{
		registry:      opts.Registry,
		orchestrator:  batch.NewOrchestrator(opts.Registry, opts.Metrics, logger),
		pipelines:     pipelines,
		defaultFormat: format,
		concurrency:   opts.Concurrency,
		logger:        logger.With("component", "service"),
	}
}

type ScrapeRequest struct {
	URLs        []string
	Vendor      string
	Overrides   scraper.Overrides
	Concurrency int
}

type ExportRequest struct {
	ScrapeRequest
	Format   string
	Filename string
	Sink     string
}

type ExportResult struct {
	Batch       *batch.Result `json:"batch"`
	Destination string        `json:"destination"`
	Format      export.Format `json:"format"`
	Exported    int           `json:"exported"`
}

func (s *Service) Vendors() []registry.VendorInfo {
	return s.registry.ListVendors()
}

func (s *Service) DomainMappings() map[string]string {
	return s.registry.ListDomainMappings()
}

// SupportedDomains returns every registered domain, sorted.
func (s *Service) SupportedDomains() []string {
	mappings := s.registry.ListDomainMappings()
	domains := make([]string, 0, len(mappings))
	for d := range mappings {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Resolve reports which vendor key would handle rawURL.
func (s *Service) Resolve(rawURL string) (string, bool) {
	return s.registry.VendorKeyForURL(rawURL)
}

func (s *Service) Scrape(ctx context.Context, req ScrapeRequest) (*batch.Result, error) {
	urls := cleanURLs(req.URLs)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	reqs := make([]batch.Request, len(urls))
	for i, u := range urls {
		reqs[i] = batch.Request{URL: u, VendorKey: req.Vendor}
	}

	concurrency := req.Concurrency
	if concurrency < 1 {
		concurrency = s.concurrency
	}

	return s.orchestrator.Run(ctx, reqs, batch.RunOptions{
		Overrides:   req.Overrides,
		Concurrency: concurrency,
	}), nil
}

// Export writes products with the named format and sink; empty values pick
// the configured format and the file sink.
func (s *Service) Export(ctx context.Context, products []models.Product, format, filename, sink string) (string, export.Format, error) {
	f := s.defaultFormat
	if format != "" {
		parsed, err := export.ParseFormat(format)
		if err != nil {
			return "", "", err
		}
		f = parsed
	}

	if sink == "" {
		sink = SinkFile
	}
	pipeline, ok := s.pipelines[sink]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownSink, sink)
	}

	exporter, err := export.NewExporter(f)
	if err != nil {
		return "", "", err
	}

	dest, err := pipeline.Save(ctx, exporter.ExportMultiple(products), filename)
	if err != nil {
		return "", "", err
	}
	return dest, f, nil
}

// ScrapeAndExport scrapes the request and exports every successful record.
// The batch result is returned even when the export fails.
func (s *Service) ScrapeAndExport(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	result, err := s.Scrape(ctx, req.ScrapeRequest)
	if err != nil {
		return nil, err
	}

	products := result.Products()
	dest, format, err := s.Export(ctx, products, req.Format, req.Filename, req.Sink)
	out := &ExportResult{Batch: result, Destination: dest, Format: format, Exported: len(products)}
	if err != nil {
		out.Exported = 0
		return out, err
	}
	return out, nil
}

// AddCloser registers cleanup run by Close in reverse order.
func (s *Service) AddCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || strings.HasPrefix(u, "#") {
			continue
		}
		out = append(out, u)
	}
	return out
}
