package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maltedev/vendor-scraper/internal/browser"
	"github.com/maltedev/vendor-scraper/internal/config"
	"github.com/maltedev/vendor-scraper/internal/cookies"
	"github.com/maltedev/vendor-scraper/internal/export"
	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/maltedev/vendor-scraper/internal/metrics"
	"github.com/maltedev/vendor-scraper/internal/ratelimit"
	"github.com/maltedev/vendor-scraper/internal/registry"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/maltedev/vendor-scraper/internal/vendors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Build wires a Service from configuration: fetcher, rate limiter,
// registry with the built-in vendors, and export sinks. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New(reg)

	var closers []func() error
	fail := func(err error) (*Service, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
	}

	var fetcher fetch.Fetcher
	var shared *browser.Browser
	switch cfg.Scraper.Fetcher {
	case config.FetcherBrowser:
		b, err := browser.New(browserOptions(cfg, logger))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, b.Close)
		fetcher, shared = b, b
	default:
		f, err := fetch.NewHTTPFetcher(fetch.HTTPOptions{
			UserAgents:       cfg.Scraper.UserAgents,
			CloudflareBypass: cfg.Scraper.CloudflareBypass,
			Logger:           logger,
		})
		if err != nil {
			return fail(err)
		}
		fetcher = f
	}

	if cfg.Scraper.CookieDir != "" {
		if seeder, ok := fetcher.(cookies.Seeder); ok {
			seedCookies(ctx, cfg, seeder, shared, logger)
		}
	}

	var limiter ratelimit.Limiter = ratelimit.NewVendorLimiter(cfg.Scraper.Jitter)
	if cfg.Redis.SharedRateLimit && rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, "")
	}

	scrapers := registry.New(scraper.Config{
		Fetcher: fetcher,
		Limiter: limiter,
		Policy:  cfg.Scraper.Policy(),
		Logger:  logger,
		Metrics: m,
	}, logger)
	vendors.RegisterAll(scrapers)

	sinks := map[string]export.Sink{
		SinkFile: export.NewFileSink(cfg.Export.Dir),
	}
	if rdb != nil {
		sinks[SinkRedis] = export.NewRedisStreamSink(rdb, cfg.Redis.Stream, cfg.Redis.StreamMaxLen)
	}

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return fail(err)
	}

	svc := New(Options{
		Registry:      scrapers,
		Sinks:         sinks,
		Prefix:        cfg.Export.Prefix,
		DefaultFormat: format,
		Concurrency:   cfg.Scraper.Concurrency,
		Metrics:       m,
		Logger:        logger,
	})
	for _, c := range closers {
		svc.AddCloser(c)
	}

	logger.Info("service ready",
		"fetcher", cfg.Scraper.Fetcher,
		"shared_rate_limit", cfg.Redis.SharedRateLimit && rdb != nil,
		"vendors", len(scrapers.ListVendors()),
	)
	return svc, nil
}

func browserOptions(cfg *config.Config, logger *slog.Logger) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	opts.Logger = logger
	if len(cfg.Scraper.UserAgents) > 0 {
		opts.UserAgent = cfg.Scraper.UserAgents[0]
	}
	return opts
}

// seedCookies loads cached or harvested session cookies for the vendors that
// need them. Harvesting reuses the shared browser when there is one and
// otherwise starts a short-lived one only on a cache miss.
func seedCookies(ctx context.Context, cfg *config.Config, seeder cookies.Seeder, shared *browser.Browser, logger *slog.Logger) {
	var harvester cookies.Harvester
	switch {
	case !cfg.Scraper.CookieHarvest:
	case shared != nil:
		harvester = shared
	default:
		harvester = cookies.HarvesterFunc(func(ctx context.Context, t cookies.Target) ([]*http.Cookie, error) {
			b, err := browser.New(browserOptions(cfg, logger))
			if err != nil {
				return nil, err
			}
			defer b.Close()
			return b.HarvestCookies(ctx, t)
		})
	}

	manager := cookies.NewManager(cookies.NewFileCache(cfg.Scraper.CookieDir, cfg.Scraper.CookieTTL), harvester, logger)
	n := manager.Seed(ctx, seeder, vendors.CookieTargets()...)
	logger.Info("session cookies seeded", "vendors", n)
}
