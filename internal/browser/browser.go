// Package browser fetches vendor pages through a headless Chromium for
// storefronts that only render behind JavaScript challenges.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/playwright-community/playwright-go"
)

// markers of interstitial challenge pages served instead of the product
var blockMarkers = []string{
	"just a moment...",
	"attention required! | cloudflare",
	"access denied",
	"are you a robot",
	"pardon our interruption",
	"captcha",
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	Logger         *slog.Logger
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "UTC",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// New starts playwright and a single Chromium context shared by every fetch.
func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		timeout: opts.Timeout,
		logger:  logger.With("component", "browser"),
	}, nil
}

type result struct {
	doc *fetch.Document
	err error
}

// Fetch loads req.URL in a fresh page. Playwright calls do not take a
// context, so cancellation closes the page to abort the navigation.
func (b *Browser) Fetch(ctx context.Context, req fetch.Request) (*fetch.Document, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()

	timeout := navigationTimeout(ctx, b.timeout)
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	done := make(chan result, 1)
	go func() {
		doc, err := b.load(page, req, timeout)
		done <- result{doc, err}
	}()

	select {
	case <-ctx.Done():
		page.Close()
		return nil, ctx.Err()
	case r := <-done:
		return r.doc, r.err
	}
}

func (b *Browser) load(page playwright.Page, req fetch.Request, timeout time.Duration) (*fetch.Document, error) {
	if len(req.Headers) > 0 {
		if err := page.SetExtraHTTPHeaders(req.Headers); err != nil {
			return nil, fmt.Errorf("failed to set headers: %w", err)
		}
	}

	resp, err := page.Goto(req.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", fetch.ErrTimeout, req.URL)
		}
		return nil, fmt.Errorf("failed to navigate to %s: %w", req.URL, err)
	}

	status := http.StatusOK
	header := http.Header{}
	if resp != nil {
		status = resp.Status()
		if all, err := resp.AllHeaders(); err == nil {
			for k, v := range all {
				header.Set(k, v)
			}
		}
	}
	if status >= http.StatusBadRequest {
		return nil, &fetch.StatusError{URL: req.URL, StatusCode: status}
	}

	title, _ := page.Title()
	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	if isBlocked(title, content) {
		b.logger.Warn("bot protection detected", "url", req.URL, "title", title)
		return nil, fmt.Errorf("%w: %s", fetch.ErrBlocked, req.URL)
	}

	b.logger.Debug("fetched document", "url", page.URL(), "status", status, "bytes", len(content))

	return &fetch.Document{
		URL:        page.URL(),
		StatusCode: status,
		Header:     header,
		Body:       []byte(content),
		FetchedAt:  time.Now(),
	}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// navigationTimeout is the smaller of fallback and the time left on ctx.
func navigationTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = 30 * time.Second
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	if left := time.Until(deadline); left < fallback {
		if left < time.Millisecond {
			return time.Millisecond
		}
		return left
	}
	return fallback
}

// isBlocked reports whether a rendered page is a challenge interstitial.
// Markers are matched against the title; the body is only checked near the
// top for challenge widgets.
func isBlocked(title, content string) bool {
	title = strings.ToLower(title)
	head := strings.ToLower(content)
	if len(head) > 4096 {
		head = head[:4096]
	}
	for _, marker := range blockMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return strings.Contains(head, "cf-challenge") || strings.Contains(head, "g-recaptcha")
}
