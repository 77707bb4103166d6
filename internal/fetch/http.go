package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

type HTTPOptions struct {
	UserAgents       []string
	CloudflareBypass bool
	Logger           *slog.Logger
}

// HTTPFetcher fetches pages over plain HTTP with a shared cookie jar, so
// session cookies set by a vendor persist across requests.
type HTTPFetcher struct {
	client     *resty.Client
	jar        http.CookieJar
	userAgents []string
	logger     *slog.Logger
}

func NewHTTPFetcher(opts HTTPOptions) (*HTTPFetcher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http_fetcher")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if opts.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}

	client := resty.New().
		SetTransport(transport).
		SetCookieJar(jar).
		SetHeaders(defaultHeaders).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("fetched document",
			"url", resp.Request.URL,
			"status", resp.StatusCode(),
			"duration", resp.Time(),
			"bytes", len(resp.Body()),
		)
		return nil
	})

	return &HTTPFetcher{
		client:     client,
		jar:        jar,
		userAgents: opts.UserAgents,
		logger:     logger,
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Document, error) {
	r := f.client.R().SetContext(ctx)
	if ua := f.userAgent(); ua != "" {
		r.SetHeader("User-Agent", ua)
	}
	r.SetHeaders(req.Headers)

	resp, err := r.Get(req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode()}
	}

	finalURL := req.URL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}

	fetchedAt := resp.ReceivedAt()
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	return &Document{
		URL:        finalURL,
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
		FetchedAt:  fetchedAt,
	}, nil
}

// SeedCookies adds cookies to the jar as if rawURL had set them.
func (f *HTTPFetcher) SeedCookies(rawURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrMalformedURL, rawURL)
	}
	f.jar.SetCookies(u, cookies)
	f.logger.Debug("seeded cookies", "host", u.Host, "count", len(cookies))
	return nil
}

func (f *HTTPFetcher) userAgent() string {
	if len(f.userAgents) == 0 {
		return ""
	}
	return f.userAgents[rand.IntN(len(f.userAgents))]
}
