package browser

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/maltedev/vendor-scraper/internal/cookies"
	"github.com/playwright-community/playwright-go"
)

// consent banners clicked before collecting cookies
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"[data-testid='cookie-accept']",
	".cookie-accept",
	"#cookie-accept",
	"button[title*='Accept']",
	"button[aria-label*='Accept']",
}

const consentTimeout = 3 * time.Second

// HarvestCookies visits the target's home page, accepts the consent banner,
// optionally opens the sample product and returns the cookies the site set.
func (b *Browser) HarvestCookies(ctx context.Context, t cookies.Target) ([]*http.Cookie, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()

	type harvested struct {
		cookies []*http.Cookie
		err     error
	}
	done := make(chan harvested, 1)
	go func() {
		c, err := b.harvest(page, t, navigationTimeout(ctx, b.timeout))
		done <- harvested{c, err}
	}()

	select {
	case <-ctx.Done():
		page.Close()
		return nil, ctx.Err()
	case h := <-done:
		return h.cookies, h.err
	}
}

func (b *Browser) harvest(page playwright.Page, t cookies.Target, timeout time.Duration) ([]*http.Cookie, error) {
	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	}

	if _, err := page.Goto(t.HomeURL, gotoOpts); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", t.HomeURL, err)
	}
	b.acceptConsent(page)

	if t.SampleURL != "" {
		if _, err := page.Goto(t.SampleURL, gotoOpts); err != nil {
			b.logger.Warn("sample page failed", "url", t.SampleURL, "error", err)
		}
	}

	found, err := b.context.Cookies(t.HomeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	b.logger.Debug("collected cookies", "vendor", t.Vendor, "count", len(found))
	return toHTTPCookies(found), nil
}

func (b *Browser) acceptConsent(page playwright.Page) {
	for _, sel := range consentSelectors {
		err := page.Locator(sel).First().Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(float64(consentTimeout.Milliseconds() / int64(len(consentSelectors)))),
		})
		if err == nil {
			b.logger.Debug("accepted cookie consent", "selector", sel)
			return
		}
	}
}

// SeedCookies adds cookies to the shared browser context for rawURL's site.
func (b *Browser) SeedCookies(rawURL string, seed []*http.Cookie) error {
	if err := b.context.AddCookies(toPlaywrightCookies(rawURL, seed)); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	return nil
}

func toHTTPCookies(in []playwright.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, len(in))
	for i, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		// playwright reports session cookies with a negative expiry
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			hc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		out[i] = hc
	}
	return out
}

// toPlaywrightCookies scopes domain cookies by domain and path and the rest
// by rawURL, as playwright requires one or the other.
func toPlaywrightCookies(rawURL string, in []*http.Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, len(in))
	for i, c := range in {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Secure:   playwright.Bool(c.Secure),
			HttpOnly: playwright.Bool(c.HttpOnly),
		}
		if c.Domain != "" {
			path := c.Path
			if path == "" {
				path = "/"
			}
			oc.Domain = playwright.String(c.Domain)
			oc.Path = playwright.String(path)
		} else {
			oc.URL = playwright.String(rawURL)
		}
		if !c.Expires.IsZero() {
			oc.Expires = playwright.Float(float64(c.Expires.UnixMilli()) / 1000)
		}
		out[i] = oc
	}
	return out
}
