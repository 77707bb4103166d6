// Package cookies keeps per-vendor session cookies for storefronts whose bot
// protection rejects cookieless clients. Cookies are harvested with a real
// browser, cached on disk and seeded into the fetcher before scraping.
package cookies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultTTL = 12 * time.Hour

var ErrNoCookies = errors.New("no cookies available")

// Target describes where to collect a vendor's cookies. SampleURL, when set,
// is visited after HomeURL to trigger product-page cookies.
type Target struct {
	Vendor    string
	HomeURL   string
	SampleURL string
}

// Harvester collects fresh cookies for a target, usually with a browser.
type Harvester interface {
	HarvestCookies(ctx context.Context, t Target) ([]*http.Cookie, error)
}

type HarvesterFunc func(ctx context.Context, t Target) ([]*http.Cookie, error)

func (f HarvesterFunc) HarvestCookies(ctx context.Context, t Target) ([]*http.Cookie, error) {
	return f(ctx, t)
}

// Seeder accepts cookies for the site at rawURL.
type Seeder interface {
	SeedCookies(rawURL string, cookies []*http.Cookie) error
}

// entry is the on-disk form of one vendor's cookies.
type entry struct {
	Vendor    string    `json:"vendor"`
	BaseURL   string    `json:"base_url"`
	Cookies   []cookie  `json:"cookies"`
	SavedAt   time.Time `json:"saved_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// FileCache stores one JSON file per vendor in Dir. Entries older than TTL
// are treated as missing.
type FileCache struct {
	Dir string
	TTL time.Duration

	now func() time.Time
}

func NewFileCache(dir string, ttl time.Duration) *FileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FileCache{Dir: dir, TTL: ttl, now: time.Now}
}

func (c *FileCache) path(vendor string) string {
	return filepath.Join(c.Dir, strings.ToLower(vendor)+"_cookies.json")
}

// Load returns the cached cookies of vendor. ok is false when there is no
// entry, it has expired, or it holds no cookies.
func (c *FileCache) Load(vendor string) (cookies []*http.Cookie, ok bool, err error) {
	data, err := os.ReadFile(c.path(vendor))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cookie cache: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("failed to decode cookie cache: %w", err)
	}
	if !c.now().Before(e.ExpiresAt) || len(e.Cookies) == 0 {
		return nil, false, nil
	}

	out := make([]*http.Cookie, len(e.Cookies))
	for i, ck := range e.Cookies {
		out[i] = &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			Secure:   ck.Secure,
			HttpOnly: ck.HttpOnly,
		}
	}
	return out, true, nil
}

// Save replaces the vendor's entry. The file is written to a temporary name
// and renamed, so readers never see a partial entry.
func (c *FileCache) Save(t Target, cookies []*http.Cookie) error {
	now := c.now().UTC()
	e := entry{
		Vendor:    t.Vendor,
		BaseURL:   t.HomeURL,
		Cookies:   make([]cookie, len(cookies)),
		SavedAt:   now,
		ExpiresAt: now.Add(c.TTL),
	}
	for i, ck := range cookies {
		e.Cookies[i] = cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			Secure:   ck.Secure,
			HttpOnly: ck.HttpOnly,
		}
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookie cache: %w", err)
	}
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cookie dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.Dir, ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cookie cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookie cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cookie cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(t.Vendor)); err != nil {
		return fmt.Errorf("failed to replace cookie cache: %w", err)
	}
	return nil
}

// Clear removes the vendor's entry, if any.
func (c *FileCache) Clear(vendor string) error {
	if err := os.Remove(c.path(vendor)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear cookie cache: %w", err)
	}
	return nil
}

// Manager hands out valid cookies for a vendor: cached first, then freshly
// harvested when a harvester is configured.
type Manager struct {
	cache     *FileCache
	harvester Harvester
	logger    *slog.Logger
}

// NewManager returns a Manager. A nil harvester limits it to the cache.
func NewManager(cache *FileCache, harvester Harvester, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cache:     cache,
		harvester: harvester,
		logger:    logger.With("component", "cookies"),
	}
}

func (m *Manager) Cookies(ctx context.Context, t Target) ([]*http.Cookie, error) {
	cached, ok, err := m.cache.Load(t.Vendor)
	if err != nil {
		m.logger.Warn("ignoring unreadable cookie cache", "vendor", t.Vendor, "error", err)
	}
	if ok {
		m.logger.Info("using cached cookies", "vendor", t.Vendor, "count", len(cached))
		return cached, nil
	}

	return m.Refresh(ctx, t)
}

// Refresh harvests new cookies and caches them, ignoring any cached entry.
func (m *Manager) Refresh(ctx context.Context, t Target) ([]*http.Cookie, error) {
	if m.harvester == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoCookies, t.Vendor)
	}

	m.logger.Info("harvesting cookies", "vendor", t.Vendor, "url", t.HomeURL)
	fresh, err := m.harvester.HarvestCookies(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to harvest cookies for %s: %w", t.Vendor, err)
	}
	if len(fresh) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoCookies, t.Vendor)
	}

	if err := m.cache.Save(t, fresh); err != nil {
		m.logger.Warn("failed to cache cookies", "vendor", t.Vendor, "error", err)
	}
	m.logger.Info("harvested cookies", "vendor", t.Vendor, "count", len(fresh))
	return fresh, nil
}

// Seed loads cookies for every target into seeder. Targets without cookies
// are logged and skipped; the count of seeded targets is returned.
func (m *Manager) Seed(ctx context.Context, seeder Seeder, targets ...Target) int {
	seeded := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		cookies, err := m.Cookies(ctx, t)
		if err != nil {
			m.logger.Warn("scraping without session cookies", "vendor", t.Vendor, "error", err)
			continue
		}
		if err := seeder.SeedCookies(t.HomeURL, cookies); err != nil {
			m.logger.Warn("failed to seed cookies", "vendor", t.Vendor, "error", err)
			continue
		}
		seeded++
	}
	return seeded
}
