package registry

import (
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/maltedev/vendor-scraper/internal/scraper"
)

// Registry maps vendor keys and domains to scraper factories. Register is
// meant to run during start-up; lookups are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]scraper.Factory
	domains   map[string]string
	cfg       scraper.Config
	logger    *slog.Logger
}

// VendorInfo describes one registered vendor.
type VendorInfo struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
}

// New returns an empty registry whose factories receive cfg.
func New(cfg scraper.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]scraper.Factory),
		domains:   make(map[string]string),
		cfg:       cfg,
		logger:    logger.With("component", "registry"),
	}
}

// Register binds vendorKey to factory and every domain to vendorKey. Both
// bindings are last-write-wins; overwrites are logged.
func (r *Registry) Register(vendorKey string, factory scraper.Factory, domains ...string) {
	key := strings.ToLower(strings.TrimSpace(vendorKey))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		r.logger.Warn("replacing scraper factory", "vendor", key)
	}
	r.factories[key] = factory

	for _, d := range domains {
		domain := normalizeHost(d)
		if domain == "" {
			continue
		}
		if prev, exists := r.domains[domain]; exists && prev != key {
			r.logger.Warn("rebinding domain", "domain", domain, "previous_vendor", prev, "vendor", key)
		}
		r.domains[domain] = key
	}

	r.logger.Debug("registered vendor", "vendor", key, "domains", domains)
}

// ResolveByURL returns a scraper for the URL's host: an exact domain match
// first, otherwise the longest registered domain the host ends with at a
// label boundary. Unknown hosts and malformed URLs are not found.
func (r *Registry) ResolveByURL(rawURL string) (scraper.Scraper, bool) {
	key, ok := r.VendorKeyForURL(rawURL)
	if !ok {
		return nil, false
	}
	return r.ResolveByVendorKey(key)
}

// VendorKeyForURL performs the domain lookup of ResolveByURL without
// building a scraper.
func (r *Registry) VendorKeyForURL(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if key, ok := r.domains[host]; ok {
		return key, true
	}

	var best, bestKey string
	for domain, key := range r.domains {
		if strings.HasSuffix(host, "."+domain) && len(domain) > len(best) {
			best, bestKey = domain, key
		}
	}
	return bestKey, best != ""
}

func (r *Registry) ResolveByVendorKey(vendorKey string) (scraper.Scraper, bool) {
	key := strings.ToLower(strings.TrimSpace(vendorKey))

	r.mu.RLock()
	factory, ok := r.factories[key]
	cfg := r.cfg
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return factory(cfg), true
}

func (r *Registry) IsSupported(rawURL string) bool {
	_, ok := r.VendorKeyForURL(rawURL)
	return ok
}

// ListVendors returns the registered vendors sorted by key, each with its
// sorted domains.
func (r *Registry) ListVendors() []VendorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKey := make(map[string][]string, len(r.factories))
	for key := range r.factories {
		byKey[key] = []string{}
	}
	for domain, key := range r.domains {
		byKey[key] = append(byKey[key], domain)
	}

	out := make([]VendorInfo, 0, len(byKey))
	for key, domains := range byKey {
		slices.Sort(domains)
		info := VendorInfo{Key: key, Domains: domains}
		if factory, ok := r.factories[key]; ok {
			info.Name = factory(r.cfg).Vendor().Name
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b VendorInfo) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// ListDomainMappings returns a copy of the domain to vendor key table.
func (r *Registry) ListDomainMappings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.domains)
}

func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	return strings.TrimPrefix(host, "www.")
}
