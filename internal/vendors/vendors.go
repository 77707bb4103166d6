// Package vendors wires the built-in vendor scrapers into a registry.
package vendors

import (
	"github.com/maltedev/vendor-scraper/internal/cookies"
	"github.com/maltedev/vendor-scraper/internal/registry"
	"github.com/maltedev/vendor-scraper/internal/vendors/mouser"
	"github.com/maltedev/vendor-scraper/internal/vendors/rscomponents"
)

// RegisterAll registers every built-in vendor with its storefront domains.
func RegisterAll(reg *registry.Registry) {
	reg.Register(rscomponents.Key, rscomponents.New, rscomponents.Domains...)
	reg.Register(mouser.Key, mouser.New, mouser.Domains...)
}

// CookieTargets lists the vendors that need harvested session cookies.
func CookieTargets() []cookies.Target {
	return []cookies.Target{mouser.CookieTarget}
}
