package models

import (
	"maps"
	"net/url"
	"regexp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the canonical record produced by a successful scrape. Values are
// built with NewProduct and are not modified afterwards; projections copy.
type Product struct {
	VendorName       string            `json:"vendor_name"`
	VendorPartNumber string            `json:"vendor_part_number"`
	SourceURL        string            `json:"source_url"`
	Title            string            `json:"title"`
	Specifications   Specifications    `json:"specifications"`
	Pricing          Pricing           `json:"pricing"`
	Availability     Availability      `json:"availability"`
	Media            Media             `json:"media"`
	VendorExtra      map[string]string `json:"vendor_extra,omitempty"`
	ScrapedAt        time.Time         `json:"scraped_at"`
	ScraperVersion   string            `json:"scraper_version,omitempty"`
}

type Specifications struct {
	Manufacturer           string            `json:"manufacturer,omitempty"`
	ManufacturerPartNumber string            `json:"manufacturer_part_number,omitempty"`
	Category               string            `json:"category,omitempty"`
	Description            string            `json:"description,omitempty"`
	TechnicalSpecs         map[string]string `json:"technical_specs,omitempty"`
	DatasheetURL           string            `json:"datasheet_url,omitempty"`
	Certifications         []string          `json:"certifications,omitempty"`
}

type Pricing struct {
	Currency             string              `json:"currency"`
	UnitPrice            decimal.NullDecimal `json:"unit_price"`
	QuantityBreaks       []PriceBreak        `json:"quantity_breaks,omitempty"`
	MinimumOrderQuantity *int                `json:"minimum_order_quantity,omitempty"`
	PricingUnit          string              `json:"pricing_unit,omitempty"`
}

// PriceBreak is one bulk pricing tier: Price applies from Quantity units up.
type PriceBreak struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type Availability struct {
	InStock             *bool  `json:"in_stock,omitempty"`
	StockQuantity       *int   `json:"stock_quantity,omitempty"`
	LeadTimeDays        *int   `json:"lead_time_days,omitempty"`
	LeadTimeDescription string `json:"lead_time_description,omitempty"`
	Discontinued        bool   `json:"discontinued"`
	LifecycleStatus     string `json:"lifecycle_status,omitempty"`
}

type Media struct {
	PrimaryImageURL  string   `json:"primary_image_url,omitempty"`
	AdditionalImages []string `json:"additional_images,omitempty"`
	VideoURLs        []string `json:"video_urls,omitempty"`
}

// Identity is the natural key of a product within one vendor's catalog.
type Identity struct {
	Vendor     string
	PartNumber string
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// NewProduct validates draft and returns an owned copy stamped with the
// current time. Any ScrapedAt value on draft is ignored.
func NewProduct(draft Product) (Product, error) {
	return newProductAt(draft, time.Now().UTC())
}

func newProductAt(draft Product, at time.Time) (Product, error) {
	if err := draft.Validate(); err != nil {
		return Product{}, err
	}

	p := draft.clone()
	p.ScrapedAt = at
	return p, nil
}

func (p Product) Identity() Identity {
	return Identity{Vendor: p.VendorName, PartNumber: p.VendorPartNumber}
}

// Validate checks every record-level invariant and reports all violations at once.
func (p Product) Validate() error {
	var v []Violation

	if p.VendorName == "" {
		v = append(v, Violation{Field: "vendor_name", Reason: "is required"})
	}
	if p.VendorPartNumber == "" {
		v = append(v, Violation{Field: "vendor_part_number", Reason: "is required"})
	}
	if p.Title == "" {
		v = append(v, Violation{Field: "title", Reason: "is required"})
	}
	if u, err := url.Parse(p.SourceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v = append(v, Violation{Field: "source_url", Reason: "must be an absolute http(s) URL"})
	}

	if !currencyPattern.MatchString(p.Pricing.Currency) {
		v = append(v, Violation{Field: "pricing.currency", Reason: "must be a three-letter upper-case code"})
	}
	if p.Pricing.UnitPrice.Valid && p.Pricing.UnitPrice.Decimal.IsNegative() {
		v = append(v, Violation{Field: "pricing.unit_price", Reason: "must not be negative"})
	}
	v = append(v, breakViolations(p.Pricing.QuantityBreaks)...)
	if moq := p.Pricing.MinimumOrderQuantity; moq != nil && *moq < 1 {
		v = append(v, Violation{Field: "pricing.minimum_order_quantity", Reason: "must be at least 1"})
	}

	if q := p.Availability.StockQuantity; q != nil && *q < 0 {
		v = append(v, Violation{Field: "availability.stock_quantity", Reason: "must not be negative"})
	}
	if d := p.Availability.LeadTimeDays; d != nil && *d < 0 {
		v = append(v, Violation{Field: "availability.lead_time_days", Reason: "must not be negative"})
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

// ValidateQuantityBreaks requires quantities >= 1 in strictly increasing order
// with non-negative prices that never rise as the quantity grows.
func ValidateQuantityBreaks(breaks []PriceBreak) error {
	if v := breakViolations(breaks); len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

func breakViolations(breaks []PriceBreak) []Violation {
	var v []Violation

	for i, b := range breaks {
		if b.Quantity < 1 {
			v = append(v, Violation{Field: "pricing.quantity_breaks", Reason: "quantity must be at least 1", Value: b.Quantity})
		}
		if b.Price.IsNegative() {
			v = append(v, Violation{Field: "pricing.quantity_breaks", Reason: "price must not be negative", Value: b.Price.String()})
		}
		if i == 0 {
			continue
		}
		prev := breaks[i-1]
		if b.Quantity <= prev.Quantity {
			v = append(v, Violation{Field: "pricing.quantity_breaks", Reason: "quantities must be strictly increasing", Value: b.Quantity})
		}
		if b.Price.GreaterThan(prev.Price) {
			v = append(v, Violation{Field: "pricing.quantity_breaks", Reason: "price increases with quantity", Value: b.Price.String()})
		}
	}
	return v
}

// EffectiveUnitPrice prefers the explicit unit price and falls back to the
// first quantity break.
func (p Pricing) EffectiveUnitPrice() decimal.NullDecimal {
	if p.UnitPrice.Valid {
		return p.UnitPrice
	}
	if len(p.QuantityBreaks) > 0 {
		return decimal.NewNullDecimal(p.QuantityBreaks[0].Price)
	}
	return decimal.NullDecimal{}
}

func (p Product) clone() Product {
	out := p
	out.VendorExtra = maps.Clone(p.VendorExtra)
	out.Specifications.TechnicalSpecs = maps.Clone(p.Specifications.TechnicalSpecs)
	out.Specifications.Certifications = slices.Clone(p.Specifications.Certifications)
	out.Pricing.QuantityBreaks = slices.Clone(p.Pricing.QuantityBreaks)
	out.Pricing.MinimumOrderQuantity = cloneInt(p.Pricing.MinimumOrderQuantity)
	out.Availability.InStock = cloneBool(p.Availability.InStock)
	out.Availability.StockQuantity = cloneInt(p.Availability.StockQuantity)
	out.Availability.LeadTimeDays = cloneInt(p.Availability.LeadTimeDays)
	out.Media.AdditionalImages = slices.Clone(p.Media.AdditionalImages)
	out.Media.VideoURLs = slices.Clone(p.Media.VideoURLs)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Int and Bool return pointers for the optional fields of a draft.
func Int(v int) *int { return &v }

func Bool(v bool) *bool { return &v }
