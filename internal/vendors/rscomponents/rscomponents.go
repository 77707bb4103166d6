// Package rscomponents scrapes product pages from the RS Components
// regional storefronts.
package rscomponents

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/parser"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/shopspring/decimal"
)

const (
	Key     = "rs_components"
	Name    = "RS Components"
	BaseURL = "https://au.rs-online.com"
	Version = "1.0"
)

var Domains = []string{
	"rs-online.com",
	"uk.rs-online.com",
	"au.rs-online.com",
	"sg.rs-online.com",
	"export.rs-online.com",
	"ie.rs-online.com",
	"fr.rs-online.com",
	"de.rs-online.com",
}

var headers = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-AU,en;q=0.9",
	"Cache-Control":   "no-cache",
}

var currencyByRegion = map[string]string{
	"uk":     "GBP",
	"au":     "AUD",
	"sg":     "SGD",
	"ie":     "EUR",
	"fr":     "EUR",
	"de":     "EUR",
	"export": "GBP",
}

var (
	selTitle        = []string{`h1[data-testid="product-title"]`, "h1.product-title", ".pdp-product-name h1", `[data-qa="product-name"]`, "h1"}
	selStockNumber  = []string{`[data-testid="stock-number"]`, ".stock-number", `[data-qa="stock-number"]`}
	selMPN          = []string{`[data-testid="manufacturer-part-number"]`, ".mpn", `[data-qa="manufacturer-part-number"]`}
	selManufacturer = []string{`[data-testid="manufacturer-name"]`, ".manufacturer-name", `[data-qa="brand-name"]`}
	selDescription  = []string{`[data-testid="product-description"]`, ".product-description", ".pdp-product-description"}
	selBreadcrumb   = []string{`[data-testid="breadcrumb"]`, ".breadcrumb", ".breadcrumbs"}
	selSpecs        = []string{`[data-testid="specifications"]`, ".specifications-table", ".tech-specs"}
	selDatasheet    = []string{`a[data-testid="datasheet-link"]`, `a[href$=".pdf"]`}
	selPrice        = []string{`[data-testid="exc-vat"]`, ".price-current", ".unit-price", `[data-qa="unit-price"]`}
	selPriceInc     = []string{`[data-testid="inc-vat"]`}
	selPriceBreaks  = []string{`[data-testid="price-breaks"]`, ".price-breaks", ".quantity-pricing"}
	selMOQ          = []string{`[data-testid="minimum-order-quantity"]`, `[data-testid="price-heading"]`, ".moq", `[data-qa="moq"]`}
	selStock        = []string{`[data-testid="stock-status"]`, `[data-testid="stock-status-0"]`, ".stock-status", `[data-qa="availability"]`}
	selImage        = []string{`[data-testid="gallery-fallback-image"]`, ".product-image img", ".pdp-image img", ".hero-image img"}
)

var (
	stockNumberLabel = regexp.MustCompile(`(?i)RS\s+Stock\s+No\.?:?\s*([0-9][0-9-]*)`)
	mpnLabel         = regexp.MustCompile(`(?i)Mfr\.?\s*Part\s*No\.?:?\s*(\S+)`)
	stockNumberPath  = regexp.MustCompile(`^\d{3}-?\d{3,4}$`)
	stockCount       = regexp.MustCompile(`(?i)(\d[\d,]*)\s*in\s+(?:global|local)\s+stock`)
	leadTime         = regexp.MustCompile(`(?i)(\d+)(?:\s*-\s*\d+)?\s*(?:working\s*)?days?`)
	discontinued     = regexp.MustCompile(`(?i)discontinued|no longer (?:stocked|available)|obsolete`)
)

func New(cfg scraper.Config) scraper.Scraper {
	vendor := scraper.Vendor{
		Key:     Key,
		Name:    Name,
		BaseURL: BaseURL,
		Version: Version,
		Headers: headers,
	}
	return scraper.NewBase(cfg, vendor, Parser{})
}

// Parser extracts products from RS Components product pages.
type Parser struct{}

func (Parser) Parse(doc *fetch.Document, pageURL string) (models.Product, error) {
	base := pageURL
	if doc.URL != "" {
		base = doc.URL
	}
	page, err := parser.NewPage(doc.Body, base)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to read rs components page: %w", err)
	}

	title := page.Text(selTitle...)
	if title == "" {
		return models.Product{}, scraper.MissingField("title")
	}

	stockNumber := stockNumber(page)
	if stockNumber == "" {
		return models.Product{}, scraper.MissingField("vendor_part_number")
	}

	pricing, extra, err := parsePricing(page)
	if err != nil {
		return models.Product{}, err
	}

	return models.NewProduct(models.Product{
		VendorName:       Name,
		VendorPartNumber: stockNumber,
		SourceURL:        pageURL,
		Title:            title,
		Specifications:   parseSpecifications(page),
		Pricing:          pricing,
		Availability:     parseAvailability(page),
		Media:            parseMedia(page),
		VendorExtra:      extra,
		ScraperVersion:   Version,
	})
}

// stockNumber finds the RS stock number from a dedicated element, a labelled
// line of text, or the trailing segment of /web/p/.../1234567 URLs.
func stockNumber(page *parser.Page) string {
	if text := page.Text(selStockNumber...); text != "" {
		if m := stockNumberLabel.FindStringSubmatch(text); m != nil {
			return m[1]
		}
		if parser.ValidPartNumber(text) {
			return text
		}
	}

	if m := stockNumberLabel.FindStringSubmatch(page.Doc().Text()); m != nil {
		return m[1]
	}

	last := path.Base(strings.TrimSuffix(page.URL().Path, "/"))
	if stockNumberPath.MatchString(last) {
		return last
	}
	return ""
}

func parseSpecifications(page *parser.Page) models.Specifications {
	specs := models.Specifications{
		Manufacturer:   page.Text(selManufacturer...),
		Description:    page.Text(selDescription...),
		TechnicalSpecs: parser.SpecTable(page.Find(selSpecs...)),
		DatasheetURL:   page.Resolve(page.Attr("href", selDatasheet...)),
	}

	if mpn := page.Text(selMPN...); mpn != "" {
		if m := mpnLabel.FindStringSubmatch(mpn); m != nil {
			mpn = m[1]
		}
		specs.ManufacturerPartNumber = mpn
	} else {
		for key, value := range specs.TechnicalSpecs {
			lower := strings.ToLower(key)
			if strings.Contains(lower, "mfr. part no") || strings.Contains(lower, "manufacturer part number") {
				specs.ManufacturerPartNumber = value
				break
			}
		}
	}

	crumbs := page.Find(selBreadcrumb...).Find("a")
	if crumbs.Length() > 1 {
		specs.Category = parser.CleanText(crumbs.Eq(crumbs.Length() - 2).Text())
	}

	for key, value := range specs.TechnicalSpecs {
		if strings.Contains(strings.ToLower(key), "rohs") && !strings.EqualFold(value, "no") {
			specs.Certifications = append(specs.Certifications, "RoHS")
			break
		}
	}

	return specs
}

// parsePricing returns the pricing block plus vendor extras; the tax
// inclusive price has no canonical field.
func parsePricing(page *parser.Page) (models.Pricing, map[string]string, error) {
	pricing := models.Pricing{Currency: currency(page)}
	extra := make(map[string]string)
	sep := parser.SeparatorForRegion(page.Region())

	if raw := page.Text(selPrice...); raw != "" {
		price, err := parser.ParsePriceIn(raw, sep)
		if err != nil {
			return models.Pricing{}, nil, scraper.MalformedField("pricing.unit_price", raw, err)
		}
		pricing.UnitPrice = decimal.NewNullDecimal(price)
	}

	if raw := page.Text(selPriceInc...); raw != "" {
		if price, err := parser.ParsePriceIn(raw, sep); err == nil {
			extra["unit_price_inc_tax"] = price.String()
		}
	}

	var parseErr error
	page.Find(selPriceBreaks...).Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return true
		}
		qtyText := parser.CleanText(cells.Eq(0).Text())
		qty, err := parser.ParseQuantity(qtyText)
		if err != nil {
			// header row
			return true
		}
		raw := parser.CleanText(cells.Eq(1).Text())
		price, err := parser.ParsePriceIn(raw, sep)
		if err != nil {
			parseErr = scraper.MalformedField("pricing.quantity_breaks", raw, err)
			return false
		}
		pricing.QuantityBreaks = append(pricing.QuantityBreaks, models.PriceBreak{Quantity: qty, Price: price})
		return true
	})
	if parseErr != nil {
		return models.Pricing{}, nil, parseErr
	}

	if raw := page.Text(selMOQ...); raw != "" {
		moq, err := parser.ParseQuantity(raw)
		if err != nil {
			return models.Pricing{}, nil, scraper.MalformedField("pricing.minimum_order_quantity", raw, err)
		}
		pricing.MinimumOrderQuantity = models.Int(moq)
	} else if len(pricing.QuantityBreaks) > 0 {
		pricing.MinimumOrderQuantity = models.Int(pricing.QuantityBreaks[0].Quantity)
	}

	if unit := page.Text(`[data-testid="pricing-unit"]`, ".price-unit"); unit != "" {
		pricing.PricingUnit = strings.ToLower(strings.TrimPrefix(unit, "per "))
	}

	return pricing, extra, nil
}

func parseAvailability(page *parser.Page) models.Availability {
	var avail models.Availability

	text := page.Text(selStock...)
	if text == "" {
		return avail
	}

	lower := strings.ToLower(text)
	avail.LeadTimeDescription = text
	avail.Discontinued = discontinued.MatchString(lower)

	switch {
	case strings.Contains(lower, "in global stock"), strings.Contains(lower, "in local stock"):
		avail.InStock = models.Bool(true)
	case strings.Contains(lower, "out of stock"), avail.Discontinued:
		avail.InStock = models.Bool(false)
		avail.StockQuantity = models.Int(0)
	}

	if m := stockCount.FindStringSubmatch(text); m != nil {
		if n, err := parser.ParseQuantity(m[1]); err == nil {
			avail.StockQuantity = models.Int(n)
		}
	}
	if m := leadTime.FindStringSubmatch(text); m != nil {
		if n, err := parser.ParseQuantity(m[1]); err == nil {
			avail.LeadTimeDays = models.Int(n)
		}
	}
	if avail.Discontinued {
		avail.LifecycleStatus = "discontinued"
	}

	return avail
}

func parseMedia(page *parser.Page) models.Media {
	var media models.Media

	img := page.Find(selImage...)
	media.PrimaryImageURL = page.Resolve(img.AttrOr("src", ""))
	for _, u := range page.SrcsetURLs(img.AttrOr("srcset", "")) {
		if u != media.PrimaryImageURL {
			media.AdditionalImages = append(media.AdditionalImages, u)
		}
	}

	page.Doc().Find(`video source[src], a[data-testid="product-video"]`).Each(func(i int, s *goquery.Selection) {
		ref := s.AttrOr("src", s.AttrOr("href", ""))
		if u := page.Resolve(ref); u != "" {
			media.VideoURLs = append(media.VideoURLs, u)
		}
	})

	return media
}

func currency(page *parser.Page) string {
	if c := strings.ToUpper(page.Attr("content", `meta[itemprop="priceCurrency"]`)); len(c) == 3 {
		return c
	}
	if c, ok := currencyByRegion[page.Region()]; ok {
		return c
	}
	return "GBP"
}
