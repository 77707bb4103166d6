// Package mouser scrapes product detail pages from Mouser Electronics.
package mouser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vendor-scraper/internal/cookies"
	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/parser"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/shopspring/decimal"
)

const (
	Key     = "mouser"
	Name    = "Mouser Electronics"
	BaseURL = "https://au.mouser.com"
	Version = "1.0"
)

var Domains = []string{
	"mouser.com",
	"au.mouser.com",
	"uk.mouser.com",
	"de.mouser.com",
	"fr.mouser.com",
}

// Mouser serves a bot wall to default client headers, so requests look like
// a desktop Firefox navigation.
var headers = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:141.0) Gecko/20100101 Firefox/141.0",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "cross-site",
	"Pragma":                    "no-cache",
	"Cache-Control":             "no-cache",
}

// CookieTarget is where session cookies for the bot wall are collected.
var CookieTarget = cookies.Target{
	Vendor:    Key,
	HomeURL:   BaseURL,
	SampleURL: BaseURL + "/ProductDetail/Amphenol-RF/242125-10",
}

var currencyByRegion = map[string]string{
	"au": "AUD",
	"uk": "GBP",
	"de": "EUR",
	"fr": "EUR",
}

var (
	leadWeeks   = regexp.MustCompile(`(?i)(\d+)\s*weeks?`)
	leadDays    = regexp.MustCompile(`(?i)(\d+)\s*days?`)
	discontinue = regexp.MustCompile(`(?i)obsolete|discontinued|end of life`)
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

// Parser extracts products from Mouser product detail pages.
type Parser struct{}

func (Parser) Parse(doc *fetch.Document, pageURL string) (models.Product, error) {
	base := pageURL
	if doc.URL != "" {
		base = doc.URL
	}
	page, err := parser.NewPage(doc.Body, base)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to read mouser page: %w", err)
	}

	partNumber := page.Text("span#spnMouserPartNumFormattedForProdInfo")
	if partNumber == "" {
		return models.Product{}, scraper.MissingField("vendor_part_number")
	}

	title := page.Text("h1.panel-title", "span#spnDescription", "span.bc-no-link")
	if title == "" {
		return models.Product{}, scraper.MissingField("title")
	}

	pricing, err := parsePricing(page)
	if err != nil {
		return models.Product{}, err
	}

	breadcrumbs := page.Texts("ol.breadcrumb li a")
	specs := models.Specifications{
		Manufacturer:           page.Text("a#lnkManufacturerName", `a[itemprop="url"]`),
		ManufacturerPartNumber: page.Text("span#spnManufacturerPartNumber"),
		Description:            page.Text("span#spnDescription"),
		TechnicalSpecs:         specTable(page.Find("table.specs-table")),
		DatasheetURL:           page.Resolve(page.Attr("href", `a[id^="pdp-datasheet"]`)),
	}
	if len(breadcrumbs) > 1 {
		specs.Category = breadcrumbs[1]
	}
	for key := range specs.TechnicalSpecs {
		if strings.EqualFold(key, "RoHS") {
			specs.Certifications = append(specs.Certifications, "RoHS")
		}
	}

	extra := map[string]string{}
	if len(breadcrumbs) > 2 {
		extra["subcategory"] = breadcrumbs[2]
	}

	var media models.Media
	media.PrimaryImageURL = page.Resolve(page.Attr("src", "img#defaultImg"))
	page.Doc().Find("div.thumbnail-carousel img").Each(func(i int, s *goquery.Selection) {
		if src := page.Resolve(s.AttrOr("src", "")); src != "" && src != media.PrimaryImageURL {
			media.AdditionalImages = append(media.AdditionalImages, src)
		}
	})

	return models.NewProduct(models.Product{
		VendorName:       Name,
		VendorPartNumber: partNumber,
		SourceURL:        pageURL,
		Title:            title,
		Specifications:   specs,
		Pricing:          pricing,
		Availability:     parseAvailability(page),
		Media:            media,
		VendorExtra:      extra,
		ScraperVersion:   Version,
	})
}

// specTable reads the attribute table; header rows are skipped and the
// first two cells of every other row are name and value.
func specTable(table *goquery.Selection) map[string]string {
	specs := make(map[string]string)
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		key := strings.TrimSuffix(parser.CleanText(cells.Eq(0).Text()), ":")
		value := parser.CleanText(cells.Eq(1).Text())
		if key != "" && value != "" {
			specs[key] = value
		}
	})
	return specs
}

func parsePricing(page *parser.Page) (models.Pricing, error) {
	pricing := models.Pricing{Currency: currency(page)}
	sep := parser.SeparatorForRegion(page.Region())

	var parseErr error
	page.Doc().Find("div.pdp-product-availability-pricing table tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if row.Find("th").Length() != 1 {
			return true
		}
		qty, err := parser.ParseQuantity(row.Find("th").Text())
		if err != nil {
			// reel and cut-tape sub-headings carry no quantity
			return true
		}

		raw := parser.CleanText(row.Find("td").First().Text())
		if raw == "" || strings.Contains(strings.ToLower(raw), "quote") {
			return true
		}
		price, err := parser.ParsePriceIn(raw, sep)
		if err != nil {
			parseErr = scraper.MalformedField("pricing.quantity_breaks", raw, err)
			return false
		}

		pricing.QuantityBreaks = append(pricing.QuantityBreaks, models.PriceBreak{Quantity: qty, Price: price})
		return true
	})
	if parseErr != nil {
		return models.Pricing{}, parseErr
	}

	if len(pricing.QuantityBreaks) > 0 {
		first := pricing.QuantityBreaks[0]
		pricing.UnitPrice = decimal.NewNullDecimal(first.Price)
		pricing.MinimumOrderQuantity = models.Int(first.Quantity)
	}
	return pricing, nil
}

func parseAvailability(page *parser.Page) models.Availability {
	var avail models.Availability

	status := page.Text("div.pdp-product-availability dd div")
	lower := strings.ToLower(status)
	switch {
	case strings.Contains(lower, "in stock"), strings.Contains(lower, "can dispatch immediately"):
		avail.InStock = models.Bool(true)
		avail.LeadTimeDays = models.Int(0)
		if qty, err := parser.ParseQuantity(status); err == nil {
			avail.StockQuantity = models.Int(qty)
		}
	case strings.Contains(lower, "on order"), strings.Contains(lower, "backorder"):
		avail.InStock = models.Bool(false)
		avail.StockQuantity = models.Int(0)
	}

	lead := page.Text("span#factoryLeadTime", "div.pdp-product-availability dd.lead-time")
	if lead != "" {
		avail.LeadTimeDescription = lead
		if avail.LeadTimeDays == nil {
			if m := leadWeeks.FindStringSubmatch(lead); m != nil {
				if n, err := parser.ParseQuantity(m[1]); err == nil {
					avail.LeadTimeDays = models.Int(n * 7)
				}
			} else if m := leadDays.FindStringSubmatch(lead); m != nil {
				if n, err := parser.ParseQuantity(m[1]); err == nil {
					avail.LeadTimeDays = models.Int(n)
				}
			}
		}
	} else if status != "" {
		avail.LeadTimeDescription = status
	}

	avail.LifecycleStatus = page.Text("span#lblLifecycle", "span.lifecycle-status")
	avail.Discontinued = discontinue.MatchString(avail.LifecycleStatus)

	return avail
}

func currency(page *parser.Page) string {
	if c := strings.ToUpper(page.Attr("content", `meta[itemprop="priceCurrency"]`)); len(c) == 3 {
		return c
	}
	if c, ok := currencyByRegion[page.Region()]; ok {
		return c
	}
	return "USD"
}
