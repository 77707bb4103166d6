package mouser

import (
	"errors"
	"testing"

	"github.com/maltedev/vendor-scraper/internal/fetch"
	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/maltedev/vendor-scraper/internal/scraper"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productURL = "https://au.mouser.com/ProductDetail/Texas-Instruments/TPS61023DRLR?qs=abc"

const productPage = `<html><head><title>TPS61023DRLR</title></head><body>
<ol class="breadcrumb">
  <li><a href="/">All Products</a></li>
  <li><a href="/c/semiconductors/">Semiconductors</a></li>
  <li><a href="/c/power-management/">Power Management ICs</a></li>
  <li><span class="bc-no-link">TPS61023DRLR</span></li>
</ol>
<h1 class="panel-title">TPS61023DRLR</h1>
<span id="spnMouserPartNumFormattedForProdInfo">595-TPS61023DRLR</span>
<a id="lnkManufacturerName" href="/manufacturer/ti/">Texas Instruments</a>
<span id="spnManufacturerPartNumber">TPS61023DRLR</span>
<span id="spnDescription">Switching Voltage Regulators  3.7-A boost converter</span>
<a id="pdp-datasheet_0" href="/datasheet/2/405/tps61023.pdf">Datasheet</a>
<img id="defaultImg" src="//www.mouser.com/images/ti/lrg/SOT-563_DRL_6.jpg">
<div class="thumbnail-carousel">
  <img src="//www.mouser.com/images/ti/lrg/SOT-563_DRL_6.jpg">
  <img src="/images/ti/lrg/SOT-563_DRL_6_back.jpg">
</div>
<table class="specs-table">
  <tr><th>Product Attribute</th><th>Attribute Value</th></tr>
  <tr><td>Manufacturer:</td><td>Texas Instruments</td></tr>
  <tr><td>RoHS:</td><td>Details</td></tr>
  <tr><td>Output Current:</td><td> 3.7 A </td></tr>
</table>
<div class="pdp-product-availability">
  <dl><dt>Availability</dt><dd><div>12,345 In Stock</div></dd>
  <dt>Factory Lead-Time</dt><dd class="lead-time"><span id="factoryLeadTime">12 Weeks</span></dd></dl>
  <span id="lblLifecycle">New Product</span>
</div>
<div class="pdp-product-availability-pricing">
  <table>
    <tr><th>Qty.</th><th>Unit Price</th><th>Ext. Price</th></tr>
    <tr><th><a>1</a></th><td>A$1.04</td><td>A$1.04</td></tr>
    <tr><th><a>10</a></th><td>A$0.767</td><td>A$7.67</td></tr>
    <tr><th><a>1,000</a></th><td>A$0.429</td><td>A$429.00</td></tr>
    <tr><th>Full Reel (Order in multiples of 3000)</th><td></td></tr>
    <tr><th><a>3,000</a></th><td>A$0.381</td><td>A$1,143.00</td></tr>
    <tr><th><a>6,000</a></th><td>Quote</td><td></td></tr>
  </table>
</div>
</body></html>`

func parse(t *testing.T, body, pageURL string) (models.Product, error) {
	t.Helper()
	return Parser{}.Parse(&fetch.Document{URL: pageURL, StatusCode: 200, Body: []byte(body)}, pageURL)
}

func TestParseProductPage(t *testing.T) {
	product, err := parse(t, productPage, productURL)
	require.NoError(t, err)

	assert.Equal(t, Name, product.VendorName)
	assert.Equal(t, "595-TPS61023DRLR", product.VendorPartNumber)
	assert.Equal(t, productURL, product.SourceURL)
	assert.Equal(t, "TPS61023DRLR", product.Title)
	assert.Equal(t, Version, product.ScraperVersion)
	assert.False(t, product.ScrapedAt.IsZero())

	specs := product.Specifications
	assert.Equal(t, "Texas Instruments", specs.Manufacturer)
	assert.Equal(t, "TPS61023DRLR", specs.ManufacturerPartNumber)
	assert.Equal(t, "Switching Voltage Regulators 3.7-A boost converter", specs.Description)
	assert.Equal(t, "Semiconductors", specs.Category)
	assert.Equal(t, "https://au.mouser.com/datasheet/2/405/tps61023.pdf", specs.DatasheetURL)
	assert.Equal(t, map[string]string{
		"Manufacturer":   "Texas Instruments",
		"RoHS":           "Details",
		"Output Current": "3.7 A",
	}, specs.TechnicalSpecs)
	assert.Equal(t, []string{"RoHS"}, specs.Certifications)
	assert.Equal(t, map[string]string{"subcategory": "Power Management ICs"}, product.VendorExtra)

	pricing := product.Pricing
	assert.Equal(t, "AUD", pricing.Currency)
	require.True(t, pricing.UnitPrice.Valid)
	assert.True(t, decimal.RequireFromString("1.04").Equal(pricing.UnitPrice.Decimal))
	require.NotNil(t, pricing.MinimumOrderQuantity)
	assert.Equal(t, 1, *pricing.MinimumOrderQuantity)

	require.Len(t, pricing.QuantityBreaks, 4)
	expected := []struct {
		qty   int
		price string
	}{{1, "1.04"}, {10, "0.767"}, {1000, "0.429"}, {3000, "0.381"}}
	for i, e := range expected {
		assert.Equal(t, e.qty, pricing.QuantityBreaks[i].Quantity)
		assert.True(t, decimal.RequireFromString(e.price).Equal(pricing.QuantityBreaks[i].Price), "break %d", i)
	}

	avail := product.Availability
	require.NotNil(t, avail.InStock)
	assert.True(t, *avail.InStock)
	require.NotNil(t, avail.StockQuantity)
	assert.Equal(t, 12345, *avail.StockQuantity)
	require.NotNil(t, avail.LeadTimeDays)
	assert.Equal(t, 0, *avail.LeadTimeDays)
	assert.Equal(t, "12 Weeks", avail.LeadTimeDescription)
	assert.Equal(t, "New Product", avail.LifecycleStatus)
	assert.False(t, avail.Discontinued)

	assert.Equal(t, "https://www.mouser.com/images/ti/lrg/SOT-563_DRL_6.jpg", product.Media.PrimaryImageURL)
	assert.Equal(t, []string{"https://au.mouser.com/images/ti/lrg/SOT-563_DRL_6_back.jpg"}, product.Media.AdditionalImages)
}

func TestParseAvailability(t *testing.T) {
	tests := []struct {
		name      string
		block     string
		inStock   *bool
		stock     *int
		leadDays  *int
		lifecycle string
		obsolete  bool
	}{
		{
			name:    "On order with factory lead time",
			block:   `<dl><dd><div>On Order</div></dd><dd><span id="factoryLeadTime">8 Weeks</span></dd></dl>`,
			inStock: models.Bool(false), stock: models.Int(0), leadDays: models.Int(56),
		},
		{
			name:    "Backorder with lead time in days",
			block:   `<dl><dd><div>Backorder</div></dd><dd><span id="factoryLeadTime">10 Days</span></dd></dl>`,
			inStock: models.Bool(false), stock: models.Int(0), leadDays: models.Int(10),
		},
		{
			name:    "Dispatch immediately without a count",
			block:   `<dl><dd><div>Can Dispatch Immediately</div></dd></dl>`,
			inStock: models.Bool(true), leadDays: models.Int(0),
		},
		{
			name:  "Unknown status",
			block: `<dl><dd><div>Contact Mouser</div></dd></dl>`,
		},
		{
			name:      "Obsolete part",
			block:     `<dl><dd><div>Non-Stocked</div></dd></dl><span id="lblLifecycle">Obsolete</span>`,
			lifecycle: "Obsolete", obsolete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `<span id="spnMouserPartNumFormattedForProdInfo">595-X</span><h1 class="panel-title">X</h1>` +
				`<div class="pdp-product-availability">` + tt.block + `</div>`

			product, err := parse(t, body, productURL)
			require.NoError(t, err)

			avail := product.Availability
			assert.Equal(t, tt.inStock, avail.InStock)
			assert.Equal(t, tt.stock, avail.StockQuantity)
			assert.Equal(t, tt.leadDays, avail.LeadTimeDays)
			assert.Equal(t, tt.lifecycle, avail.LifecycleStatus)
			assert.Equal(t, tt.obsolete, avail.Discontinued)
		})
	}
}

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		meta     string
		expected string
	}{
		{"Australian store", "https://au.mouser.com/ProductDetail/x", "", "AUD"},
		{"UK store", "https://www.uk.mouser.com/ProductDetail/x", "", "GBP"},
		{"German store", "https://de.mouser.com/ProductDetail/x", "", "EUR"},
		{"Global store", "https://www.mouser.com/ProductDetail/x", "", "USD"},
		{"Meta tag wins", "https://au.mouser.com/ProductDetail/x", `<meta itemprop="priceCurrency" content="nzd">`, "NZD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.meta + `<span id="spnMouserPartNumFormattedForProdInfo">595-X</span><h1 class="panel-title">X</h1>`
			product, err := parse(t, body, tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, product.Pricing.Currency)
		})
	}
}

func TestParseRegionalPriceFormat(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		prices   [2]string
		expected [2]string
	}{
		{"German store decimal comma", "https://de.mouser.com/ProductDetail/x", [2]string{"1,500 €", "0,123 €"}, [2]string{"1.5", "0.123"}},
		{"French store grouped thousands", "https://fr.mouser.com/ProductDetail/x", [2]string{"1.234,50 €", "987,654 €"}, [2]string{"1234.5", "987.654"}},
		{"UK store decimal point", "https://uk.mouser.com/ProductDetail/x", [2]string{"£1,500.00", "£0.123"}, [2]string{"1500", "0.123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `<span id="spnMouserPartNumFormattedForProdInfo">595-X</span><h1 class="panel-title">X</h1>
				<div class="pdp-product-availability-pricing"><table>
					<tr><th>1</th><td>` + tt.prices[0] + `</td></tr>
					<tr><th>10</th><td>` + tt.prices[1] + `</td></tr>
				</table></div>`

			product, err := parse(t, body, tt.url)
			require.NoError(t, err)
			require.Len(t, product.Pricing.QuantityBreaks, 2)
			assert.Equal(t, tt.expected[0], product.Pricing.QuantityBreaks[0].Price.String())
			assert.Equal(t, tt.expected[1], product.Pricing.QuantityBreaks[1].Price.String())
		})
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		field   string
		missing bool
	}{
		{
			name:    "Missing part number",
			body:    `<h1 class="panel-title">X</h1>`,
			field:   "vendor_part_number",
			missing: true,
		},
		{
			name:    "Missing title",
			body:    `<span id="spnMouserPartNumFormattedForProdInfo">595-X</span>`,
			field:   "title",
			missing: true,
		},
		{
			name: "Malformed price",
			body: `<span id="spnMouserPartNumFormattedForProdInfo">595-X</span><h1 class="panel-title">X</h1>
				<div class="pdp-product-availability-pricing"><table><tr><th>1</th><td>N/A</td></tr></table></div>`,
			field: "pricing.quantity_breaks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.body, productURL)

			var parseErr *scraper.ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
			assert.Equal(t, tt.field, parseErr.Field)
			assert.Equal(t, tt.missing, parseErr.Missing)
			assert.Equal(t, scraper.CodeParseFailed, scraper.ErrorCode(err))
		})
	}
}

func TestParseRisingBreaksFailValidation(t *testing.T) {
	body := `<span id="spnMouserPartNumFormattedForProdInfo">595-X</span><h1 class="panel-title">X</h1>
		<div class="pdp-product-availability-pricing"><table>
			<tr><th>1</th><td>$1.00</td></tr>
			<tr><th>10</th><td>$1.50</td></tr>
		</table></div>`

	_, err := parse(t, body, productURL)

	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "pricing.quantity_breaks", validation.Field())
	assert.Equal(t, scraper.CodeValidationFailed, scraper.ErrorCode(err))
}

func TestNewScraper(t *testing.T) {
	s := New(scraper.Config{})

	v := s.Vendor()
	assert.Equal(t, Key, v.Key)
	assert.Equal(t, Name, v.Name)
	assert.Contains(t, v.Headers["User-Agent"], "Firefox")
	assert.NotContains(t, v.Headers, "Accept-Encoding")
}
