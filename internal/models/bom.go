package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

const unknownProduct = "Unknown Product"

// BOMColumns is the column order of a bill-of-materials row, matching the
// part import template of the inventory system.
var BOMColumns = []string{
	"IPN",
	"Name",
	"Description",
	"Category",
	"Supplier Name",
	"SKU",
	"MPN",
	"Manufacturer",
	"Link",
	"Note",
	"Image",
	"Units",
	"Price",
	"In Stock",
	"Lead Time",
	"Stock Quantity",
}

// keywordSpecs are the technical spec keys copied into the keywords.
var keywordSpecs = []string{"type", "series", "material", "colour", "color"}

// BOMRow maps a column of BOMColumns to its cell value.
type BOMRow map[string]any

// Values returns the cells in column order.
func (r BOMRow) Values() []any {
	out := make([]any, len(BOMColumns))
	for i, col := range BOMColumns {
		out[i] = r[col]
	}
	return out
}

func (p Product) ToBOMRow() BOMRow {
	name := p.BOMName()
	description := p.Specifications.Description
	if description == "" {
		description = p.Title
	}
	keywords := p.BOMKeywords()
	category, _, _ := strings.Cut(keywords, ",")

	units := 1
	if p.Pricing.MinimumOrderQuantity != nil {
		units = *p.Pricing.MinimumOrderQuantity
	}

	return BOMRow{
		"IPN":            name,
		"Name":           description,
		"Description":    description,
		"Category":       strings.TrimSpace(category),
		"Supplier Name":  p.VendorName,
		"SKU":            p.VendorPartNumber,
		"MPN":            name,
		"Manufacturer":   p.Specifications.Manufacturer,
		"Link":           p.SourceURL,
		"Note":           p.BOMParameters(),
		"Image":          p.Media.PrimaryImageURL,
		"Units":          units,
		"Price":          p.priceLabel(),
		"In Stock":       p.Availability.InStock != nil && *p.Availability.InStock,
		"Lead Time":      p.LeadTime(),
		"Stock Quantity": intValue(p.Availability.StockQuantity),
	}
}

// BOMName is the manufacturer part number, or the first four words of the
// title when there is none.
func (p Product) BOMName() string {
	if mpn := p.Specifications.ManufacturerPartNumber; mpn != "" {
		return mpn
	}
	words := strings.Fields(p.Title)
	if len(words) == 0 {
		return unknownProduct
	}
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

// BOMKeywords joins the category, the manufacturer and the descriptive
// technical specs ("Series: X") with ", ". Specs are in key order.
func (p Product) BOMKeywords() string {
	keywords := []string{p.Specifications.Category, p.Specifications.Manufacturer}

	specs := p.Specifications.TechnicalSpecs
	for _, k := range slices.Sorted(maps.Keys(specs)) {
		if slices.Contains(keywordSpecs, strings.ToLower(k)) {
			keywords = append(keywords, fmt.Sprintf("%s: %s", k, specs[k]))
		}
	}
	return joinNonEmpty(", ", keywords...)
}

// LeadTime prefers the vendor's wording over the day count.
func (p Product) LeadTime() string {
	if d := p.Availability.LeadTimeDescription; d != "" {
		return d
	}
	if d := p.Availability.LeadTimeDays; d != nil && *d > 0 {
		return fmt.Sprintf("%d days", *d)
	}
	return ""
}

// BOMParameters is an indented JSON object of the identifying, technical,
// pricing and stock details, used as the part note.
func (p Product) BOMParameters() string {
	params := make(map[string]any, len(p.Specifications.TechnicalSpecs)+7)
	setString := func(k, v string) {
		if v != "" {
			params[k] = v
		}
	}

	setString("Brand", p.Specifications.Manufacturer)
	setString("Manufacturer Part Number", p.Specifications.ManufacturerPartNumber)
	setString("Category", p.Specifications.Category)
	for k, v := range p.Specifications.TechnicalSpecs {
		params[k] = v
	}
	setString("Unit Price", p.priceLabel())
	if moq := p.Pricing.MinimumOrderQuantity; moq != nil {
		params["Minimum Order Quantity"] = *moq
	}
	if q := p.Availability.StockQuantity; q != nil && *q > 0 {
		params["Stock Quantity"] = *q
	}
	setString("Lead Time", p.Availability.LeadTimeDescription)

	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (p Product) priceLabel() string {
	price := p.Pricing.EffectiveUnitPrice()
	if !price.Valid {
		return ""
	}
	return p.Pricing.Currency + " " + price.Decimal.String()
}
