package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultUnits = "each"

// InventoryRecord is the flat part definition accepted by the inventory
// system's import. The JSON field names are fixed by that import format.
type InventoryRecord struct {
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	IPN             string              `json:"IPN"`
	Category        string              `json:"category"`
	Link            string              `json:"link"`
	Notes           string              `json:"notes"`
	DefaultSupplier string              `json:"default_supplier"`
	BaseCost        decimal.NullDecimal `json:"base_cost"`
	Units           string              `json:"units"`
	MinimumStock    int                 `json:"minimum_stock"`
	Purchaseable    bool                `json:"purchaseable"`
	Active          bool                `json:"active"`
	Component       bool                `json:"component"`
	Trackable       bool                `json:"trackable"`
	Keywords        string              `json:"keywords"`
}

func (p Product) ToInventoryRecord() InventoryRecord {
	description := p.Specifications.Description
	if description == "" {
		description = p.Title
	}

	ipn := p.Specifications.ManufacturerPartNumber
	if ipn == "" {
		ipn = p.VendorPartNumber
	}

	units := p.Pricing.PricingUnit
	if units == "" {
		units = defaultUnits
	}

	minStock := 1
	if p.Pricing.MinimumOrderQuantity != nil {
		minStock = *p.Pricing.MinimumOrderQuantity
	}

	return InventoryRecord{
		Name:            p.Title,
		Description:     description,
		IPN:             ipn,
		Category:        p.Specifications.Category,
		Link:            p.SourceURL,
		Notes:           fmt.Sprintf("Scraped from %s on %s", p.VendorName, p.ScrapedAt.Format(time.RFC3339)),
		DefaultSupplier: p.VendorName,
		BaseCost:        p.Pricing.EffectiveUnitPrice(),
		Units:           units,
		MinimumStock:    minStock,
		Purchaseable:    true,
		Active:          true,
		Component:       true,
		Trackable:       true,
		Keywords:        joinNonEmpty(",", p.Specifications.Manufacturer, p.VendorPartNumber),
	}
}

// TabularColumns is the column order of a spreadsheet row.
var TabularColumns = []string{
	"Vendor",
	"Vendor Part Number",
	"Product Title",
	"Manufacturer",
	"Manufacturer Part Number",
	"Category",
	"Description",
	"Unit Price",
	"Currency",
	"MOQ",
	"In Stock",
	"Stock Quantity",
	"Lead Time (Days)",
	"Product URL",
	"Image URL",
	"Scraped At",
}

// TabularRow maps a column of TabularColumns to its cell value. Absent
// optional values are nil; prices are decimal.Decimal.
type TabularRow map[string]any

// Values returns the cells in column order.
func (r TabularRow) Values() []any {
	out := make([]any, len(TabularColumns))
	for i, col := range TabularColumns {
		out[i] = r[col]
	}
	return out
}

func (p Product) ToTabularRow() TabularRow {
	row := TabularRow{
		"Vendor":                   p.VendorName,
		"Vendor Part Number":       p.VendorPartNumber,
		"Product Title":            p.Title,
		"Manufacturer":             p.Specifications.Manufacturer,
		"Manufacturer Part Number": p.Specifications.ManufacturerPartNumber,
		"Category":                 p.Specifications.Category,
		"Description":              p.Specifications.Description,
		"Unit Price":               nil,
		"Currency":                 p.Pricing.Currency,
		"MOQ":                      intValue(p.Pricing.MinimumOrderQuantity),
		"In Stock":                 nil,
		"Stock Quantity":           intValue(p.Availability.StockQuantity),
		"Lead Time (Days)":         intValue(p.Availability.LeadTimeDays),
		"Product URL":              p.SourceURL,
		"Image URL":                p.Media.PrimaryImageURL,
		"Scraped At":               p.ScrapedAt.Format(time.RFC3339),
	}
	if p.Pricing.UnitPrice.Valid {
		row["Unit Price"] = p.Pricing.UnitPrice.Decimal
	}
	if p.Availability.InStock != nil {
		row["In Stock"] = *p.Availability.InStock
	}
	return row
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
