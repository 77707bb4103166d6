package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/maltedev/vendor-scraper/internal/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	productsSheet = "Products"
	summarySheet  = "Summary"
	bomSheet      = "BOM"
)

// Sheet is the tabular projection of a product list.
type Sheet struct {
	Rows    []models.TabularRow
	Summary Summary
}

// Summary aggregates a product list for the spreadsheet summary sheet.
type Summary struct {
	TotalProducts       int
	UniqueVendors       int
	UniqueManufacturers int
	WithPricing         int
	InStock             int
	MinPrice            decimal.NullDecimal
	MaxPrice            decimal.NullDecimal
	AvgPrice            decimal.NullDecimal
}

func Summarize(products []models.Product) Summary {
	s := Summary{TotalProducts: len(products)}
	vendors := make(map[string]struct{})
	manufacturers := make(map[string]struct{})
	sum := decimal.Zero

	for _, p := range products {
		vendors[p.VendorName] = struct{}{}
		if m := p.Specifications.Manufacturer; m != "" {
			manufacturers[m] = struct{}{}
		}
		if in := p.Availability.InStock; in != nil && *in {
			s.InStock++
		}

		price := p.Pricing.EffectiveUnitPrice()
		if !price.Valid {
			continue
		}
		s.WithPricing++
		sum = sum.Add(price.Decimal)
		if !s.MinPrice.Valid || price.Decimal.LessThan(s.MinPrice.Decimal) {
			s.MinPrice = price
		}
		if !s.MaxPrice.Valid || price.Decimal.GreaterThan(s.MaxPrice.Decimal) {
			s.MaxPrice = price
		}
	}

	s.UniqueVendors = len(vendors)
	s.UniqueManufacturers = len(manufacturers)
	if s.WithPricing > 0 {
		s.AvgPrice = decimal.NewNullDecimal(sum.DivRound(decimal.NewFromInt(int64(s.WithPricing)), 4))
	}
	return s
}

func (s Summary) rows() [][]any {
	price := func(d decimal.NullDecimal) any {
		if !d.Valid {
			return nil
		}
		return d.Decimal.InexactFloat64()
	}
	return [][]any{
		{"Total Products", s.TotalProducts},
		{"Unique Vendors", s.UniqueVendors},
		{"Unique Manufacturers", s.UniqueManufacturers},
		{"Products With Pricing", s.WithPricing},
		{"Products In Stock", s.InStock},
		{"Min Unit Price", price(s.MinPrice)},
		{"Max Unit Price", price(s.MaxPrice)},
		{"Average Unit Price", price(s.AvgPrice)},
	}
}

// XLSXPayload writes a workbook with a Products sheet followed by a Summary
// sheet.
type XLSXPayload struct {
	Sheet *Sheet
}

func (p *XLSXPayload) Format() Format { return FormatXLSX }
func (p *XLSXPayload) Len() int       { return len(p.Sheet.Rows) }

func (p *XLSXPayload) Encode(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", productsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	header := make([]any, len(models.TabularColumns))
	for i, col := range models.TabularColumns {
		header[i] = col
	}
	if err := writeRow(f, productsSheet, 1, header); err != nil {
		return err
	}
	for i, row := range p.Sheet.Rows {
		values := row.Values()
		for j, v := range values {
			if d, ok := v.(decimal.Decimal); ok {
				values[j] = d.InexactFloat64()
			}
		}
		if err := writeRow(f, productsSheet, i+2, values); err != nil {
			return err
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(models.TabularColumns))
	if err != nil {
		return err
	}
	if err := styleHeader(f, productsSheet, lastCol, 20, bold); err != nil {
		return err
	}
	if err := f.SetPanes(productsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("failed to freeze %s header: %w", productsSheet, err)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeRow(f, summarySheet, 1, []any{"Metric", "Value"}); err != nil {
		return err
	}
	for i, row := range p.Sheet.Summary.rows() {
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			return err
		}
	}
	if err := styleHeader(f, summarySheet, "B", 24, bold); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// styleHeader bolds row 1 up to lastCol and widens the columns.
func styleHeader(f *excelize.File, sheet, lastCol string, width float64, style int) error {
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, width); err != nil {
		return fmt.Errorf("failed to size %s columns: %w", sheet, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// BOMPayload writes a single-sheet workbook in the inventory system's
// part import layout.
type BOMPayload struct {
	Rows []models.BOMRow
}

func (p *BOMPayload) Format() Format { return FormatBOM }
func (p *BOMPayload) Len() int       { return len(p.Rows) }

func (p *BOMPayload) Encode(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bomSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	header := make([]any, len(models.BOMColumns))
	for i, col := range models.BOMColumns {
		header[i] = col
	}
	if err := writeRow(f, bomSheet, 1, header); err != nil {
		return err
	}
	for i, row := range p.Rows {
		if err := writeRow(f, bomSheet, i+2, row.Values()); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(models.BOMColumns))
	if err != nil {
		return err
	}
	if err := styleHeader(f, bomSheet, lastCol, 18, bold); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// CSVPayload writes the Products sheet as RFC 4180 CSV with a header row.
type CSVPayload struct {
	Sheet *Sheet
}

func (p *CSVPayload) Format() Format { return FormatCSV }
func (p *CSVPayload) Len() int       { return len(p.Sheet.Rows) }

func (p *CSVPayload) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.TabularColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(models.TabularColumns))
	for _, row := range p.Sheet.Rows {
		for i, v := range row.Values() {
			record[i] = cellString(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func cellString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
