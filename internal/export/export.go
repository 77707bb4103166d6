// Package export turns canonical products into output payloads and saves
// them to a sink.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/maltedev/vendor-scraper/internal/models"
)

var ErrUnknownFormat = errors.New("unknown export format")

type Format string

const (
	FormatXLSX      Format = "xlsx"
	FormatCSV       Format = "csv"
	FormatInventory Format = "inventory"
	FormatJSON      Format = "json"
	FormatBOM       Format = "bom"
)

var Formats = []Format{FormatXLSX, FormatCSV, FormatInventory, FormatJSON, FormatBOM}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension is the file extension written for the format, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatInventory, FormatJSON:
		return "json"
	case FormatBOM:
		return "xlsx"
	default:
		return string(f)
	}
}

// Payload is an encoded-on-demand export of zero or more products.
type Payload interface {
	Format() Format
	Len() int
	Encode(w io.Writer) error
}

// Exporter projects products into a payload. Product order is preserved and
// duplicates are kept.
type Exporter interface {
	Format() Format
	ExportSingle(p models.Product) Payload
	ExportMultiple(products []models.Product) Payload
}

func NewExporter(f Format) (Exporter, error) {
	switch f {
	case FormatXLSX, FormatCSV:
		return tabularExporter{format: f}, nil
	case FormatInventory:
		return inventoryExporter{}, nil
	case FormatJSON:
		return jsonExporter{}, nil
	case FormatBOM:
		return bomExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Bytes encodes payload into memory.
func Bytes(payload Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := payload.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type tabularExporter struct {
	format Format
}

func (e tabularExporter) Format() Format { return e.format }

func (e tabularExporter) ExportSingle(p models.Product) Payload {
	return e.ExportMultiple([]models.Product{p})
}

func (e tabularExporter) ExportMultiple(products []models.Product) Payload {
	sheet := &Sheet{
		Rows:    make([]models.TabularRow, len(products)),
		Summary: Summarize(products),
	}
	for i, p := range products {
		sheet.Rows[i] = p.ToTabularRow()
	}
	if e.format == FormatCSV {
		return &CSVPayload{Sheet: sheet}
	}
	return &XLSXPayload{Sheet: sheet}
}

type inventoryExporter struct{}

func (inventoryExporter) Format() Format { return FormatInventory }

func (e inventoryExporter) ExportSingle(p models.Product) Payload {
	return e.ExportMultiple([]models.Product{p})
}

func (inventoryExporter) ExportMultiple(products []models.Product) Payload {
	records := make([]models.InventoryRecord, len(products))
	for i, p := range products {
		records[i] = p.ToInventoryRecord()
	}
	return &InventoryPayload{Records: records}
}

// InventoryPayload is a JSON array of inventory import records.
type InventoryPayload struct {
	Records []models.InventoryRecord
}

func (p *InventoryPayload) Format() Format { return FormatInventory }
func (p *InventoryPayload) Len() int       { return len(p.Records) }

func (p *InventoryPayload) Encode(w io.Writer) error {
	return encodeJSON(w, p.Records)
}

type bomExporter struct{}

func (bomExporter) Format() Format { return FormatBOM }

func (e bomExporter) ExportSingle(p models.Product) Payload {
	return e.ExportMultiple([]models.Product{p})
}

func (bomExporter) ExportMultiple(products []models.Product) Payload {
	rows := make([]models.BOMRow, len(products))
	for i, p := range products {
		rows[i] = p.ToBOMRow()
	}
	return &BOMPayload{Rows: rows}
}

type jsonExporter struct{}

func (jsonExporter) Format() Format { return FormatJSON }

func (e jsonExporter) ExportSingle(p models.Product) Payload {
	return e.ExportMultiple([]models.Product{p})
}

func (jsonExporter) ExportMultiple(products []models.Product) Payload {
	out := make([]models.Product, len(products))
	copy(out, products)
	return &ProductsPayload{Products: out}
}

// ProductsPayload is a JSON array of canonical products.
type ProductsPayload struct {
	Products []models.Product
}

func (p *ProductsPayload) Format() Format { return FormatJSON }
func (p *ProductsPayload) Len() int       { return len(p.Products) }

func (p *ProductsPayload) Encode(w io.Writer) error {
	return encodeJSON(w, p.Products)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
