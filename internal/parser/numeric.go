package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformedNumber = errors.New("malformed number")

var (
	// digits with optional thousands/decimal separators, including
	// non-breaking spaces used by some locales
	numberToken   = regexp.MustCompile(`\d[\d.,\x{00a0}\x{202f}]*`)
	quantityToken = regexp.MustCompile(`\d{1,3}(?:[,\x{00a0}\x{202f}]\d{3})+|\d+`)
)

// Separator is the mark a storefront uses between whole and fractional
// currency units.
type Separator int

const (
	// SeparatorAuto guesses from the text itself.
	SeparatorAuto Separator = iota
	SeparatorDot
	SeparatorComma
)

// SeparatorForRegion returns the decimal mark of a regional storefront
// subdomain ("de", "fr", ...). Unknown regions use SeparatorAuto.
func SeparatorForRegion(region string) Separator {
	switch strings.ToLower(region) {
	case "de", "fr", "it", "es", "nl", "at", "be":
		return SeparatorComma
	case "", "www", "uk", "au", "sg", "ie", "export", "us":
		return SeparatorDot
	}
	return SeparatorAuto
}

// ParsePrice extracts the first monetary amount in text as an exact decimal,
// guessing the decimal mark. Prefer ParsePriceIn when the storefront locale
// is known: "1,500 €" is ambiguous without it.
func ParsePrice(text string) (decimal.Decimal, error) {
	return ParsePriceIn(text, SeparatorAuto)
}

// ParsePriceIn extracts the first monetary amount in text, reading sep as
// the decimal mark. Currency symbols and codes are ignored.
func ParsePriceIn(text string, sep Separator) (decimal.Decimal, error) {
	tok := numberToken.FindString(text)
	if tok == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrMalformedNumber, text)
	}

	normalized, ok := normalizeDecimal(tok, sep)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrMalformedNumber, text)
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrMalformedNumber, text)
	}
	return d, nil
}

func normalizeDecimal(tok string, sep Separator) (string, bool) {
	tok = strings.TrimRight(tok, ".,")
	tok = strings.NewReplacer("\u00a0", "", "\u202f", "").Replace(tok)

	switch sep {
	case SeparatorDot:
		return withDecimalMark(tok, ".", ",")
	case SeparatorComma:
		return withDecimalMark(tok, ",", ".")
	}

	lastDot := strings.LastIndex(tok, ".")
	lastComma := strings.LastIndex(tok, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			return withDecimalMark(tok, ",", ".")
		}
		return withDecimalMark(tok, ".", ",")
	case lastComma >= 0:
		// a lone comma is a decimal mark unless it groups exactly three
		// digits after a non-zero integer part
		if strings.Count(tok, ",") == 1 && (len(tok)-lastComma-1 != 3 || strings.TrimLeft(tok[:lastComma], "0") == "") {
			return withDecimalMark(tok, ",", ".")
		}
		return withDecimalMark(tok, ".", ",")
	case strings.Count(tok, ".") > 1:
		return withDecimalMark(tok, ",", ".")
	}
	return tok, true
}

// withDecimalMark drops every grouping mark and rewrites mark as ".". More
// than one decimal mark is malformed.
func withDecimalMark(tok, mark, grouping string) (string, bool) {
	tok = strings.ReplaceAll(tok, grouping, "")
	if strings.Count(tok, mark) > 1 {
		return "", false
	}
	return strings.Replace(tok, mark, ".", 1), true
}

// ParseQuantity extracts the first whole number in text, so "1 - 9" is 1,
// "100+" is 100 and "1,250 In Stock" is 1250.
func ParseQuantity(text string) (int, error) {
	tok := quantityToken.FindString(text)
	if tok == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, text)
	}

	tok = strings.NewReplacer(",", "", "\u00a0", "", "\u202f", "").Replace(tok)
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, text)
	}
	return n, nil
}
