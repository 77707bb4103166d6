package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	partNumber  = regexp.MustCompile(`^[A-Za-z0-9\-_.]+$`)
	srcsetEntry = regexp.MustCompile(`^\s*(\S+)`)
)

// Page is a parsed vendor document with its location, used to resolve
// relative links.
type Page struct {
	doc  *goquery.Document
	base *url.URL
}

func NewPage(body []byte, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	return &Page{doc: doc, base: base}, nil
}

func (p *Page) Doc() *goquery.Document {
	return p.doc
}

func (p *Page) URL() *url.URL {
	return p.base
}

// Region is the first label of the page host after any "www.", which on
// regional storefronts is the country code ("de" for de.mouser.com).
func (p *Page) Region() string {
	host := strings.TrimPrefix(strings.ToLower(p.base.Hostname()), "www.")
	region, _, _ := strings.Cut(host, ".")
	return region
}

// Text returns the cleaned text of the first selector that yields any.
func (p *Page) Text(selectors ...string) string {
	for _, sel := range selectors {
		if text := CleanText(p.doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// Attr returns the first non-empty attribute value across selectors.
func (p *Page) Attr(attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := p.doc.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Find returns the first selector match, or an empty selection.
func (p *Page) Find(selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if s := p.doc.Find(sel); s.Length() > 0 {
			return s.First()
		}
	}
	return p.doc.Selection.Slice(0, 0)
}

// Texts returns the cleaned, non-empty texts of every match of selector.
func (p *Page) Texts(selector string) []string {
	var out []string
	p.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		if text := CleanText(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// Resolve turns a reference found on the page into an absolute URL.
func (p *Page) Resolve(ref string) string {
	ref = NormalizeURL(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return p.base.ResolveReference(u).String()
}

// SrcsetURLs resolves every candidate URL of an img srcset attribute.
func (p *Page) SrcsetURLs(srcset string) []string {
	var out []string
	for _, part := range strings.Split(srcset, ",") {
		m := srcsetEntry.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		if u := p.Resolve(m[1]); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// SpecTable reads two-column key/value rows from a table or definition list.
func SpecTable(sel *goquery.Selection) map[string]string {
	specs := make(map[string]string)

	sel.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		key := strings.TrimSuffix(CleanText(cells.Eq(0).Text()), ":")
		value := CleanText(cells.Eq(1).Text())
		if key != "" && value != "" {
			specs[key] = value
		}
	})

	sel.Find("dt").Each(func(i int, dt *goquery.Selection) {
		key := strings.TrimSuffix(CleanText(dt.Text()), ":")
		value := CleanText(dt.NextFiltered("dd").Text())
		if key != "" && value != "" {
			specs[key] = value
		}
	})

	return specs
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// NormalizeURL trims the reference and gives protocol-relative URLs an https scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}

// ValidPartNumber reports whether s looks like a catalog part number.
func ValidPartNumber(s string) bool {
	return len(s) >= 3 && partNumber.MatchString(s)
}
