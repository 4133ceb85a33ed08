package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-products/models"
)

// Selector is an XPath expression sent to the extraction API.
type Selector string

const (
	TitleSelector    Selector = "//span[@id='productTitle']"
	BylineSelector   Selector = "//a[@id='bylineInfo']"
	BulletsSelector  Selector = "//div[@id='detailBullets_feature_div']"
	TechSpecSelector Selector = "//table[@id='productDetails_techSpec_section_1']"
)

// Selectors lists every selector requested per product page.
var Selectors = []Selector{
	TitleSelector,
	BylineSelector,
	BulletsSelector,
	TechSpecSelector,
}

// Match is the first element a selector matched on the page.
type Match struct {
	Text       string
	HTML       string
	Attributes map[string]string
	// Err is set when the API reports a failure for this selector only.
	Err string
}

// SelectorResults maps a selector to its match. A missing key means the
// selector found nothing.
type SelectorResults map[Selector]Match

// lookup returns the match for sel unless it is absent or errored.
func (r SelectorResults) lookup(sel Selector) (Match, bool) {
	m, ok := r[sel]
	if !ok || m.Err != "" {
		return Match{}, false
	}
	return m, true
}

// labels searched in the detail blocks, in resolution order.
var labels = []struct {
	field models.FieldName
	label string
}{
	{models.Manufacturer, "Manufacturer"},
	{models.ItemModelNumber, "Item model number"},
}

const (
	bulletsSeparator = ":"
	tableSeparator   = "\t"
)

// Extract derives product fields from the selector results of one page.
// pageURL is used to resolve a relative brand store link.
func Extract(results SelectorResults, pageURL string) models.Fields {
	fields := models.NewFields()

	if m, ok := results.lookup(TitleSelector); ok {
		setField(fields, models.ProductTitle, strings.TrimSpace(m.Text))
	}

	if m, ok := results.lookup(BylineSelector); ok {
		setField(fields, models.BrandStore, strings.TrimSpace(m.Text))
		if href := bylineHref(m); href != "" {
			setField(fields, models.BrandStoreURL, ResolveHref(pageURL, href))
		}
	}

	bullets, hasBullets := results.lookup(BulletsSelector)
	table, hasTable := results.lookup(TechSpecSelector)
	for _, l := range labels {
		if hasBullets {
			if v, ok := LabelValue(bullets.Text, l.label, bulletsSeparator); ok && v != "" {
				fields[l.field] = v
				continue
			}
		}
		if hasTable {
			if v, ok := LabelValue(table.Text, l.label, tableSeparator); ok && v != "" {
				fields[l.field] = v
			}
		}
	}

	return fields
}

// LabelValue finds the first case-sensitive occurrence of label in block and
// returns the value that follows it on the same line. When sep occurs in that
// line, the value is the text between its first and second occurrence.
func LabelValue(block, label, sep string) (string, bool) {
	idx := strings.Index(block, label)
	if idx < 0 || label == "" {
		return "", false
	}

	rest := block[idx+len(label):]
	if next := strings.Index(rest, label); next >= 0 {
		rest = rest[:next]
	}
	line, _, _ := strings.Cut(strings.TrimSpace(rest), "\n")
	line = strings.TrimSpace(line)

	if _, after, ok := strings.Cut(line, sep); ok {
		value, _, _ := strings.Cut(after, sep)
		return strings.TrimSpace(value), true
	}
	return line, true
}

// ResolveHref makes href absolute against the origin of pageURL. Unparseable
// input is returned unchanged.
func ResolveHref(pageURL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return href
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	return origin.ResolveReference(ref).String()
}

func bylineHref(m Match) string {
	if href := strings.TrimSpace(m.Attributes["href"]); href != "" {
		return href
	}
	if strings.TrimSpace(m.HTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(m.HTML))
	if err != nil {
		return ""
	}
	href, _ := doc.Find("a[href]").First().Attr("href")
	return strings.TrimSpace(href)
}

func setField(fields models.Fields, name models.FieldName, value string) {
	if value == "" {
		return
	}
	fields[name] = value
}
