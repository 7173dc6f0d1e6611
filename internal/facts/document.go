package facts

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// chromeSelector matches page chrome excluded from main-content scans.
const chromeSelector = "nav, header, footer, [role=navigation], [role=banner], [role=contentinfo], script, style, noscript, template"

var mainCandidates = []string{"main", "[role=main]", "#MainContent", "#main-content", "#main", "article", "body"}

// Document is a parsed page shared by every strategy of one extraction.
type Document struct {
	doc      *goquery.Document
	lower    string
	products []map[string]any
	jsonBlob []map[string]any
	meta     map[string]string
	main     *goquery.Selection
	mainText string
	registry *Registry
}

func newDocument(markup []byte, reg *Registry) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, err
	}
	d := &Document{
		doc:      doc,
		lower:    strings.ToLower(string(markup)),
		meta:     make(map[string]string),
		registry: reg,
	}
	d.collectStructuredData()
	d.collectMeta()
	d.main = mainContent(doc)
	d.mainText = collapse(d.main.Text())
	return d, nil
}

// Query returns the underlying goquery document.
func (d *Document) Query() *goquery.Document { return d.doc }

// Products returns the JSON-LD Product and ProductGroup nodes in document order.
func (d *Document) Products() []map[string]any { return d.products }

// Meta returns the first content value of a meta tag keyed by name or property.
func (d *Document) Meta(key string) string { return d.meta[strings.ToLower(key)] }

// MainText returns the collapsed text of the main content region.
func (d *Document) MainText() string { return d.mainText }

// Main returns a detached copy of the main content region.
func (d *Document) Main() *goquery.Selection { return d.main }

// Registry returns the detection tables in effect.
func (d *Document) Registry() *Registry { return d.registry }

func (d *Document) collectStructuredData() {
	d.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return
		}
		collectProducts(v, &d.products)
	})
	d.doc.Find(`script[type="application/json"]`).Each(func(_ int, s *goquery.Selection) {
		var v map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return
		}
		if _, ok := v["variants"]; ok {
			d.jsonBlob = append(d.jsonBlob, v)
		} else if p, ok := v["product"].(map[string]any); ok {
			d.jsonBlob = append(d.jsonBlob, p)
		}
	})
}

func collectProducts(v any, out *[]map[string]any) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			collectProducts(item, out)
		}
	case map[string]any:
		if isSchemaType(t["@type"], "Product") || isSchemaType(t["@type"], "ProductGroup") {
			*out = append(*out, t)
		}
		for _, key := range []string{"@graph", "mainEntity", "itemListElement"} {
			if nested, ok := t[key]; ok {
				collectProducts(nested, out)
			}
		}
	}
}

func isSchemaType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		t = t[strings.LastIndexAny(t, "/:")+1:]
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if isSchemaType(item, want) {
				return true
			}
		}
	}
	return false
}

func (d *Document) collectMeta() {
	d.doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		for _, attr := range []string{"property", "name", "itemprop"} {
			key := strings.ToLower(strings.TrimSpace(s.AttrOr(attr, "")))
			if key == "" {
				continue
			}
			if _, seen := d.meta[key]; !seen {
				d.meta[key] = strings.TrimSpace(content)
			}
		}
	})
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	region := doc.Selection
	for _, sel := range mainCandidates {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			region = s
			break
		}
	}
	clone := region.Clone()
	clone.Find(chromeSelector).Remove()
	return clone
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// jsonString renders scalar JSON-LD values as strings.
func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strings.TrimSpace(formatFloat(t))
	case map[string]any:
		for _, key := range []string{"name", "@value", "@id"} {
			if s := jsonString(t[key]); s != "" {
				return s
			}
		}
	case []any:
		for _, item := range t {
			if s := jsonString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// offers flattens the offers of a product node, including ProductGroup variants.
func offers(product map[string]any) []map[string]any {
	var out []map[string]any
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			out = append(out, t)
			if nested, ok := t["offers"]; ok {
				walk(nested)
			}
		}
	}
	walk(product["offers"])
	if variants, ok := product["hasVariant"].([]any); ok {
		for _, v := range variants {
			if m, ok := v.(map[string]any); ok {
				walk(m["offers"])
			}
		}
	}
	return out
}
