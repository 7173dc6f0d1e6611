package facts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

const maxLabelRunes = 40

var variantWord = regexp.MustCompile(`(?i)\b(size|colou?r|material|style|width|length|fit|taille|couleur|größe|farbe|talla)\s*:`)

// variantFamily is a group of selector patterns for one kind of variant control.
type variantFamily struct {
	selector string
	options  func(s *goquery.Selection) int
}

var variantFamilies = []variantFamily{
	{
		selector: `select[name^="options"], select[name*=option], select[name*=variant], select[name*=attribute], select[id*=option], select[data-option], .variations select, select.single-option-selector`,
		options: func(s *goquery.Selection) int {
			return s.Find("option").FilterFunction(func(_ int, o *goquery.Selection) bool {
				return strings.TrimSpace(o.AttrOr("value", "")) != ""
			}).Length()
		},
	},
	{
		selector: `fieldset:has(input[type=radio]), [role=radiogroup]`,
		options: func(s *goquery.Selection) int {
			if n := s.Find("input[type=radio]").Length(); n > 0 {
				return n
			}
			return s.Find("[role=radio]").Length()
		},
	},
	{
		selector: `.swatches, [class*=swatch-group], .variant-picker__option, [data-option-index]`,
		options: func(s *goquery.Selection) int {
			for _, sel := range []string{"input[type=radio]", "[data-value]", "button", "li"} {
				if n := s.Find(sel).Length(); n > 0 {
					return n
				}
			}
			return 0
		},
	},
}

// VariantResult lists the variant dimensions of a product.
type VariantResult struct {
	Types   []string
	Options int
}

// DefaultVariantStrategies returns the built-in variant cascade.
func DefaultVariantStrategies() []Strategy[VariantResult] {
	return []Strategy[VariantResult]{
		{Name: SourceStructuredData, Find: structuredVariants},
		{Name: SourceSelectors, Find: selectorVariants},
		{Name: SourceTextScan, Find: func(d *Document) (VariantResult, bool) {
			var res VariantResult
			for _, m := range variantWord.FindAllStringSubmatch(d.mainText, -1) {
				res.Types = appendUnique(res.Types, m[1])
			}
			return res, len(res.Types) > 0
		}},
	}
}

func structuredVariants(d *Document) (VariantResult, bool) {
	for _, blob := range d.jsonBlob {
		var res VariantResult
		opts, _ := blob["options"].([]any)
		for _, o := range opts {
			switch t := o.(type) {
			case string:
				res.Types = appendUnique(res.Types, strings.TrimSpace(t))
			case map[string]any:
				res.Types = appendUnique(res.Types, jsonString(t["name"]))
				if values, ok := t["values"].([]any); ok {
					res.Options += len(values)
				}
			}
		}
		if len(res.Types) == 1 && strings.EqualFold(res.Types[0], "title") {
			continue
		}
		if res.Options == 0 {
			variants, _ := blob["variants"].([]any)
			res.Options = len(variants)
		}
		if len(res.Types) > 0 {
			return res, true
		}
	}
	for _, p := range d.products {
		var res VariantResult
		var varies []any
		switch t := p["variesBy"].(type) {
		case []any:
			varies = t
		case string:
			varies = []any{t}
		}
		for _, v := range varies {
			name := jsonString(v)
			name = name[strings.LastIndexAny(name, "/:")+1:]
			res.Types = appendUnique(res.Types, capitalize(name))
		}
		if hv, ok := p["hasVariant"].([]any); ok {
			res.Options = len(hv)
		}
		if len(res.Types) > 0 {
			return res, true
		}
	}
	return VariantResult{}, false
}

func selectorVariants(d *Document) (VariantResult, bool) {
	var (
		res     VariantResult
		matched []*html.Node
	)
	for _, fam := range variantFamilies {
		d.doc.Find(fam.selector).Each(func(_ int, s *goquery.Selection) {
			if len(matched) > 0 && (s.ClosestNodes(matched...).Length() > 0 || s.HasNodes(matched...).Length() > 0) {
				return
			}
			matched = append(matched, s.Nodes...)
			res.Options += fam.options(s)
			if label := variantLabel(d, s); label != "" {
				res.Types = appendUnique(res.Types, label)
			}
		})
	}
	return res, len(res.Types) > 0
}

// variantLabel derives the human name of a variant control.
func variantLabel(d *Document, s *goquery.Selection) string {
	steps := []func() string{
		func() string { return labelText(s.PrevFiltered("label")) },
		func() string {
			if w := s.Closest("label"); w.Length() > 0 {
				return labelText(w)
			}
			return labelText(s.ChildrenFiltered("legend").First())
		},
		func() string {
			return labelText(s.Siblings().Filter(`legend, .label, [class*=label], [class*=option-name], [class*=option__name]`).First())
		},
		func() string {
			if t := cleanLabel(s.AttrOr("aria-label", "")); t != "" {
				return t
			}
			for _, id := range strings.Fields(s.AttrOr("aria-labelledby", "")) {
				if t := labelText(d.doc.Find("#" + id).First()); t != "" {
					return t
				}
			}
			return ""
		},
		func() string {
			if id := s.AttrOr("id", ""); id != "" {
				return labelText(d.doc.Find(`label[for="` + id + `"]`).First())
			}
			return ""
		},
		func() string { return adjacentText(s) },
	}
	for _, step := range steps {
		if t := step(); t != "" {
			return t
		}
	}
	return ""
}

func labelText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	clone := s.Clone()
	clone.Find("select, input, option, button, ul").Remove()
	return cleanLabel(clone.Text())
}

func cleanLabel(raw string) string {
	t := collapse(raw)
	if i := strings.Index(t, ":"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSpace(strings.TrimRight(t, "*"))
	if t == "" || utf8.RuneCountInString(t) > maxLabelRunes {
		return ""
	}
	return t
}

func adjacentText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	for n := s.Nodes[0].PrevSibling; n != nil; n = n.PrevSibling {
		switch n.Type {
		case html.TextNode:
			if t := collapse(n.Data); t != "" {
				return cleanLabel(t)
			}
		case html.ElementNode:
			return ""
		}
	}
	return ""
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// variantComplexity buckets variant dimensions and option counts.
func variantComplexity(types, options int) string {
	switch {
	case types == 0:
		return audit.ComplexityNone
	case types >= 3 || options > 30:
		return audit.ComplexityHigh
	case types == 2 || options > 10:
		return audit.ComplexityMedium
	default:
		return audit.ComplexityLow
	}
}
