package facts

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

const maxTitleRunes = 300

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	titleSeparator = regexp.MustCompile(`\s+[|–—-]\s+`)
)

var (
	titleSelectors = []string{
		"h1.product-title", "h1.product__title", ".product__title h1", ".product-single__title",
		"h1[itemprop=name]", ".product_title", "#productTitle", "h1",
	}
	descriptionSelectors = []string{
		"[itemprop=description]", ".product__description", ".product-description",
		".product-single__description", "#product-description", "#description",
		".woocommerce-product-details__short-description", ".product-info__description", ".rte",
	}
	ctaSelectors = []string{
		"button[name=add]", "[name=add-to-cart]", "button.single_add_to_cart_button",
		"#add-to-cart", "#AddToCart", "#addToCart", "#add-to-cart-button",
		".add-to-cart", ".add_to_cart_button", ".product-form__submit",
		"[data-add-to-cart]", "[data-action=add-to-cart]", ".btn-add-to-cart", ".buy-now",
	}
	cartFormSelector = `form[action*="/cart/add"], form[action*="add-to-cart"], form[action*="basket"], form.cart, form[id*=product-form]`
	actionControls   = "button, input[type=submit], input[type=button], a, [role=button]"
	stickySelectors  = []string{
		"[class*=sticky][class*=cart]", "[class*=sticky][class*=atc]", "[class*=sticky-atc]",
		"[class*=sticky-add]", "[class*=sticky][class*=buy]", "[id*=sticky][id*=cart]",
		"[data-sticky-atc]", "sticky-add-to-cart",
	}
	stockSelectors = []string{
		"[itemprop=availability]", ".product-stock", ".stock", "[class*=availability]",
		"[class*=stock-status]", "[class*=inventory]", "[data-stock]",
	}
)

// CTAResult describes the purchase controls found on a page.
type CTAResult struct {
	Text  string
	Count int
	// Node is the first matched control, used for proximity checks.
	Node *goquery.Selection
}

// DefaultTitleStrategies returns the built-in title cascade.
func DefaultTitleStrategies() []Strategy[string] {
	return []Strategy[string]{
		{Name: SourceStructuredData, Find: func(d *Document) (string, bool) {
			for _, p := range d.products {
				if t := validTitle(jsonString(p["name"])); t != "" {
					return t, true
				}
			}
			return "", false
		}},
		{Name: SourceSelectors, Find: func(d *Document) (string, bool) {
			for _, sel := range titleSelectors {
				if t := validTitle(d.main.Find(sel).First().Text()); t != "" {
					return t, true
				}
			}
			return "", false
		}},
		{Name: SourceMeta, Find: func(d *Document) (string, bool) {
			for _, key := range []string{"og:title", "twitter:title"} {
				if t := validTitle(d.Meta(key)); t != "" {
					return t, true
				}
			}
			return "", false
		}},
		{Name: SourceTextScan, Find: func(d *Document) (string, bool) {
			raw := collapse(d.doc.Find("title").First().Text())
			if loc := titleSeparator.FindAllStringIndex(raw, -1); len(loc) > 0 {
				if head := raw[:loc[len(loc)-1][0]]; strings.TrimSpace(head) != "" {
					raw = head
				}
			}
			t := validTitle(raw)
			return t, t != ""
		}},
	}
}

func validTitle(s string) string {
	s = collapse(s)
	if s == "" || utf8.RuneCountInString(s) > maxTitleRunes {
		return ""
	}
	return s
}

// DefaultDescriptionStrategies returns the built-in description cascade.
func DefaultDescriptionStrategies() []Strategy[string] {
	return []Strategy[string]{
		{Name: SourceStructuredData, Find: func(d *Document) (string, bool) {
			for _, p := range d.products {
				if s := collapse(tagPattern.ReplaceAllString(jsonString(p["description"]), " ")); s != "" {
					return s, true
				}
			}
			return "", false
		}},
		{Name: SourceSelectors, Find: func(d *Document) (string, bool) {
			for _, sel := range descriptionSelectors {
				s := d.main.Find(sel).First()
				text := collapse(s.Text())
				if text == "" {
					text = collapse(s.AttrOr("content", ""))
				}
				if text != "" {
					return text, true
				}
			}
			return "", false
		}},
		{Name: SourceMeta, Find: func(d *Document) (string, bool) {
			for _, key := range []string{"og:description", "description", "twitter:description"} {
				if s := collapse(d.Meta(key)); s != "" {
					return s, true
				}
			}
			return "", false
		}},
		{Name: SourceTextScan, Find: func(d *Document) (string, bool) {
			longest := ""
			d.main.Find("p").Each(func(_ int, p *goquery.Selection) {
				if t := collapse(p.Text()); utf8.RuneCountInString(t) > utf8.RuneCountInString(longest) {
					longest = t
				}
			})
			if utf8.RuneCountInString(longest) < 80 {
				return "", false
			}
			return longest, true
		}},
	}
}

// DefaultCTAStrategies returns the built-in purchase-action cascade.
func DefaultCTAStrategies() []Strategy[CTAResult] {
	return []Strategy[CTAResult]{
		{Name: SourceCommerceForm, Find: func(d *Document) (CTAResult, bool) {
			return ctaFrom(d.doc.Find(cartFormSelector).Find(actionControls).FilterFunction(func(_ int, s *goquery.Selection) bool {
				return isSubmit(s) || containsAny(strings.ToLower(controlText(s)), d.registry.Keywords.CTA)
			}))
		}},
		{Name: SourceSelectors, Find: func(d *Document) (CTAResult, bool) {
			return ctaFrom(d.doc.Find(strings.Join(ctaSelectors, ", ")))
		}},
		{Name: SourceTextScan, Find: func(d *Document) (CTAResult, bool) {
			return ctaFrom(d.doc.Find(actionControls).FilterFunction(func(_ int, s *goquery.Selection) bool {
				return containsAny(strings.ToLower(controlText(s)), d.registry.Keywords.CTA)
			}))
		}},
	}
}

func isSubmit(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "button" {
		return strings.EqualFold(s.AttrOr("type", "submit"), "submit")
	}
	return strings.EqualFold(s.AttrOr("type", ""), "submit")
}

func ctaFrom(sel *goquery.Selection) (CTAResult, bool) {
	if sel.Length() == 0 {
		return CTAResult{}, false
	}
	first := sel.First()
	return CTAResult{Text: controlText(first), Count: sel.Length(), Node: first}, true
}

func controlText(s *goquery.Selection) string {
	if t := collapse(s.Text()); t != "" {
		return t
	}
	for _, attr := range []string{"value", "aria-label", "title"} {
		if t := collapse(s.AttrOr(attr, "")); t != "" {
			return t
		}
	}
	return ""
}

// DefaultStockStrategies returns the built-in availability cascade.
func DefaultStockStrategies() []Strategy[string] {
	return []Strategy[string]{
		{Name: SourceStructuredData, Find: func(d *Document) (string, bool) {
			for _, p := range d.products {
				for _, o := range offers(p) {
					if s := classifyAvailability(jsonString(o["availability"])); s != "" {
						return s, true
					}
				}
			}
			return "", false
		}},
		{Name: SourceSelectors, Find: func(d *Document) (string, bool) {
			var out string
			d.main.Find(strings.Join(stockSelectors, ", ")).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				for _, attr := range []string{"href", "content", "data-stock"} {
					if out = classifyAvailability(s.AttrOr(attr, "")); out != "" {
						return false
					}
				}
				out = classifyStockText(strings.ToLower(collapse(s.Text())), d.registry)
				return out == ""
			})
			return out, out != ""
		}},
		{Name: SourceMeta, Find: func(d *Document) (string, bool) {
			for _, key := range []string{"product:availability", "og:availability", "availability"} {
				if s := classifyAvailability(d.Meta(key)); s != "" {
					return s, true
				}
			}
			return "", false
		}},
		{Name: SourceTextScan, Find: func(d *Document) (string, bool) {
			s := classifyStockText(strings.ToLower(d.mainText), d.registry)
			return s, s != ""
		}},
	}
}

// classifyAvailability maps schema.org and feed availability tokens.
func classifyAvailability(raw string) string {
	token := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(raw))
	if i := strings.LastIndexAny(token, "/:"); i >= 0 {
		token = token[i+1:]
	}
	switch {
	case token == "":
		return ""
	case strings.Contains(token, "outofstock"), strings.Contains(token, "soldout"),
		strings.Contains(token, "discontinued"), token == "oos":
		return audit.StockOutOfStock
	case strings.Contains(token, "preorder"), strings.Contains(token, "presale"),
		strings.Contains(token, "backorder"):
		return audit.StockPreorder
	case strings.Contains(token, "instock"), strings.Contains(token, "limitedavailability"),
		strings.Contains(token, "onlineonly"), strings.Contains(token, "instoreonly"):
		return audit.StockInStock
	}
	return ""
}

func classifyStockText(lower string, reg *Registry) string {
	switch {
	case lower == "":
		return ""
	case containsAny(lower, reg.Keywords.OutOfStock):
		return audit.StockOutOfStock
	case containsAny(lower, reg.Keywords.Preorder):
		return audit.StockPreorder
	case containsAny(lower, reg.Keywords.InStock):
		return audit.StockInStock
	}
	return ""
}

// stickyCTA reports a purchase control pinned to the viewport on small screens.
func stickyCTA(d *Document) bool {
	if d.doc.Find(strings.Join(stickySelectors, ", ")).Length() > 0 {
		return true
	}
	found := false
	d.doc.Find("[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "position:fixed") || strings.Contains(style, "position:sticky") {
			found = containsAny(strings.ToLower(collapse(s.Text())), d.registry.Keywords.CTA)
		}
		return !found
	})
	return found
}
