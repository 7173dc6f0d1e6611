package facts

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spacedDigits = regexp.MustCompile(`(\d)[\s\x{00a0}\x{202f}]+(\d)`)
	numberRun    = regexp.MustCompile(`\d[\d.,]*`)
	currencyCode = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|NZD|JPY|CHF|SEK|NOK|DKK|PLN|INR|BRL)\b`)

	amountPattern  = `\d[\d.,]*(?:[ \x{00a0}]\d{3}(?:[.,]\d+)?)*`
	symbolPattern  = `USD|EUR|GBP|CAD|AUD|CHF|R\$|A\$|C\$|[$€£¥₹]`
	prefixedAmount = regexp.MustCompile(`(?:` + symbolPattern + `)\s?` + amountPattern)
	suffixedAmount = regexp.MustCompile(amountPattern + `\s?(?:` + symbolPattern + `|kr)`)
)

var currencySymbols = []struct{ symbol, code string }{
	{"R$", "BRL"}, {"A$", "AUD"}, {"C$", "CAD"},
	{"€", "EUR"}, {"£", "GBP"}, {"¥", "JPY"}, {"₹", "INR"}, {"$", "USD"},
}

var (
	saleSelectors = []string{
		".price-item--sale", ".price__sale .price-item", ".sale-price", ".price ins",
		"ins .amount", "[data-sale-price]", ".special-price .price", ".price--sale",
	}
	regularSelectors = []string{
		".price-item--regular", ".compare-at-price", ".was-price", ".price del",
		"del .amount", "s.price", ".old-price .price", "[data-compare-price]",
		".price--compare",
	}
	currentSelectors = []string{
		"[itemprop=price]", "[data-product-price]", ".product__price", ".product-price",
		".price-current", "#price", ".price", "[class*=price]",
	}
)

// PriceResult is the outcome of price detection.
type PriceResult struct {
	Amount   float64
	Currency string
	Sale     *float64
	Regular  *float64
}

// NormalizePrice converts a localized price string to a number. It returns
// nil when no finite number can be read.
func NormalizePrice(raw string) *float64 {
	s := raw
	for {
		next := spacedDigits.ReplaceAllString(s, "$1$2")
		if next == s {
			break
		}
		s = next
	}
	m := strings.TrimRight(numberRun.FindString(s), ".,")
	if m == "" {
		return nil
	}

	lastDot := strings.LastIndex(m, ".")
	lastComma := strings.LastIndex(m, ",")
	var clean string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		sep := max(lastDot, lastComma)
		clean = stripSeparators(m[:sep]) + "." + stripSeparators(m[sep+1:])
	case lastComma >= 0:
		if frac := m[lastComma+1:]; len(frac) == 2 {
			clean = stripSeparators(m[:lastComma]) + "." + frac
		} else {
			clean = stripSeparators(m)
		}
	case lastDot >= 0 && strings.Count(m, ".") > 1:
		if len(m)-lastDot-1 == 3 {
			clean = stripSeparators(m)
		} else {
			clean = stripSeparators(m[:lastDot]) + "." + m[lastDot+1:]
		}
	default:
		clean = m
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func stripSeparators(s string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func detectCurrency(s string) string {
	if m := currencyCode.FindString(s); m != "" {
		return m
	}
	for _, c := range currencySymbols {
		if strings.Contains(s, c.symbol) {
			return c.code
		}
	}
	return ""
}

func positive(p *float64) bool { return p != nil && *p > 0 }

// DefaultPriceStrategies returns the built-in price cascade.
func DefaultPriceStrategies() []Strategy[PriceResult] {
	return []Strategy[PriceResult]{
		{Name: SourceStructuredData, Find: structuredPrice},
		{Name: SourceSelectors, Find: selectorPrice},
		{Name: SourceMeta, Find: metaPrice},
		{Name: SourceTextScan, Find: textPrice},
	}
}

func structuredPrice(d *Document) (PriceResult, bool) {
	for _, p := range d.products {
		for _, o := range offers(p) {
			amount := NormalizePrice(jsonString(o["price"]))
			if !positive(amount) {
				amount = NormalizePrice(jsonString(o["lowPrice"]))
			}
			current, list := priceSpecifications(o)
			if !positive(amount) {
				amount = current
			}
			if !positive(amount) {
				continue
			}
			res := PriceResult{Amount: *amount, Currency: strings.ToUpper(jsonString(o["priceCurrency"]))}
			if positive(list) && *list > *amount {
				sale := *amount
				res.Sale, res.Regular = &sale, list
			}
			return res, true
		}
	}
	return PriceResult{}, false
}

// priceSpecifications splits an offer's specifications into the payable
// price and a strike-through list price.
func priceSpecifications(offer map[string]any) (current, list *float64) {
	var specs []any
	switch t := offer["priceSpecification"].(type) {
	case []any:
		specs = t
	case map[string]any:
		specs = []any{t}
	}
	for _, s := range specs {
		spec, ok := s.(map[string]any)
		if !ok {
			continue
		}
		v := NormalizePrice(jsonString(spec["price"]))
		if !positive(v) {
			continue
		}
		kind := strings.ToLower(jsonString(spec["priceType"]))
		if strings.Contains(kind, "strikethrough") || strings.Contains(kind, "listprice") {
			if list == nil {
				list = v
			}
		} else if current == nil {
			current = v
		}
	}
	return current, list
}

func firstPrice(region *goquery.Selection, selectors []string) (*float64, string) {
	var (
		value *float64
		text  string
	)
	region.Find(strings.Join(selectors, ", ")).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := s.AttrOr("content", "")
		if raw == "" {
			raw = s.AttrOr("data-price", "")
		}
		if raw == "" {
			raw = collapse(s.Text())
		}
		if v := NormalizePrice(raw); positive(v) {
			value, text = v, raw
			return false
		}
		return true
	})
	return value, text
}

func selectorPrice(d *Document) (PriceResult, bool) {
	sale, saleText := firstPrice(d.main, saleSelectors)
	regular, _ := firstPrice(d.main, regularSelectors)
	current, currentText := sale, saleText
	if current == nil {
		current, currentText = firstPrice(d.main, currentSelectors)
	}
	if current == nil {
		return PriceResult{}, false
	}
	currency := detectCurrency(currentText)
	if currency == "" {
		currency = strings.ToUpper(d.main.Find("[itemprop=priceCurrency]").First().AttrOr("content", ""))
	}
	res := PriceResult{Amount: *current, Currency: currency}
	if positive(regular) && *regular > *current {
		s := *current
		res.Sale, res.Regular = &s, regular
	}
	return res, true
}

func metaPrice(d *Document) (PriceResult, bool) {
	for _, key := range []string{"product:price:amount", "og:price:amount", "price"} {
		v := NormalizePrice(d.Meta(key))
		if !positive(v) {
			continue
		}
		currency := ""
		for _, ck := range []string{"product:price:currency", "og:price:currency", "pricecurrency"} {
			if c := d.Meta(ck); c != "" {
				currency = strings.ToUpper(c)
				break
			}
		}
		return PriceResult{Amount: *v, Currency: currency}, true
	}
	return PriceResult{}, false
}

func textPrice(d *Document) (PriceResult, bool) {
	text := d.mainText
	best := ""
	bestAt := -1
	for _, re := range []*regexp.Regexp{prefixedAmount, suffixedAmount} {
		loc := re.FindStringIndex(text)
		if loc != nil && (bestAt < 0 || loc[0] < bestAt) {
			best, bestAt = text[loc[0]:loc[1]], loc[0]
		}
	}
	if best == "" {
		return PriceResult{}, false
	}
	v := NormalizePrice(best)
	if !positive(v) {
		return PriceResult{}, false
	}
	currency := detectCurrency(best)
	if currency == "" && strings.HasSuffix(best, "kr") {
		currency = "SEK"
	}
	return PriceResult{Amount: *v, Currency: currency}, true
}
