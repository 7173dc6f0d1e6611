// Package facts extracts deterministic product, structural, and technical
// facts from rendered page markup. Each product field is resolved by an
// ordered cascade of strategies; the first strategy that yields a valid value
// wins and is recorded in the provenance map.
package facts

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Provenance keys.
const (
	FieldTitle       = "title"
	FieldPrice       = "price"
	FieldDescription = "description"
	FieldCTA         = "cta"
	FieldVariants    = "variants"
	FieldStock       = "stock"
)

// Engine runs extraction cascades against markup. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	registry     *Registry
	titles       []Strategy[string]
	prices       []Strategy[PriceResult]
	descriptions []Strategy[string]
	ctas         []Strategy[CTAResult]
	variants     []Strategy[VariantResult]
	stock        []Strategy[string]
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRegistry replaces the embedded detection registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithTitleStrategies replaces the title cascade.
func WithTitleStrategies(s ...Strategy[string]) Option {
	return func(e *Engine) { e.titles = s }
}

// WithPriceStrategies replaces the price cascade.
func WithPriceStrategies(s ...Strategy[PriceResult]) Option {
	return func(e *Engine) { e.prices = s }
}

// WithDescriptionStrategies replaces the description cascade.
func WithDescriptionStrategies(s ...Strategy[string]) Option {
	return func(e *Engine) { e.descriptions = s }
}

// WithCTAStrategies replaces the purchase-action cascade.
func WithCTAStrategies(s ...Strategy[CTAResult]) Option {
	return func(e *Engine) { e.ctas = s }
}

// WithVariantStrategies replaces the variant cascade.
func WithVariantStrategies(s ...Strategy[VariantResult]) Option {
	return func(e *Engine) { e.variants = s }
}

// WithStockStrategies replaces the availability cascade.
func WithStockStrategies(s ...Strategy[string]) Option {
	return func(e *Engine) { e.stock = s }
}

// NewEngine builds an Engine with the default cascades and registry.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		registry:     DefaultRegistry(),
		titles:       DefaultTitleStrategies(),
		prices:       DefaultPriceStrategies(),
		descriptions: DefaultDescriptionStrategies(),
		ctas:         DefaultCTAStrategies(),
		variants:     DefaultVariantStrategies(),
		stock:        DefaultStockStrategies(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegistryVersion reports the registry version stamped on records.
func (e *Engine) RegistryVersion() string { return e.registry.Version }

var defaultEngine = sync.OnceValue(func() *Engine { return NewEngine() })

// Extract parses markup with the default engine.
func Extract(markup []byte) audit.FactRecord {
	return defaultEngine().Extract(markup)
}

// Extract parses markup into a fact record. Identical markup always yields an
// equal record. Unparseable or empty markup yields an empty record.
func (e *Engine) Extract(markup []byte) audit.FactRecord {
	start := time.Now()
	rec := emptyRecord(e.registry.Version)
	if len(markup) == 0 {
		return rec
	}
	d, err := newDocument(markup, e.registry)
	if err != nil {
		return rec
	}

	p := &rec.Product
	if title, src, ok := runCascade(d, e.titles); ok {
		p.Title = title
		p.Provenance[FieldTitle] = src
	}
	if price, src, ok := runCascade(d, e.prices); ok {
		amount := price.Amount
		p.Price = &amount
		p.Currency = price.Currency
		p.SalePrice = price.Sale
		p.RegularPrice = price.Regular
		p.Provenance[FieldPrice] = src
	}
	if desc, src, ok := runCascade(d, e.descriptions); ok {
		p.HasDescription = true
		p.DescriptionLength = utf8.RuneCountInString(desc)
		p.Provenance[FieldDescription] = src
	}
	cta, src, ok := runCascade(d, e.ctas)
	if ok {
		p.HasCTA = true
		p.CTAText = cta.Text
		p.CTACount = cta.Count
		p.Provenance[FieldCTA] = src
	}
	if v, src, ok := runCascade(d, e.variants); ok {
		p.HasVariants = len(v.Types) > 0
		p.VariantTypes = v.Types
		p.VariantOptions = v.Options
		p.Provenance[FieldVariants] = src
	}
	p.VariantComplexity = variantComplexity(len(p.VariantTypes), p.VariantOptions)
	if stock, src, ok := runCascade(d, e.stock); ok {
		p.StockStatus = stock
		p.Provenance[FieldStock] = src
	}
	p.StickyCTAMobile = stickyCTA(d)

	rec.Structural = structuralFacts(d, cta.Node)
	rec.Technical = technicalFacts(d, string(markup))
	rec.ParseDurationMs = time.Since(start).Milliseconds()
	return rec
}

func emptyRecord(registryVersion string) audit.FactRecord {
	return audit.FactRecord{
		Product: audit.ProductFacts{
			VariantTypes:      []string{},
			StockStatus:       audit.StockUnknown,
			VariantComplexity: audit.ComplexityNone,
			Provenance:        map[string]string{},
		},
		Technical: audit.TechnicalFacts{
			Integrations:    []string{},
			RegistryVersion: registryVersion,
		},
	}
}
