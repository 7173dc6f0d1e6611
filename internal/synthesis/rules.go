package synthesis

import (
	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/evidence"
)

// Rule thresholds.
const (
	AboveFoldNoiseThreshold = 3
	PaintThresholdMs        = 3000.0
	ThinDescriptionRunes    = 200
)

// Rule is a condition over facts paired with a ticket template.
type Rule struct {
	ID         string
	Signal     string
	Category   audit.Category
	Title      string
	Why        string
	HowTo      []string
	Validation []string
	Impact     audit.Level
	Effort     audit.Effort
	Risk       audit.Risk
	Confidence audit.Level
	Owner      audit.Owner
	Matches    func(f audit.FactRecord) bool
}

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID: "R01_MISSING_CTA", Signal: "MISSING_CTA", Category: audit.CategoryOfferClarity,
			Title: "Make the purchase action detectable and visible",
			Why:   "No add-to-cart or buy control was found; shoppers and crawlers cannot tell how to purchase.",
			HowTo: []string{
				"Confirm the add-to-cart control renders server-side or before first paint",
				"Use a native button element with a clear purchase label",
				"Place the control directly under price and variant selection",
			},
			Validation: []string{"Re-run the audit and confirm has_cta is true", "Check add-to-cart rate for the page"},
			Impact:     audit.LevelHigh, Effort: audit.EffortM, Risk: audit.RiskLow, Confidence: audit.LevelHigh, Owner: audit.OwnerDev,
			Matches: func(f audit.FactRecord) bool { return !f.Product.HasCTA },
		},
		{
			ID: "R02_IMAGES_MISSING_ALT", Signal: "IMAGES_MISSING_ALT", Category: audit.CategoryAccessibility,
			Title: "Add descriptive alt text to product images",
			Why:   "Some images have no alternative text, which hides product details from screen readers and image search.",
			HowTo: []string{
				"List every image without an alt attribute",
				"Write alt text describing the product, angle, and colour shown",
				"Mark purely decorative images with an empty alt attribute",
			},
			Validation: []string{"Re-run the audit and confirm images_without_alt is 0"},
			Impact:     audit.LevelMedium, Effort: audit.EffortS, Risk: audit.RiskLow, Confidence: audit.LevelHigh, Owner: audit.OwnerCopy,
			Matches: func(f audit.FactRecord) bool { return f.Structural.ImagesWithoutAlt > 0 },
		},
		{
			ID: "R03_ATF_OVERLOAD", Signal: "ATF_OVERLOAD", Category: audit.CategoryUX,
			Title: "Reduce promotional clutter above the fold",
			Why:   "Several banners, popups, or countdowns compete with the product for the first screen.",
			HowTo: []string{
				"Inventory announcement bars, popups, and countdown widgets",
				"Keep at most one promotional element above the product title",
				"Delay newsletter and discount popups until engagement",
			},
			Validation: []string{"Compare mobile above-the-fold screenshots before and after", "Watch bounce rate on mobile"},
			Impact:     audit.LevelMedium, Effort: audit.EffortM, Risk: audit.RiskMedium, Confidence: audit.LevelMedium, Owner: audit.OwnerDesign,
			Matches: func(f audit.FactRecord) bool { return f.Structural.AboveFoldNoise >= AboveFoldNoiseThreshold },
		},
		{
			ID: "R04_MISSING_TRUST_SIGNALS", Signal: "MISSING_TRUST_SIGNALS", Category: audit.CategoryTrust,
			Title: "Show shipping, returns, and payment trust near the purchase action",
			Why:   "No shipping or returns information and no trust badges were found near the purchase action.",
			HowTo: []string{
				"Add a short shipping and delivery line under the add-to-cart button",
				"Link the returns policy next to the purchase action",
				"Show accepted payment methods or a secure checkout badge",
			},
			Validation: []string{"Confirm has_shipping_info and has_returns_info are true", "Track conversion rate for two weeks"},
			Impact:     audit.LevelHigh, Effort: audit.EffortS, Risk: audit.RiskLow, Confidence: audit.LevelMedium, Owner: audit.OwnerCRO,
			Matches: func(f audit.FactRecord) bool {
				s := f.Structural
				return !s.TrustBadgeNearCTA && !s.HasShippingInfo && !s.HasReturnsInfo
			},
		},
		{
			ID: "R05_MISSING_REVIEWS", Signal: "MISSING_REVIEWS", Category: audit.CategoryTrust,
			Title: "Surface customer reviews and ratings",
			Why:   "No reviews, ratings, or review widgets were detected on the page.",
			HowTo: []string{
				"Enable a review widget for this product",
				"Show the average rating and count near the title",
				"Add aggregateRating to the product structured data",
			},
			Validation: []string{"Confirm has_reviews is true", "Check rich result eligibility in search console"},
			Impact:     audit.LevelHigh, Effort: audit.EffortM, Risk: audit.RiskLow, Confidence: audit.LevelHigh, Owner: audit.OwnerMerch,
			Matches: func(f audit.FactRecord) bool { return !f.Structural.HasReviews },
		},
		{
			ID: "R06_POOR_PAINT_TIMING", Signal: "POOR_PAINT_TIMING", Category: audit.CategoryPerformance,
			Title: "Speed up first contentful paint",
			Why:   "First contentful paint exceeded 3000 ms, so shoppers wait on a blank screen.",
			HowTo: []string{
				"Defer or async non-critical scripts in the document head",
				"Inline critical CSS for the product hero",
				"Serve the main product image in a modern format with explicit dimensions",
				"Audit third-party tags and remove unused ones",
			},
			Validation: []string{"Re-run the audit and confirm paint_metric_ms is under 3000", "Check field data for first contentful paint"},
			Impact:     audit.LevelMedium, Effort: audit.EffortL, Risk: audit.RiskMedium, Confidence: audit.LevelMedium, Owner: audit.OwnerDev,
			Matches: func(f audit.FactRecord) bool {
				return f.Technical.PaintMetricMs != nil && *f.Technical.PaintMetricMs > PaintThresholdMs
			},
		},
		{
			ID: "R07_THIN_DESCRIPTION", Signal: "THIN_DESCRIPTION", Category: audit.CategoryContent,
			Title: "Expand the product description",
			Why:   "The description is missing or shorter than 200 characters and leaves fit, material, and care questions open.",
			HowTo: []string{
				"Answer the top three pre-purchase questions from support tickets",
				"Add materials, dimensions, and care instructions",
				"Use short scannable bullet points under a clear heading",
			},
			Validation: []string{"Confirm description_length is at least 200", "Track time on page and add-to-cart rate"},
			Impact:     audit.LevelMedium, Effort: audit.EffortS, Risk: audit.RiskLow, Confidence: audit.LevelHigh, Owner: audit.OwnerCopy,
			Matches: func(f audit.FactRecord) bool {
				return !f.Product.HasDescription || f.Product.DescriptionLength < ThinDescriptionRunes
			},
		},
		{
			ID: "R08_COMPLEX_VARIANTS", Signal: "COMPLEX_VARIANTS", Category: audit.CategoryUX,
			Title: "Simplify variant selection",
			Why:   "The product exposes many variant dimensions or options, which slows selection on mobile.",
			HowTo: []string{
				"Replace dropdowns with visible swatches or buttons for the top dimension",
				"Preselect the most popular combination",
				"Hide unavailable combinations instead of showing errors",
			},
			Validation: []string{"Measure variant selection completion rate", "Compare add-to-cart rate on mobile"},
			Impact:     audit.LevelMedium, Effort: audit.EffortM, Risk: audit.RiskMedium, Confidence: audit.LevelMedium, Owner: audit.OwnerDesign,
			Matches: func(f audit.FactRecord) bool { return f.Product.VariantComplexity == audit.ComplexityHigh },
		},
	}
}

// RuleStrategy evaluates rules in order and emits one ticket per match, each
// citing a single representative evidence id. It emits nothing when the
// evidence catalog is empty.
type RuleStrategy struct {
	rules []Rule
}

// NewRuleStrategy builds a RuleStrategy; nil rules selects DefaultRules.
func NewRuleStrategy(rules []Rule) *RuleStrategy {
	if rules == nil {
		rules = DefaultRules()
	}
	return &RuleStrategy{rules: rules}
}

// Candidates returns unsorted rule tickets for the facts.
func (s *RuleStrategy) Candidates(in Input) []audit.Ticket {
	ref, ok := evidence.Representative(in.Evidence)
	if !ok {
		return nil
	}
	mode := in.mode()
	scope := ScopeFor(mode)
	ids := newIDAllocator()
	var out []audit.Ticket
	for _, r := range s.rules {
		if r.Matches == nil || !r.Matches(in.Facts) {
			continue
		}
		out = append(out, audit.Ticket{
			ID:           ids.next(mode, r.Category, r.Signal, scope),
			Mode:         mode,
			Title:        r.Title,
			Category:     r.Category,
			Impact:       r.Impact,
			Effort:       r.Effort,
			Risk:         r.Risk,
			Confidence:   r.Confidence,
			Why:          r.Why,
			HowTo:        append([]string(nil), r.HowTo...),
			EvidenceRefs: []string{ref},
			Validation:   append([]string(nil), r.Validation...),
			Owner:        r.Owner,
			RuleID:       r.ID,
			URLContext:   in.URL,
			Notes:        "",
		})
	}
	return out
}
