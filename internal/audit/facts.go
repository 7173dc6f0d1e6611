package audit

import "reflect"

// Stock states reported by extraction.
const (
	StockInStock    = "in_stock"
	StockOutOfStock = "out_of_stock"
	StockPreorder   = "preorder"
	StockUnknown    = "unknown"
)

// Variant complexity buckets.
const (
	ComplexityNone   = "none"
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// FactRecord is the structured, side-effect-free result of parsing one page.
type FactRecord struct {
	Product    ProductFacts    `json:"product"`
	Structural StructuralFacts `json:"structural"`
	Technical  TechnicalFacts  `json:"technical"`
	// ParseDurationMs is informational only and ignored by Equal.
	ParseDurationMs int64 `json:"parse_duration_ms"`
}

// ProductFacts describes the offer on the page.
type ProductFacts struct {
	Title             string            `json:"title"`
	Price             *float64          `json:"price"`
	Currency          string            `json:"currency"`
	SalePrice         *float64          `json:"sale_price"`
	RegularPrice      *float64          `json:"regular_price"`
	HasCTA            bool              `json:"has_cta"`
	CTAText           string            `json:"cta_text"`
	CTACount          int               `json:"cta_count"`
	HasVariants       bool              `json:"has_variants"`
	VariantTypes      []string          `json:"variant_types"`
	VariantOptions    int               `json:"variant_options"`
	StockStatus       string            `json:"stock_status"`
	HasDescription    bool              `json:"has_description"`
	DescriptionLength int               `json:"description_length"`
	StickyCTAMobile   bool              `json:"sticky_cta_mobile"`
	VariantComplexity string            `json:"variant_complexity"`
	Provenance        map[string]string `json:"provenance"`
}

// StructuralFacts are direct DOM counts and trust signals.
type StructuralFacts struct {
	H1Count           int     `json:"h1_count"`
	H2Count           int     `json:"h2_count"`
	H3Count           int     `json:"h3_count"`
	ImageCount        int     `json:"image_count"`
	ImagesWithAlt     int     `json:"images_with_alt"`
	ImagesWithoutAlt  int     `json:"images_without_alt"`
	AltCoverage       float64 `json:"alt_coverage"`
	LazyImageCount    int     `json:"lazy_image_count"`
	HasReviews        bool    `json:"has_reviews"`
	HasShippingInfo   bool    `json:"has_shipping_info"`
	HasReturnsInfo    bool    `json:"has_returns_info"`
	HasSocialProof    bool    `json:"has_social_proof"`
	FormCount         int     `json:"form_count"`
	TrustBadgeNearCTA bool    `json:"trust_badge_near_cta"`
	AboveFoldNoise    int     `json:"above_fold_noise"`
}

// AccessibilityFacts are coarse a11y flags.
type AccessibilityFacts struct {
	HasLangAttr         bool `json:"has_lang_attr"`
	HasSkipLink         bool `json:"has_skip_link"`
	LandmarkCount       int  `json:"landmark_count"`
	UnnamedButtons      int  `json:"unnamed_buttons"`
	UnlabeledFormInputs int  `json:"unlabeled_form_inputs"`
}

// TechnicalFacts capture platform and integration detection.
type TechnicalFacts struct {
	Platform            string             `json:"platform"`
	Theme               string             `json:"theme"`
	Integrations        []string           `json:"integrations"`
	HasGA4              bool               `json:"has_ga4"`
	HasGTM              bool               `json:"has_gtm"`
	HasMetaPixel        bool               `json:"has_meta_pixel"`
	Accessibility       AccessibilityFacts `json:"accessibility"`
	PaintMetricMs       *float64           `json:"paint_metric_ms"`
	BlockingScriptCount int                `json:"blocking_script_count"`
	RegistryVersion     string             `json:"registry_version"`
}

// Equal compares two records ignoring the parse duration.
func (r FactRecord) Equal(other FactRecord) bool {
	r.ParseDurationMs = 0
	other.ParseDurationMs = 0
	return reflect.DeepEqual(r, other)
}

// HasMinimalFacts reports whether at least one of title, price, or purchase
// action was found.
func (r FactRecord) HasMinimalFacts() bool {
	return r.Product.Title != "" || r.Product.Price != nil || r.Product.HasCTA
}

// WithTiming merges capture-time measurements that markup cannot carry.
func (r FactRecord) WithTiming(t Timing) FactRecord {
	if t.PaintMetricMs != nil {
		v := *t.PaintMetricMs
		r.Technical.PaintMetricMs = &v
	}
	return r
}
