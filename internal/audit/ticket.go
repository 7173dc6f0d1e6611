package audit

import "regexp"

// Category is the closed set of ticket categories.
type Category string

// Ticket categories.
const (
	CategoryOfferClarity  Category = "offer_clarity"
	CategoryTrust         Category = "trust"
	CategoryMedia         Category = "media"
	CategoryUX            Category = "ux"
	CategoryPerformance   Category = "performance"
	CategoryAccessibility Category = "accessibility"
	CategoryContent       Category = "content"
	CategoryDataQuality   Category = "data_quality"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryOfferClarity,
	CategoryTrust,
	CategoryMedia,
	CategoryUX,
	CategoryPerformance,
	CategoryAccessibility,
	CategoryContent,
	CategoryDataQuality,
}

// Valid reports whether c is in the closed set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Level is shared by impact and confidence.
type Level string

// Impact and confidence levels.
const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Valid reports whether l is high, medium, or low.
func (l Level) Valid() bool {
	return l == LevelHigh || l == LevelMedium || l == LevelLow
}

// Effort is t-shirt sized work.
type Effort string

// Effort sizes.
const (
	EffortS Effort = "s"
	EffortM Effort = "m"
	EffortL Effort = "l"
)

// Valid reports whether e is s, m, or l.
func (e Effort) Valid() bool {
	return e == EffortS || e == EffortM || e == EffortL
}

// Risk of shipping the change.
type Risk string

// Risk levels.
const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Valid reports whether r is low, medium, or high.
func (r Risk) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Owner is the team expected to act on a ticket.
type Owner string

// Owners.
const (
	OwnerCRO    Owner = "cro"
	OwnerCopy   Owner = "copy"
	OwnerDesign Owner = "design"
	OwnerDev    Owner = "dev"
	OwnerMerch  Owner = "merch"
)

// Valid reports whether o is in the closed set.
func (o Owner) Valid() bool {
	switch o {
	case OwnerCRO, OwnerCopy, OwnerDesign, OwnerDev, OwnerMerch:
		return true
	default:
		return false
	}
}

// Ticket scopes used in ids.
const (
	ScopePDP    = "pdp"
	ScopePageA  = "page_a"
	ScopePageB  = "page_b"
	ScopeGap    = "gap"
	ScopeBefore = "before"
	ScopeAfter  = "after"
	ScopeDiff   = "diff"
)

// TicketIDPattern is the wire format for ticket ids.
var TicketIDPattern = regexp.MustCompile(
	`^T_(solo|duo_ab|duo_before_after)_(offer_clarity|trust|media|ux|performance|accessibility|content|data_quality)_SIG_[A-Z0-9_]+_(pdp|page_a|page_b|gap|before|after|diff)_[0-9]{2}$`)

// Ticket is an evidence-backed recommendation.
type Ticket struct {
	ID            string   `json:"id"`
	Mode          Mode     `json:"mode"`
	Title         string   `json:"title"`
	Category      Category `json:"category"`
	Impact        Level    `json:"impact"`
	Effort        Effort   `json:"effort"`
	Risk          Risk     `json:"risk"`
	Confidence    Level    `json:"confidence"`
	Why           string   `json:"why"`
	HowTo         []string `json:"how_to"`
	EvidenceRefs  []string `json:"evidence_refs"`
	Validation    []string `json:"validation"`
	QuickWin      bool     `json:"quick_win"`
	Owner         Owner    `json:"owner"`
	RuleID        string   `json:"rule_id,omitempty"`
	Criteria      []string `json:"criteria,omitempty"`
	URLContext    string   `json:"url_context,omitempty"`
	Notes         string   `json:"notes"`
	PriorityScore int      `json:"priority_score"`
}

// Plan groups ticket ids into an execution order.
type Plan struct {
	QuickWins []string `json:"quick_wins"`
	NextSteps []string `json:"next_steps"`
}
