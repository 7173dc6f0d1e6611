package synthesis

import (
	"sort"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Guardrails bound the promoted ticket set.
type Guardrails struct {
	// MaxTickets caps the promoted set; zero means unlimited.
	MaxTickets int
	// MaxLargeEffort caps effort=l tickets; negative means unlimited.
	MaxLargeEffort int
}

// DefaultGuardrails returns the production limits.
func DefaultGuardrails() Guardrails {
	return Guardrails{MaxTickets: 10, MaxLargeEffort: 2}
}

type categoryDefault struct {
	ruleID   string
	criteria []string
}

var categoryDefaults = map[audit.Category]categoryDefault{
	audit.CategoryOfferClarity:  {"R_OFFER_CLARITY", []string{"price, title, and purchase action are visible without scrolling"}},
	audit.CategoryTrust:         {"R_TRUST", []string{"shipping, returns, and social proof are visible near the purchase action"}},
	audit.CategoryMedia:         {"R_MEDIA", []string{"product imagery is complete, described, and fast to load"}},
	audit.CategoryUX:            {"R_UX", []string{"the primary task is not crowded out by secondary content"}},
	audit.CategoryPerformance:   {"R_PERFORMANCE", []string{"first contentful paint under 3000 ms on mobile"}},
	audit.CategoryAccessibility: {"R_ACCESSIBILITY", []string{"all content is perceivable and operable with assistive technology"}},
	audit.CategoryContent:       {"R_CONTENT", []string{"the description answers fit, material, and use questions"}},
	audit.CategoryDataQuality:   {"R_DATA_QUALITY", []string{"core product facts can be detected from the rendered page"}},
}

var ownerAliases = map[string]audit.Owner{
	"cro": audit.OwnerCRO, "marketing": audit.OwnerCRO, "growth": audit.OwnerCRO,
	"copy": audit.OwnerCopy, "content": audit.OwnerCopy, "copywriter": audit.OwnerCopy, "copywriting": audit.OwnerCopy,
	"design": audit.OwnerDesign, "ux": audit.OwnerDesign, "ui": audit.OwnerDesign, "designer": audit.OwnerDesign,
	"dev": audit.OwnerDev, "developer": audit.OwnerDev, "engineering": audit.OwnerDev, "tech": audit.OwnerDev, "engineer": audit.OwnerDev,
	"merch": audit.OwnerMerch, "merchandising": audit.OwnerMerch, "ops": audit.OwnerMerch, "operations": audit.OwnerMerch,
}

var effortAliases = map[string]audit.Effort{
	"s": audit.EffortS, "small": audit.EffortS, "low": audit.EffortS, "xs": audit.EffortS,
	"m": audit.EffortM, "medium": audit.EffortM, "med": audit.EffortM,
	"l": audit.EffortL, "large": audit.EffortL, "high": audit.EffortL, "xl": audit.EffortL,
}

// NormalizeOwner maps free-form team names onto the owner enum, defaulting
// to cro.
func NormalizeOwner(raw string) audit.Owner {
	if o, ok := ownerAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return o
	}
	return audit.OwnerCRO
}

// NormalizeEffort maps free-form sizes onto the effort enum. It reports
// false for unknown vocabulary.
func NormalizeEffort(raw string) (audit.Effort, bool) {
	e, ok := effortAliases[strings.ToLower(strings.TrimSpace(raw))]
	return e, ok
}

func levelWeight(l audit.Level) int {
	switch l {
	case audit.LevelHigh:
		return 3
	case audit.LevelMedium:
		return 2
	case audit.LevelLow:
		return 1
	}
	return 0
}

func effortWeight(e audit.Effort) int {
	switch e {
	case audit.EffortS:
		return 1
	case audit.EffortM:
		return 2
	case audit.EffortL:
		return 3
	}
	return 0
}

func riskWeight(r audit.Risk) int {
	switch r {
	case audit.RiskLow:
		return 1
	case audit.RiskMedium:
		return 2
	case audit.RiskHigh:
		return 3
	}
	return 0
}

// Score is impact*3 + confidence*2 - effort*2 - risk.
func Score(t audit.Ticket) int {
	return levelWeight(t.Impact)*3 + levelWeight(t.Confidence)*2 - effortWeight(t.Effort)*2 - riskWeight(t.Risk)
}

// IsQuickWin reports small, high-impact work the team is at least fairly sure of.
func IsQuickWin(t audit.Ticket) bool {
	return t.Effort == audit.EffortS && t.Impact == audit.LevelHigh && levelWeight(t.Confidence) >= 2
}

// SortTicketsStable orders tickets by score, impact and confidence
// descending, then effort and risk ascending, then id. Sorting an already
// sorted slice is a no-op.
func SortTicketsStable(tickets []audit.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i], tickets[j]
		if sa, sb := Score(a), Score(b); sa != sb {
			return sa > sb
		}
		if ia, ib := levelWeight(a.Impact), levelWeight(b.Impact); ia != ib {
			return ia > ib
		}
		if ca, cb := levelWeight(a.Confidence), levelWeight(b.Confidence); ca != cb {
			return ca > cb
		}
		if ea, eb := effortWeight(a.Effort), effortWeight(b.Effort); ea != eb {
			return ea < eb
		}
		if ra, rb := riskWeight(a.Risk), riskWeight(b.Risk); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
}

// PostProcess enriches, scores, sorts, and trims tickets, then derives the
// plan from the promoted set.
func PostProcess(tickets []audit.Ticket, g Guardrails) ([]audit.Ticket, audit.Plan) {
	out := make([]audit.Ticket, 0, len(tickets))
	for _, t := range tickets {
		t = enrich(t)
		t.PriorityScore = Score(t)
		t.QuickWin = IsQuickWin(t)
		out = append(out, t)
	}
	SortTicketsStable(out)

	promoted := out[:0]
	large := 0
	for _, t := range out {
		if t.Confidence == audit.LevelLow {
			continue
		}
		if t.Effort == audit.EffortL {
			if g.MaxLargeEffort >= 0 && large >= g.MaxLargeEffort {
				continue
			}
			large++
		}
		if g.MaxTickets > 0 && len(promoted) >= g.MaxTickets {
			break
		}
		promoted = append(promoted, t)
	}
	return promoted, BuildPlan(promoted)
}

// BuildPlan splits sorted tickets into quick wins and next steps.
func BuildPlan(tickets []audit.Ticket) audit.Plan {
	plan := audit.Plan{QuickWins: []string{}, NextSteps: []string{}}
	for _, t := range tickets {
		if t.QuickWin {
			plan.QuickWins = append(plan.QuickWins, t.ID)
		} else {
			plan.NextSteps = append(plan.NextSteps, t.ID)
		}
	}
	return plan
}

func enrich(t audit.Ticket) audit.Ticket {
	if d, ok := categoryDefaults[t.Category]; ok {
		if t.RuleID == "" {
			t.RuleID = d.ruleID
		}
		if len(t.Criteria) == 0 {
			t.Criteria = append([]string(nil), d.criteria...)
		}
	}
	t.Owner = NormalizeOwner(string(t.Owner))
	if e, ok := NormalizeEffort(string(t.Effort)); ok {
		t.Effort = e
	}
	if t.Validation == nil {
		t.Validation = []string{}
	}
	return t
}
