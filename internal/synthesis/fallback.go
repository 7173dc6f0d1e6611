package synthesis

import (
	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/evidence"
)

// Fixed narratives for deterministic paths.
const (
	FallbackSummary = "Automated narrative unavailable for this run. " +
		"The tickets below come from deterministic page checks and cite only captured evidence; review them manually before acting."
	FallbackReasoning         = "The model response was unavailable or failed validation and was discarded."
	InsufficientDataSummary   = "Core product facts (title, price, and purchase action) could not be detected, so no page recommendations were generated."
	InsufficientDataReasoning = "Extraction found none of title, price, or purchase action; recommendations would be unsupported."
	SkippedSummary            = "Synthesis skipped: no screenshot evidence was captured for this run."
	SkippedReasoning          = "Evidence completeness was insufficient and synthesis on insufficient evidence is disabled."

	signalManualReview     = "MANUAL_REVIEW"
	signalInsufficientData = "INSUFFICIENT_DATA"
)

// FallbackTickets returns the deterministic substitute for rejected model
// output: every candidate, or one generic review ticket when there are none.
// Without evidence it returns nothing.
func FallbackTickets(in Input, candidates []audit.Ticket) []audit.Ticket {
	if len(candidates) > 0 {
		return append([]audit.Ticket(nil), candidates...)
	}
	ref, ok := evidence.Representative(in.Evidence)
	if !ok {
		return nil
	}
	mode := in.mode()
	return []audit.Ticket{{
		ID:         TicketID(mode, audit.CategoryUX, signalManualReview, ScopeFor(mode), 1),
		Mode:       mode,
		Title:      "Review the captured page manually",
		Category:   audit.CategoryUX,
		Impact:     audit.LevelMedium,
		Effort:     audit.EffortS,
		Risk:       audit.RiskLow,
		Confidence: audit.LevelMedium,
		Why:        "No automated finding could be confirmed for this page.",
		HowTo: []string{
			"Open the captured screenshots for each viewport",
			"Check that price, title, and purchase action are visible without scrolling",
			"Log any issue found as a ticket with the matching evidence id",
		},
		EvidenceRefs: []string{ref},
		Validation:   []string{"A reviewer signs off on the captured page"},
		Owner:        audit.OwnerCRO,
		URLContext:   in.URL,
	}}
}

// InsufficientDataTicket flags a page whose core facts were not detected. It
// cites the first evidence item and reports false when there is none.
func InsufficientDataTicket(in Input) (audit.Ticket, bool) {
	if len(in.Evidence) == 0 {
		return audit.Ticket{}, false
	}
	mode := in.mode()
	return audit.Ticket{
		ID:         TicketID(mode, audit.CategoryDataQuality, signalInsufficientData, ScopeFor(mode), 1),
		Mode:       mode,
		Title:      "Core product facts could not be detected",
		Category:   audit.CategoryDataQuality,
		Impact:     audit.LevelHigh,
		Effort:     audit.EffortS,
		Risk:       audit.RiskLow,
		Confidence: audit.LevelHigh,
		Why:        "Title, price, and purchase action were all missing from the rendered page.",
		HowTo: []string{
			"Open the captured screenshot and confirm the product page actually rendered",
			"Check for consent walls, bot protection, or geo redirects",
			"Expose product name, price, and offer in JSON-LD structured data",
			"Re-run the audit once the page renders for an anonymous visitor",
		},
		EvidenceRefs: []string{in.Evidence[0].ID},
		Validation:   []string{"Re-run the audit and confirm title, price, and purchase action are detected"},
		Owner:        audit.OwnerDev,
		URLContext:   in.URL,
	}, true
}
