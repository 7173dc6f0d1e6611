package synthesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Step bounds for how_to.
const (
	MinHowToSteps = 3
	MaxHowToSteps = 7
)

// ValidationError lists every structural and referential problem found in a
// model response.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model output rejected: %s", strings.Join(e.Problems, "; "))
}

type modelOutput struct {
	ExecutiveSummary *string        `json:"executive_summary"`
	Reasoning        *string        `json:"reasoning"`
	Tickets          *[]modelTicket `json:"tickets"`
	Plan             *modelPlan     `json:"plan"`
}

type modelTicket struct {
	ID           *string  `json:"id"`
	Title        *string  `json:"title"`
	Category     *string  `json:"category"`
	Impact       *string  `json:"impact"`
	Effort       *string  `json:"effort"`
	Risk         *string  `json:"risk"`
	Confidence   *string  `json:"confidence"`
	Why          *string  `json:"why"`
	HowTo        []string `json:"how_to"`
	EvidenceRefs []string `json:"evidence_refs"`
	Validation   []string `json:"validation"`
	Owner        *string  `json:"owner"`
	Notes        *string  `json:"notes"`
	QuickWin     *bool    `json:"quick_win"`
	Criteria     []string `json:"criteria"`
	RuleID       *string  `json:"rule_id"`
}

type modelPlan struct {
	QuickWins []string `json:"quick_wins"`
	NextSteps []string `json:"next_steps"`
}

// Approved is model output that passed the gate.
type Approved struct {
	Tickets          []audit.Ticket
	ExecutiveSummary string
	Reasoning        string
}

// Gate validates model responses against the candidate and evidence catalogs
// that were supplied in the prompt.
type Gate struct {
	candidates map[string]audit.Ticket
	evidence   map[string]bool
	mode       audit.Mode
	urlContext string
}

// NewGate builds a gate for one synthesis call.
func NewGate(candidates []audit.Ticket, items []audit.Evidence, mode audit.Mode, urlContext string) *Gate {
	g := &Gate{
		candidates: make(map[string]audit.Ticket, len(candidates)),
		evidence:   make(map[string]bool, len(items)),
		mode:       mode,
		urlContext: urlContext,
	}
	for _, c := range candidates {
		g.candidates[c.ID] = c
	}
	for _, e := range items {
		g.evidence[e.ID] = true
	}
	return g
}

// Validate decodes raw and applies every check. Any problem rejects the whole
// response; nothing is silently dropped.
func (g *Gate) Validate(raw json.RawMessage) (Approved, error) {
	var out modelOutput
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return Approved{}, &ValidationError{Problems: []string{"decode: " + err.Error()}}
	}

	var problems []string
	fail := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if out.ExecutiveSummary == nil {
		fail("executive_summary is required")
	}
	if out.Reasoning == nil {
		fail("reasoning is required")
	}
	if out.Tickets == nil {
		fail("tickets is required")
		return Approved{}, &ValidationError{Problems: problems}
	}

	seen := make(map[string]bool)
	approved := Approved{Tickets: make([]audit.Ticket, 0, len(*out.Tickets))}
	for i, mt := range *out.Tickets {
		t, errs := g.ticket(mt)
		for _, e := range errs {
			fail("tickets[%d]: %s", i, e)
		}
		if t.ID != "" {
			if seen[t.ID] {
				fail("tickets[%d]: duplicate id %s", i, t.ID)
			}
			seen[t.ID] = true
		}
		approved.Tickets = append(approved.Tickets, t)
	}
	if out.Plan != nil {
		for _, id := range append(append([]string(nil), out.Plan.QuickWins...), out.Plan.NextSteps...) {
			if !seen[id] {
				fail("plan references unknown ticket %s", id)
			}
		}
	}
	if len(problems) > 0 {
		return Approved{}, &ValidationError{Problems: problems}
	}
	approved.ExecutiveSummary = strings.TrimSpace(*out.ExecutiveSummary)
	approved.Reasoning = strings.TrimSpace(*out.Reasoning)
	return approved, nil
}

func (g *Gate) ticket(mt modelTicket) (audit.Ticket, []string) {
	var errs []string
	str := func(name string, p *string) string {
		if p == nil || (name != "notes" && strings.TrimSpace(*p) == "") {
			errs = append(errs, name+" is required")
			return ""
		}
		return strings.TrimSpace(*p)
	}

	t := audit.Ticket{
		ID:         str("id", mt.ID),
		Mode:       g.mode,
		Title:      str("title", mt.Title),
		Category:   audit.Category(str("category", mt.Category)),
		Impact:     audit.Level(str("impact", mt.Impact)),
		Risk:       audit.Risk(str("risk", mt.Risk)),
		Confidence: audit.Level(str("confidence", mt.Confidence)),
		Why:        str("why", mt.Why),
		Notes:      str("notes", mt.Notes),
		URLContext: g.urlContext,
	}
	if mt.Category != nil && !t.Category.Valid() {
		errs = append(errs, fmt.Sprintf("category %q not allowed", t.Category))
	}
	if mt.Impact != nil && !t.Impact.Valid() {
		errs = append(errs, fmt.Sprintf("impact %q not allowed", t.Impact))
	}
	if mt.Risk != nil && !t.Risk.Valid() {
		errs = append(errs, fmt.Sprintf("risk %q not allowed", t.Risk))
	}
	if mt.Confidence != nil && !t.Confidence.Valid() {
		errs = append(errs, fmt.Sprintf("confidence %q not allowed", t.Confidence))
	}
	if effort := str("effort", mt.Effort); effort != "" {
		e, ok := NormalizeEffort(effort)
		if !ok {
			errs = append(errs, fmt.Sprintf("effort %q not allowed", effort))
		}
		t.Effort = e
	}
	if owner := str("owner", mt.Owner); owner != "" {
		t.Owner = NormalizeOwner(owner)
	}

	if n := len(mt.HowTo); n < MinHowToSteps || n > MaxHowToSteps {
		errs = append(errs, fmt.Sprintf("how_to has %d steps, want %d-%d", n, MinHowToSteps, MaxHowToSteps))
	}
	t.HowTo = mt.HowTo
	if len(mt.EvidenceRefs) == 0 {
		errs = append(errs, "evidence_refs must not be empty")
	}
	for _, ref := range mt.EvidenceRefs {
		if !g.evidence[ref] {
			errs = append(errs, fmt.Sprintf("unknown evidence id %s", ref))
		}
	}
	t.EvidenceRefs = mt.EvidenceRefs
	t.Validation = mt.Validation
	t.Criteria = mt.Criteria

	if t.ID != "" {
		candidate, ok := g.candidates[t.ID]
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown ticket id %s", t.ID))
		} else if candidate.Category != t.Category {
			errs = append(errs, fmt.Sprintf("ticket %s changed category to %s", t.ID, t.Category))
		}
		t.RuleID = candidate.RuleID
	}
	if mt.RuleID != nil && *mt.RuleID != "" && *mt.RuleID != t.RuleID {
		errs = append(errs, fmt.Sprintf("rule_id %s does not match candidate", *mt.RuleID))
	}
	return t, errs
}
