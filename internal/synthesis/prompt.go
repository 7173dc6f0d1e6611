package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

const systemPromptTemplate = `You are a senior e-commerce conversion analyst reviewing one product detail page.
You receive extracted page facts, an evidence catalog, and candidate tickets produced by deterministic checks.
Rewrite and prioritize the candidate tickets so they are specific to this page.

Hard rules:
- Only use ticket ids from candidate_tickets. Do not invent tickets. You may omit candidates you judge irrelevant.
- Keep each ticket's category unchanged.
- Cite evidence only by ids listed in evidence_catalog. Every ticket needs at least one evidence id.
- how_to must contain between 3 and 7 concrete steps.
- Allowed values: impact and confidence in [high, medium, low]; effort in [s, m, l]; risk in [low, medium, high]; owner in [cro, copy, design, dev, merch].
- Always include notes, using an empty string when there is nothing to add.
- plan.quick_wins and plan.next_steps may only reference ticket ids you returned.
- Write all prose in the language of locale %q.
- Respond with a single JSON object matching the schema. No markdown.`

// SystemPrompt returns the model instructions for a locale.
func SystemPrompt(locale string) string {
	if strings.TrimSpace(locale) == "" {
		locale = "en"
	}
	return fmt.Sprintf(systemPromptTemplate, locale)
}

type catalogEntry struct {
	ID       string              `json:"id"`
	Type     audit.EvidenceType  `json:"type"`
	Level    audit.EvidenceLevel `json:"level"`
	Source   audit.Source        `json:"source"`
	Viewport audit.Viewport      `json:"viewport"`
}

type promptPayload struct {
	Locale           string           `json:"locale"`
	Mode             audit.Mode       `json:"mode"`
	URL              string           `json:"url"`
	Facts            audit.FactRecord `json:"facts"`
	EvidenceCatalog  []catalogEntry   `json:"evidence_catalog"`
	CandidateTickets []audit.Ticket   `json:"candidate_tickets"`
}

// UserPrompt renders the facts, evidence catalog, and candidates as JSON.
func UserPrompt(in Input, candidates []audit.Ticket) (string, error) {
	payload := promptPayload{
		Locale:           in.Locale,
		Mode:             in.mode(),
		URL:              in.URL,
		Facts:            in.Facts,
		EvidenceCatalog:  make([]catalogEntry, 0, len(in.Evidence)),
		CandidateTickets: candidates,
	}
	payload.Facts.ParseDurationMs = 0
	for _, e := range in.Evidence {
		payload.EvidenceCatalog = append(payload.EvidenceCatalog, catalogEntry{
			ID: e.ID, Type: e.Type, Level: e.Level, Source: e.Source, Viewport: e.Viewport,
		})
	}
	if payload.CandidateTickets == nil {
		payload.CandidateTickets = []audit.Ticket{}
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt payload: %w", err)
	}
	return string(b), nil
}

func enumOf(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func stringList(minItems, maxItems int) map[string]any {
	s := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	if minItems > 0 {
		s["minItems"] = minItems
	}
	if maxItems > 0 {
		s["maxItems"] = maxItems
	}
	return s
}

// OutputSchema is the JSON schema requested from the model.
func OutputSchema() map[string]any {
	categories := make([]string, 0, len(audit.Categories))
	for _, c := range audit.Categories {
		categories = append(categories, string(c))
	}
	ticket := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":            map[string]any{"type": "string"},
			"title":         map[string]any{"type": "string"},
			"category":      enumOf(categories...),
			"impact":        enumOf("high", "medium", "low"),
			"effort":        enumOf("s", "m", "l"),
			"risk":          enumOf("low", "medium", "high"),
			"confidence":    enumOf("high", "medium", "low"),
			"why":           map[string]any{"type": "string"},
			"how_to":        stringList(MinHowToSteps, MaxHowToSteps),
			"evidence_refs": stringList(1, 0),
			"validation":    stringList(0, 0),
			"owner":         enumOf("cro", "copy", "design", "dev", "merch"),
			"notes":         map[string]any{"type": "string"},
			"quick_win":     map[string]any{"type": "boolean"},
			"criteria":      stringList(0, 0),
			"rule_id":       map[string]any{"type": "string"},
		},
		"required": []string{
			"id", "title", "category", "impact", "effort", "risk", "confidence",
			"why", "how_to", "evidence_refs", "validation", "owner", "notes",
		},
		"additionalProperties": false,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"executive_summary": map[string]any{"type": "string"},
			"reasoning":         map[string]any{"type": "string"},
			"tickets":           map[string]any{"type": "array", "items": ticket},
			"plan": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"quick_wins": stringList(0, 0),
					"next_steps": stringList(0, 0),
				},
				"additionalProperties": false,
			},
		},
		"required":             []string{"executive_summary", "reasoning", "tickets", "plan"},
		"additionalProperties": false,
	}
}
