package synthesis

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

func gateFixture(t *testing.T) (*Gate, []audit.Ticket) {
	t.Helper()
	f := healthyFacts()
	f.Product.HasCTA = false
	f.Structural.HasReviews = false
	in := input(f)
	candidates := NewRuleStrategy(nil).Candidates(in)
	require.Len(t, candidates, 2)
	return NewGate(candidates, in.Evidence, in.Mode, in.URL), candidates
}

func TestGateAcceptsValidOutput(t *testing.T) {
	t.Parallel()
	g, candidates := gateFixture(t)
	raw := modelResponse(t, []map[string]any{modelTicketMap(candidates[1]), modelTicketMap(candidates[0])}, nil)

	approved, err := g.Validate(raw)
	require.NoError(t, err)
	require.Len(t, approved.Tickets, 2)
	assert.Equal(t, "Two fixes unlock most of the upside.", approved.ExecutiveSummary)

	first := approved.Tickets[0]
	assert.Equal(t, candidates[1].ID, first.ID)
	assert.Equal(t, audit.EffortS, first.Effort)
	assert.Equal(t, audit.OwnerDev, first.Owner)
	assert.Equal(t, candidates[1].RuleID, first.RuleID)
	assert.Equal(t, audit.ModeSolo, first.Mode)
	assert.Equal(t, "https://shop.example/products/linen-shirt", first.URLContext)
}

func TestGateAcceptsEmptyTicketList(t *testing.T) {
	t.Parallel()
	g, _ := gateFixture(t)
	approved, err := g.Validate(modelResponse(t, []map[string]any{}, nil))
	require.NoError(t, err)
	require.Empty(t, approved.Tickets)
}

func TestGateRejectsInvalidOutput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		ticket func(m map[string]any)
		doc    func(m map[string]any)
		want   string
	}{
		{name: "unknown ticket id", ticket: func(m map[string]any) { m["id"] = "T_solo_ux_SIG_INVENTED_pdp_01" }, want: "unknown ticket id"},
		{name: "unknown evidence id", ticket: func(m map[string]any) { m["evidence_refs"] = []string{"E_page_a_mobile_screenshot_ghost_01"} }, want: "unknown evidence id"},
		{name: "evidence anchor instead of id", ticket: func(m map[string]any) { m["evidence_refs"] = []string{"#evidence-" + mobileShot} }, want: "unknown evidence id"},
		{name: "empty evidence refs", ticket: func(m map[string]any) { m["evidence_refs"] = []string{} }, want: "evidence_refs must not be empty"},
		{name: "too few steps", ticket: func(m map[string]any) { m["how_to"] = []string{"a", "b"} }, want: "how_to has 2 steps"},
		{name: "too many steps", ticket: func(m map[string]any) { m["how_to"] = []string{"1", "2", "3", "4", "5", "6", "7", "8"} }, want: "how_to has 8 steps"},
		{name: "missing notes", ticket: func(m map[string]any) { delete(m, "notes") }, want: "notes is required"},
		{name: "missing title", ticket: func(m map[string]any) { delete(m, "title") }, want: "title is required"},
		{name: "bad impact", ticket: func(m map[string]any) { m["impact"] = "critical" }, want: `impact "critical" not allowed`},
		{name: "bad effort", ticket: func(m map[string]any) { m["effort"] = "huge" }, want: `effort "huge" not allowed`},
		{name: "changed category", ticket: func(m map[string]any) { m["category"] = "media" }, want: "changed category"},
		{name: "unknown ticket field", ticket: func(m map[string]any) { m["severity"] = "p0" }, want: "decode"},
		{name: "missing summary", doc: func(m map[string]any) { delete(m, "executive_summary") }, want: "executive_summary is required"},
		{name: "missing tickets", doc: func(m map[string]any) { delete(m, "tickets") }, want: "tickets is required"},
		{name: "plan references unknown ticket", doc: func(m map[string]any) {
			m["plan"] = map[string]any{"quick_wins": []string{"T_solo_ux_SIG_NOPE_pdp_01"}, "next_steps": []string{}}
		}, want: "plan references unknown ticket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, candidates := gateFixture(t)
			ticket := modelTicketMap(candidates[0])
			if tt.ticket != nil {
				tt.ticket(ticket)
			}
			raw := modelResponse(t, []map[string]any{ticket}, tt.doc)

			_, err := g.Validate(raw)
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestGateRejectsDuplicateTickets(t *testing.T) {
	t.Parallel()
	g, candidates := gateFixture(t)
	ticket := modelTicketMap(candidates[0])
	_, err := g.Validate(modelResponse(t, []map[string]any{ticket, ticket}, nil))
	require.ErrorContains(t, err, "duplicate id")
}

func TestGateRejectsNonJSON(t *testing.T) {
	t.Parallel()
	g, _ := gateFixture(t)
	_, err := g.Validate(json.RawMessage("```json\n{}\n```"))
	require.ErrorContains(t, err, "decode")
}

func FuzzGateNeverApprovesDanglingReferences(f *testing.F) {
	f.Add([]byte(`{"executive_summary":"","reasoning":"","tickets":[],"plan":{"quick_wins":[],"next_steps":[]}}`))
	f.Add([]byte(`{"executive_summary":"x","reasoning":"y","tickets":[{"id":"T_solo_offer_clarity_SIG_MISSING_CTA_pdp_01","title":"t","category":"offer_clarity","impact":"high","effort":"s","risk":"low","confidence":"high","why":"w","how_to":["a","b","c"],"evidence_refs":["E_page_a_mobile_screenshot_above_fold_01"],"validation":[],"owner":"dev","notes":""}],"plan":{"quick_wins":[],"next_steps":[]}}`))
	f.Add([]byte(`{"tickets":[{"id":"T_solo_ux_SIG_FAKE_pdp_01","evidence_refs":["E_fake"]}]}`))
	f.Add([]byte(`not json`))

	f.Fuzz(func(t *testing.T, data []byte) {
		g, _ := gateFixture(t)
		approved, err := g.Validate(data)
		if err != nil {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("unexpected error type %T", err)
			}
			return
		}
		known := map[string]bool{}
		for _, e := range catalog() {
			known[e.ID] = true
		}
		for _, tk := range approved.Tickets {
			if len(tk.EvidenceRefs) == 0 {
				t.Fatalf("approved ticket %s without evidence", tk.ID)
			}
			for _, ref := range tk.EvidenceRefs {
				if !known[ref] {
					t.Fatalf("approved dangling evidence ref %s", ref)
				}
			}
			if !audit.TicketIDPattern.MatchString(tk.ID) {
				t.Fatalf("approved malformed ticket id %s", tk.ID)
			}
			if n := len(tk.HowTo); n < MinHowToSteps || n > MaxHowToSteps {
				t.Fatalf("approved ticket with %d steps", n)
			}
		}
	})
}
