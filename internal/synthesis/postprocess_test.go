package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

func tk(id string, impact audit.Level, conf audit.Level, effort audit.Effort, risk audit.Risk) audit.Ticket {
	return audit.Ticket{
		ID: id, Category: audit.CategoryUX, Impact: impact, Confidence: conf, Effort: effort, Risk: risk,
		EvidenceRefs: []string{mobileShot}, HowTo: []string{"a", "b", "c"},
	}
}

func ids(tickets []audit.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func TestScore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 12, Score(tk("a", audit.LevelHigh, audit.LevelHigh, audit.EffortS, audit.RiskLow)))
	assert.Equal(t, 10, Score(tk("b", audit.LevelHigh, audit.LevelHigh, audit.EffortM, audit.RiskLow)))
	assert.Equal(t, -4, Score(tk("c", audit.LevelLow, audit.LevelLow, audit.EffortL, audit.RiskHigh)))
}

func TestSortTicketsStable(t *testing.T) {
	t.Parallel()
	tickets := []audit.Ticket{
		tk("T_y", audit.LevelMedium, audit.LevelHigh, audit.EffortS, audit.RiskMedium), // 8, impact medium
		tk("T_c", audit.LevelMedium, audit.LevelHigh, audit.EffortS, audit.RiskLow),    // 9
		tk("T_b2", audit.LevelHigh, audit.LevelHigh, audit.EffortM, audit.RiskLow),     // 10
		tk("T_x", audit.LevelHigh, audit.LevelLow, audit.EffortS, audit.RiskLow),       // 8, impact high
		tk("T_b1", audit.LevelHigh, audit.LevelHigh, audit.EffortM, audit.RiskLow),     // 10, id tie-break
		tk("T_a", audit.LevelHigh, audit.LevelHigh, audit.EffortS, audit.RiskLow),      // 12
	}
	SortTicketsStable(tickets)
	want := []string{"T_a", "T_b1", "T_b2", "T_c", "T_x", "T_y"}
	require.Equal(t, want, ids(tickets))

	SortTicketsStable(tickets)
	require.Equal(t, want, ids(tickets))
}

func TestPostProcessGuardrails(t *testing.T) {
	t.Parallel()
	tickets := []audit.Ticket{
		tk("T_l1", audit.LevelHigh, audit.LevelHigh, audit.EffortL, audit.RiskLow),
		tk("T_l2", audit.LevelHigh, audit.LevelHigh, audit.EffortL, audit.RiskLow),
		tk("T_l3", audit.LevelHigh, audit.LevelHigh, audit.EffortL, audit.RiskLow),
		tk("T_low", audit.LevelHigh, audit.LevelLow, audit.EffortS, audit.RiskLow),
		tk("T_qw", audit.LevelHigh, audit.LevelMedium, audit.EffortS, audit.RiskLow),
	}
	promoted, plan := PostProcess(tickets, Guardrails{MaxTickets: 10, MaxLargeEffort: 2})
	require.Equal(t, []string{"T_qw", "T_l1", "T_l2"}, ids(promoted))
	require.Equal(t, []string{"T_qw"}, plan.QuickWins)
	require.Equal(t, []string{"T_l1", "T_l2"}, plan.NextSteps)

	for _, p := range promoted {
		assert.Equal(t, Score(p), p.PriorityScore)
		assert.Equal(t, "R_UX", p.RuleID)
		assert.NotEmpty(t, p.Criteria)
		assert.Equal(t, audit.OwnerCRO, p.Owner)
	}

	capped, _ := PostProcess(tickets, Guardrails{MaxTickets: 1, MaxLargeEffort: -1})
	require.Equal(t, []string{"T_qw"}, ids(capped))
}

func TestPostProcessIsIdempotent(t *testing.T) {
	t.Parallel()
	tickets := []audit.Ticket{
		tk("T_2", audit.LevelMedium, audit.LevelHigh, audit.EffortM, audit.RiskLow),
		tk("T_1", audit.LevelHigh, audit.LevelMedium, audit.EffortS, audit.RiskMedium),
	}
	once, planOnce := PostProcess(tickets, DefaultGuardrails())
	twice, planTwice := PostProcess(once, DefaultGuardrails())
	require.Equal(t, once, twice)
	require.Equal(t, planOnce, planTwice)
}

func TestQuickWin(t *testing.T) {
	t.Parallel()
	assert.True(t, IsQuickWin(tk("a", audit.LevelHigh, audit.LevelMedium, audit.EffortS, audit.RiskHigh)))
	assert.False(t, IsQuickWin(tk("b", audit.LevelHigh, audit.LevelLow, audit.EffortS, audit.RiskLow)))
	assert.False(t, IsQuickWin(tk("c", audit.LevelMedium, audit.LevelHigh, audit.EffortS, audit.RiskLow)))
	assert.False(t, IsQuickWin(tk("d", audit.LevelHigh, audit.LevelHigh, audit.EffortM, audit.RiskLow)))
}

func TestNormalizeOwner(t *testing.T) {
	t.Parallel()
	cases := map[string]audit.Owner{
		"Developer": audit.OwnerDev, "engineering": audit.OwnerDev, " tech ": audit.OwnerDev,
		"content": audit.OwnerCopy, "Copywriter": audit.OwnerCopy,
		"UX": audit.OwnerDesign, "ui": audit.OwnerDesign,
		"marketing": audit.OwnerCRO, "growth": audit.OwnerCRO,
		"merchandising": audit.OwnerMerch, "ops": audit.OwnerMerch,
		"legal": audit.OwnerCRO, "": audit.OwnerCRO,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeOwner(raw), raw)
	}
}

func TestNormalizeEffort(t *testing.T) {
	t.Parallel()
	cases := map[string]audit.Effort{
		"small": audit.EffortS, "Low": audit.EffortS, "s": audit.EffortS,
		"medium": audit.EffortM, "m": audit.EffortM,
		"large": audit.EffortL, "HIGH": audit.EffortL,
	}
	for raw, want := range cases {
		got, ok := NormalizeEffort(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := NormalizeEffort("huge")
	assert.False(t, ok)
}
