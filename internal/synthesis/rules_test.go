package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

func TestHealthyPageMatchesNoRule(t *testing.T) {
	t.Parallel()
	require.Empty(t, NewRuleStrategy(nil).Candidates(input(healthyFacts())))
}

func TestEachRuleFires(t *testing.T) {
	t.Parallel()
	tests := []struct {
		want   string
		mutate func(f *audit.FactRecord)
	}{
		{"T_solo_offer_clarity_SIG_MISSING_CTA_pdp_01", func(f *audit.FactRecord) { f.Product.HasCTA = false }},
		{"T_solo_accessibility_SIG_IMAGES_MISSING_ALT_pdp_01", func(f *audit.FactRecord) { f.Structural.ImagesWithoutAlt = 2 }},
		{"T_solo_ux_SIG_ATF_OVERLOAD_pdp_01", func(f *audit.FactRecord) { f.Structural.AboveFoldNoise = AboveFoldNoiseThreshold }},
		{"T_solo_trust_SIG_MISSING_TRUST_SIGNALS_pdp_01", func(f *audit.FactRecord) {
			f.Structural.TrustBadgeNearCTA = false
			f.Structural.HasShippingInfo = false
			f.Structural.HasReturnsInfo = false
		}},
		{"T_solo_trust_SIG_MISSING_REVIEWS_pdp_01", func(f *audit.FactRecord) { f.Structural.HasReviews = false }},
		{"T_solo_performance_SIG_POOR_PAINT_TIMING_pdp_01", func(f *audit.FactRecord) {
			slow := 3500.0
			f.Technical.PaintMetricMs = &slow
		}},
		{"T_solo_content_SIG_THIN_DESCRIPTION_pdp_01", func(f *audit.FactRecord) { f.Product.DescriptionLength = 120 }},
		{"T_solo_ux_SIG_COMPLEX_VARIANTS_pdp_01", func(f *audit.FactRecord) { f.Product.VariantComplexity = audit.ComplexityHigh }},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			f := healthyFacts()
			tt.mutate(&f)
			got := NewRuleStrategy(nil).Candidates(input(f))
			require.Len(t, got, 1)
			tk := got[0]
			assert.Equal(t, tt.want, tk.ID)
			assert.Regexp(t, audit.TicketIDPattern, tk.ID)
			assert.Equal(t, []string{mobileShot}, tk.EvidenceRefs)
			assert.GreaterOrEqual(t, len(tk.HowTo), MinHowToSteps)
			assert.LessOrEqual(t, len(tk.HowTo), MaxHowToSteps)
			assert.NotEmpty(t, tk.RuleID)
		})
	}
}

func TestTrustRuleNeedsAllSignalsMissing(t *testing.T) {
	t.Parallel()
	f := healthyFacts()
	f.Structural.TrustBadgeNearCTA = false
	f.Structural.HasShippingInfo = false
	require.Empty(t, NewRuleStrategy(nil).Candidates(input(f)))
}

func TestPaintRuleIgnoresMissingMetric(t *testing.T) {
	t.Parallel()
	f := healthyFacts()
	f.Technical.PaintMetricMs = nil
	require.Empty(t, NewRuleStrategy(nil).Candidates(input(f)))
}

func TestRulesWithoutEvidenceEmitNothing(t *testing.T) {
	t.Parallel()
	f := healthyFacts()
	f.Product.HasCTA = false
	in := input(f)
	in.Evidence = nil
	require.Empty(t, NewRuleStrategy(nil).Candidates(in))
}

func TestRulesPreferScreenshotEvidence(t *testing.T) {
	t.Parallel()
	f := healthyFacts()
	f.Structural.HasReviews = false
	in := input(f)
	in.Evidence = []audit.Evidence{in.Evidence[1], in.Evidence[3], in.Evidence[2]}
	got := NewRuleStrategy(nil).Candidates(in)
	require.Len(t, got, 1)
	require.Equal(t, []string{"E_page_a_desktop_screenshot_above_fold_01"}, got[0].EvidenceRefs)
}

func TestRuleTicketsUseModeScope(t *testing.T) {
	t.Parallel()
	f := healthyFacts()
	f.Structural.HasReviews = false
	in := input(f)
	in.Mode = audit.ModeDuoAB
	got := NewRuleStrategy(nil).Candidates(in)
	require.Len(t, got, 1)
	require.Equal(t, "T_duo_ab_trust_SIG_MISSING_REVIEWS_page_a_01", got[0].ID)
}

func TestIDAllocatorIndexesRepeats(t *testing.T) {
	t.Parallel()
	a := newIDAllocator()
	require.Equal(t, "T_solo_ux_SIG_X_pdp_01", a.next(audit.ModeSolo, audit.CategoryUX, "x", "pdp"))
	require.Equal(t, "T_solo_ux_SIG_X_pdp_02", a.next(audit.ModeSolo, audit.CategoryUX, "x", "pdp"))
	require.Equal(t, "T_solo_ux_SIG_Y_Z_pdp_01", a.next(audit.ModeSolo, audit.CategoryUX, "y-z", "pdp"))
}
