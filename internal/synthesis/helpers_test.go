package synthesis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/evidence"
)

func healthyFacts() audit.FactRecord {
	price := 49.0
	fcp := 1200.0
	return audit.FactRecord{
		Product: audit.ProductFacts{
			Title:             "Linen Shirt",
			Price:             &price,
			HasCTA:            true,
			CTAText:           "Add to cart",
			HasDescription:    true,
			DescriptionLength: 420,
			StockStatus:       audit.StockInStock,
			VariantComplexity: audit.ComplexityLow,
		},
		Structural: audit.StructuralFacts{
			ImageCount:        4,
			ImagesWithAlt:     4,
			HasReviews:        true,
			HasShippingInfo:   true,
			HasReturnsInfo:    true,
			TrustBadgeNearCTA: true,
			AboveFoldNoise:    1,
		},
		Technical: audit.TechnicalFacts{PaintMetricMs: &fcp},
	}
}

func catalog() []audit.Evidence {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return evidence.Build([]audit.ArtifactRef{
		{Source: audit.SourcePageA, Viewport: audit.ViewportMobile, Kind: audit.ArtifactScreenshot, CapturedAt: at},
		{Source: audit.SourcePageA, Viewport: audit.ViewportMobile, Kind: audit.ArtifactMarkup, CapturedAt: at},
		{Source: audit.SourcePageA, Viewport: audit.ViewportDesktop, Kind: audit.ArtifactScreenshot, CapturedAt: at},
		{Source: audit.SourcePageA, Viewport: audit.ViewportDesktop, Kind: audit.ArtifactMarkup, CapturedAt: at},
	})
}

const mobileShot = "E_page_a_mobile_screenshot_above_fold_01"

func input(f audit.FactRecord) Input {
	return Input{
		Facts:        f,
		Evidence:     catalog(),
		Locale:       "en-US",
		Mode:         audit.ModeSolo,
		URL:          "https://shop.example/products/linen-shirt",
		Completeness: audit.CompletenessComplete,
	}
}

func modelTicketMap(c audit.Ticket) map[string]any {
	return map[string]any{
		"id":            c.ID,
		"title":         "Page-specific: " + c.Title,
		"category":      string(c.Category),
		"impact":        "high",
		"effort":        "small",
		"risk":          "low",
		"confidence":    "high",
		"why":           "Observed on the captured page.",
		"how_to":        []string{"one", "two", "three"},
		"evidence_refs": c.EvidenceRefs,
		"validation":    []string{"re-run"},
		"owner":         "engineering",
		"notes":         "",
	}
}

func modelResponse(t *testing.T, tickets []map[string]any, mutate func(map[string]any)) json.RawMessage {
	t.Helper()
	ids := []string{}
	for _, tk := range tickets {
		ids = append(ids, tk["id"].(string))
	}
	doc := map[string]any{
		"executive_summary": "Two fixes unlock most of the upside.",
		"reasoning":         "Candidates ranked by observed severity.",
		"tickets":           tickets,
		"plan":              map[string]any{"quick_wins": ids, "next_steps": []string{}},
	}
	if mutate != nil {
		mutate(doc)
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return b
}
