package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/storage/memory"
)

func sampleTicket() audit.Ticket {
	return audit.Ticket{
		ID:           "T_solo_ux_SIG_MISSING_CTA_pdp_01",
		Mode:         audit.ModeSolo,
		Title:        `Add a visible "Add to cart" button`,
		Category:     audit.CategoryUX,
		Impact:       audit.LevelHigh,
		Effort:       audit.EffortS,
		Risk:         audit.RiskLow,
		Confidence:   audit.LevelMedium,
		Why:          "Shoppers cannot buy, at all.",
		HowTo:        []string{"Add button", "Wire to cart", "Test on mobile"},
		EvidenceRefs: []string{"E_page_a_mobile_screenshot_above_fold_01", "E_page_a_mobile_detection_dom_snapshot_01"},
		Validation:   []string{"CTA visible above fold"},
		QuickWin:     true,
		Owner:        audit.OwnerDev,
		URLContext:   "https://shop.test/p/1",
	}
}

func TestWriteCSVColumnOrder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []audit.Ticket{sampleTicket()}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []string{
		"ticket_id", "mode", "title", "impact", "effort", "risk", "confidence", "category",
		"why", "evidence_refs", "how_to", "validation", "quick_win", "owner", "url_context",
	}, records[0])

	row := records[1]
	require.Equal(t, "T_solo_ux_SIG_MISSING_CTA_pdp_01", row[0])
	require.Equal(t, `Add a visible "Add to cart" button`, row[2])
	require.Equal(t, "Shoppers cannot buy, at all.", row[8])
	require.Equal(t, "E_page_a_mobile_screenshot_above_fold_01|E_page_a_mobile_detection_dom_snapshot_01", row[9])
	require.Equal(t, "Add button|Wire to cart|Test on mobile", row[10])
	require.Equal(t, "true", row[12])
	require.Equal(t, "dev", row[13])
}

func TestWriteCSVEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	require.Equal(t, strings.Join(Columns, ",")+"\n", buf.String())
}

func TestReporterGenerate(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	r, err := New(blobs, "reports", nil)
	require.NoError(t, err)

	run := audit.Run{
		Keys:   audit.Keys{Run: "run_0123456789abcdef", Render: "render_0123456789abcdef"},
		URL:    "https://shop.test/p/1",
		Mode:   audit.ModeSolo,
		Status: audit.StatusOK,
		Export: &audit.Export{
			Tickets:         []audit.Ticket{sampleTicket()},
			SynthesisSource: audit.SourceRules,
		},
	}
	ref, err := r.Generate(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, "reports/render_0123456789abcdef/tickets.csv", ref.CSVPath)
	require.Equal(t, "memory://reports/render_0123456789abcdef/export.json", ref.ExportURL)

	csvData, ok := blobs.Object(ref.CSVPath)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(string(csvData), "ticket_id,mode,title"))

	exportData, ok := blobs.Object(ref.ExportPath)
	require.True(t, ok)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(exportData, &doc))
	require.Equal(t, "run_0123456789abcdef", doc["run_key"])
	require.Equal(t, "ok", doc["status"])
	require.Equal(t, "rules", doc["synthesis_source"])
	require.Len(t, doc["tickets"], 1)
	require.Empty(t, doc["errors"])
}

func TestReporterGenerateRequiresExport(t *testing.T) {
	t.Parallel()

	r, err := New(memory.NewBlobStore(), "", nil)
	require.NoError(t, err)
	_, err = r.Generate(context.Background(), audit.Run{Keys: audit.Keys{Render: "render_x"}})
	require.ErrorContains(t, err, "no export")

	_, err = r.Generate(context.Background(), audit.Run{Export: &audit.Export{}})
	require.ErrorContains(t, err, "no render key")

	_, err = New(nil, "", nil)
	require.Error(t, err)
}
