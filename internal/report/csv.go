package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Columns is the fixed CSV header. The order is part of the export contract.
var Columns = []string{
	"ticket_id",
	"mode",
	"title",
	"impact",
	"effort",
	"risk",
	"confidence",
	"category",
	"why",
	"evidence_refs",
	"how_to",
	"validation",
	"quick_win",
	"owner",
	"url_context",
}

const listSeparator = "|"

// WriteCSV writes the header and one row per ticket in the given order.
func WriteCSV(w io.Writer, tickets []audit.Ticket) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range tickets {
		if err := cw.Write(Row(t)); err != nil {
			return fmt.Errorf("write csv row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Row renders one ticket in Columns order.
func Row(t audit.Ticket) []string {
	return []string{
		t.ID,
		string(t.Mode),
		t.Title,
		string(t.Impact),
		string(t.Effort),
		string(t.Risk),
		string(t.Confidence),
		string(t.Category),
		t.Why,
		strings.Join(t.EvidenceRefs, listSeparator),
		strings.Join(t.HowTo, listSeparator),
		strings.Join(t.Validation, listSeparator),
		strconv.FormatBool(t.QuickWin),
		string(t.Owner),
		t.URLContext,
	}
}
