// Package report writes the downloadable files of a finished run.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/storage"
)

// File names under the render-key namespace.
const (
	CSVFile    = "tickets.csv"
	ExportFile = "export.json"
)

// Reporter implements audit.Reporter over a blob store.
type Reporter struct {
	store  storage.BlobStore
	prefix string
	logger *zap.Logger
}

// New wires a blob store. prefix may be empty.
func New(store storage.BlobStore, prefix string, logger *zap.Logger) (*Reporter, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{store: store, prefix: strings.Trim(prefix, "/"), logger: logger.Named("report")}, nil
}

// Generate writes tickets.csv and export.json for run. A run without an
// export cannot be reported.
func (r *Reporter) Generate(ctx context.Context, run audit.Run) (audit.ReportRef, error) {
	if run.Export == nil {
		return audit.ReportRef{}, fmt.Errorf("run %s has no export to report", run.Run)
	}
	if run.Render == "" {
		return audit.ReportRef{}, fmt.Errorf("run %s has no render key", run.Run)
	}

	var csvBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, run.Export.Tickets); err != nil {
		return audit.ReportRef{}, err
	}
	exportJSON, err := json.MarshalIndent(Document(run), "", "  ")
	if err != nil {
		return audit.ReportRef{}, fmt.Errorf("marshal export: %w", err)
	}

	ref := audit.ReportRef{
		CSVPath:    r.objectPath(run.Render, CSVFile),
		ExportPath: r.objectPath(run.Render, ExportFile),
	}
	if ref.CSVURL, err = r.store.PutObject(ctx, ref.CSVPath, "text/csv; charset=utf-8", &csvBuf); err != nil {
		return audit.ReportRef{}, fmt.Errorf("store %s: %w", CSVFile, err)
	}
	if ref.ExportURL, err = r.store.PutObject(ctx, ref.ExportPath, "application/json", bytes.NewReader(exportJSON)); err != nil {
		return audit.ReportRef{}, fmt.Errorf("store %s: %w", ExportFile, err)
	}
	r.logger.Debug("report written",
		zap.String("render_key", run.Render),
		zap.Int("tickets", len(run.Export.Tickets)),
	)
	return ref, nil
}

func (r *Reporter) objectPath(renderKey, name string) string {
	if r.prefix == "" {
		return path.Join(renderKey, name)
	}
	return path.Join(r.prefix, renderKey, name)
}

// ExportDocument is the JSON report layout.
type ExportDocument struct {
	audit.Keys
	URL           string        `json:"url"`
	NormalizedURL string        `json:"normalized_url"`
	Mode          audit.Mode    `json:"mode"`
	Locale        string        `json:"locale"`
	Status        audit.Status  `json:"status"`
	Errors        []audit.Error `json:"errors"`
	*audit.Export
}

// Document flattens a run into its report layout.
func Document(run audit.Run) ExportDocument {
	errs := run.Errors
	if errs == nil {
		errs = []audit.Error{}
	}
	return ExportDocument{
		Keys:          run.Keys,
		URL:           run.URL,
		NormalizedURL: run.NormalizedURL,
		Mode:          run.Mode,
		Locale:        run.Locale,
		Status:        run.Status,
		Errors:        errs,
		Export:        run.Export,
	}
}
