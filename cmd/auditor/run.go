package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/pipeline"
	"github.com/JakeFAU/pdp-auditor/internal/report"
	"github.com/JakeFAU/pdp-auditor/internal/server"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

type runOptions struct {
	mode       string
	locale     string
	viewports  []string
	copyReady  bool
	whiteLabel bool
	skipCache  bool
	dryRun     bool
	format     string
	output     string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Audit one product page and print the result",
		Example: `  auditor run https://shop.example.com/p/trail-runner
  auditor run --format csv -o tickets.csv shop.example.com/p/trail-runner`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(args[0])
			if err != nil {
				return err
			}
			if opts.format != formatJSON && opts.format != formatCSV {
				return fmt.Errorf("unknown format %q (supported: json, csv)", opts.format)
			}

			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			if opts.skipCache {
				cfg.Audit.SkipCache = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := server.Build(ctx, cfg, logger, server.Options{DryRun: opts.dryRun})
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer func() {
				if cerr := app.Close(context.Background()); cerr != nil {
					logger.Warn("close application failed", zap.Error(cerr))
				}
			}()

			run := app.Pipeline().Run(ctx, req)

			out := cmd.OutOrStdout()
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close() //nolint:errcheck // read-only after write
				out = f
			}
			if err := writeResult(out, run, opts.format); err != nil {
				return err
			}
			if run.Status == audit.StatusFailed {
				return fmt.Errorf("audit failed: %s", pipeline.ErrorText(run.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", string(audit.ModeSolo), "audit mode: solo, duo_ab, duo_before_after")
	cmd.Flags().StringVar(&opts.locale, "locale", "", "page locale (default from config)")
	cmd.Flags().StringSliceVar(&opts.viewports, "viewport", nil, "viewports to capture (mobile, desktop)")
	cmd.Flags().BoolVar(&opts.copyReady, "copy-ready", false, "request copy-ready output")
	cmd.Flags().BoolVar(&opts.whiteLabel, "white-label", false, "request white-label output")
	cmd.Flags().BoolVar(&opts.skipCache, "skip-cache", false, "ignore a stored ok run and audit again")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "discard artifacts and reports instead of storing them")
	cmd.Flags().StringVar(&opts.format, "format", formatJSON, "output format: json or csv")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func (o *runOptions) request(rawURL string) (audit.Request, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return audit.Request{}, errors.New("url required")
	}
	mode := audit.Mode(o.mode)
	if !mode.Valid() {
		return audit.Request{}, fmt.Errorf("unknown mode %q", o.mode)
	}
	var viewports []audit.Viewport
	for _, name := range o.viewports {
		vp := audit.Viewport(strings.ToLower(strings.TrimSpace(name)))
		if vp != audit.ViewportMobile && vp != audit.ViewportDesktop {
			return audit.Request{}, fmt.Errorf("unknown viewport %q", name)
		}
		viewports = append(viewports, vp)
	}
	return audit.Request{
		URL:        rawURL,
		Mode:       mode,
		Locale:     o.locale,
		Viewports:  viewports,
		CopyReady:  o.copyReady,
		WhiteLabel: o.whiteLabel,
	}, nil
}

func writeResult(w io.Writer, run audit.Run, format string) error {
	if format == formatCSV {
		if run.Export == nil {
			return errors.New("run has no export to write as csv")
		}
		if err := report.WriteCSV(w, run.Export.Tickets); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	return nil
}
