package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/config"
	"github.com/JakeFAU/pdp-auditor/internal/logging"
)

type rootOptions struct {
	configPath string
}

// newRootCmd creates the root command and registers subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "auditor",
		Short: "Evidence-backed product detail page audits.",
		Long: `auditor captures a product detail page on mobile and desktop, extracts
structured facts, and turns them into prioritized, evidence-backed tickets.

Run "auditor serve" for the HTTP service or "auditor run <url>" for a
single audit.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML); env vars use the AUDITOR_ prefix")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Telemetry.ServiceName)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger init: %w", err)
	}
	return cfg, logger, nil
}
