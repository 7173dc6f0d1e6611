// Package auto captures with a plain HTTP fetch first and falls back to the
// headless browser when the page needs client-side rendering.
package auto

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Adapter implements audit.CaptureAdapter over a probe and a browser adapter.
type Adapter struct {
	probe    audit.CaptureAdapter
	browser  audit.CaptureAdapter
	detector *Detector
	logger   *zap.Logger
}

// New wires the probe and browser adapters. A nil detector uses defaults.
func New(probe, browser audit.CaptureAdapter, detector *Detector, logger *zap.Logger) (*Adapter, error) {
	if probe == nil {
		return nil, fmt.Errorf("probe adapter is required")
	}
	if browser == nil {
		return nil, fmt.Errorf("browser adapter is required")
	}
	if detector == nil {
		detector = NewDetector(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{probe: probe, browser: browser, detector: detector, logger: logger.Named("auto_capture")}, nil
}

// Capture probes url and promotes to the browser when the probe fails or
// returns a shell page. Probe artifacts carry no screenshot.
func (a *Adapter) Capture(
	ctx context.Context,
	url string,
	viewport audit.Viewport,
	opts audit.CaptureOptions,
) (audit.Artifact, error) {
	art, err := a.probe.Capture(ctx, url, viewport, opts)
	switch {
	case err != nil:
		a.logger.Debug("probe failed, promoting to browser",
			zap.String("url", url),
			zap.String("viewport", string(viewport)),
			zap.Error(err),
		)
	case a.detector.NeedsBrowser(art):
		a.logger.Debug("shell page detected, promoting to browser",
			zap.String("url", url),
			zap.String("viewport", string(viewport)),
			zap.Int("bytes", len(art.Markup)),
		)
	default:
		return art, nil
	}
	if ctx.Err() != nil {
		return audit.Artifact{}, fmt.Errorf("capture canceled before promotion: %w", ctx.Err())
	}
	return a.browser.Capture(ctx, url, viewport, opts)
}
