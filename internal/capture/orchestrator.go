// Package capture drives a capture adapter across the audit viewports.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
)

// DefaultTimeout bounds a single viewport capture when Options.Timeout is unset.
const DefaultTimeout = 45 * time.Second

var defaultViewports = []audit.Viewport{audit.ViewportMobile, audit.ViewportDesktop}

// Options bounds one CaptureBoth call.
type Options struct {
	Timeout        time.Duration
	BlockResources bool
}

// Result is the outcome of one viewport capture. Exactly one of Artifact or
// Err is meaningful.
type Result struct {
	Viewport audit.Viewport
	Artifact audit.Artifact
	Err      *audit.CaptureError
	Duration time.Duration
}

// OK reports whether the capture produced an artifact.
func (r Result) OK() bool {
	return r.Err == nil
}

// Set joins the mobile and desktop results.
type Set struct {
	Mobile  Result
	Desktop Result
}

// Results returns both results, mobile first.
func (s Set) Results() []Result {
	return []Result{s.Mobile, s.Desktop}
}

// Succeeded returns the results that produced artifacts, mobile first.
func (s Set) Succeeded() []Result {
	var out []Result
	for _, r := range s.Results() {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results that errored, mobile first.
func (s Set) Failed() []Result {
	var out []Result
	for _, r := range s.Results() {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// AllFailed reports whether neither viewport produced an artifact.
func (s Set) AllFailed() bool {
	return !s.Mobile.OK() && !s.Desktop.OK()
}

// Degraded reports whether exactly one viewport failed.
func (s Set) Degraded() bool {
	return s.Mobile.OK() != s.Desktop.OK()
}

// Primary returns the first successful artifact, mobile preferred.
func (s Set) Primary() (audit.Artifact, bool) {
	ok := s.Succeeded()
	if len(ok) == 0 {
		return audit.Artifact{}, false
	}
	return ok[0].Artifact, true
}

// Config tunes the orchestrator.
type Config struct {
	// HostQPS paces captures per host. Zero disables pacing.
	HostQPS   float64
	HostBurst int
}

// Orchestrator runs both viewport captures concurrently.
type Orchestrator struct {
	adapter audit.CaptureAdapter
	limiter *hostLimiter
	logger  *zap.Logger
}

// NewOrchestrator wires an adapter.
func NewOrchestrator(adapter audit.CaptureAdapter, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if adapter == nil {
		return nil, fmt.Errorf("capture adapter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		adapter: adapter,
		limiter: newHostLimiter(cfg.HostQPS, cfg.HostBurst),
		logger:  logger.Named("capture"),
	}, nil
}

// CaptureBoth captures the mobile and desktop viewports concurrently and
// waits for both. It never returns early on the first failure.
func (o *Orchestrator) CaptureBoth(ctx context.Context, url string, opts Options) Set {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	results := make([]Result, len(defaultViewports))

	var wg sync.WaitGroup
	for i, vp := range defaultViewports {
		wg.Add(1)
		go func(i int, vp audit.Viewport) {
			defer wg.Done()
			results[i] = o.captureOne(ctx, url, vp, opts)
		}(i, vp)
	}
	wg.Wait()

	return Set{Mobile: results[0], Desktop: results[1]}
}

func (o *Orchestrator) captureOne(ctx context.Context, url string, vp audit.Viewport, opts Options) Result {
	start := time.Now()
	artifact, err := o.run(ctx, url, vp, opts)
	res := Result{Viewport: vp, Duration: time.Since(start)}

	if err == nil {
		err = StatusError(artifact.StatusCode)
	}
	if err != nil {
		res.Err = Classify(err)
		metrics.ObserveCapture(string(vp), string(res.Err.Type), res.Duration)
		o.logger.Warn("capture failed",
			zap.String("viewport", string(vp)),
			zap.String("type", string(res.Err.Type)),
			zap.Error(res.Err),
		)
		return res
	}

	if artifact.Viewport == "" {
		artifact.Viewport = vp
	}
	if artifact.URL == "" {
		artifact.URL = url
	}
	res.Artifact = artifact
	metrics.ObserveCapture(string(vp), "ok", res.Duration)
	o.logger.Debug("capture complete",
		zap.String("viewport", string(vp)),
		zap.Int("status", artifact.StatusCode),
		zap.Int("markup_bytes", len(artifact.Markup)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

type captureReply struct {
	artifact audit.Artifact
	err      error
}

// run calls the adapter under a hard deadline. The adapter goroutine is
// abandoned, not awaited, if it ignores cancellation.
func (o *Orchestrator) run(ctx context.Context, url string, vp audit.Viewport, opts Options) (audit.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := o.limiter.Wait(ctx, url); err != nil {
		return audit.Artifact{}, err
	}

	done := make(chan captureReply, 1)
	go func() {
		a, err := o.adapter.Capture(ctx, url, vp, audit.CaptureOptions{
			Timeout:        opts.Timeout,
			BlockResources: opts.BlockResources,
		})
		done <- captureReply{artifact: a, err: err}
	}()

	select {
	case reply := <-done:
		return reply.artifact, reply.err
	case <-ctx.Done():
		return audit.Artifact{}, &audit.CaptureError{
			Type:    audit.CaptureTimeout,
			Message: fmt.Sprintf("%s capture exceeded %s", vp, opts.Timeout),
			Err:     ctx.Err(),
		}
	}
}
