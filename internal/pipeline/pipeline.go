// Package pipeline runs one audit end to end: keys, cache check, capture,
// extraction, artifact upload, synthesis, persistence and reporting.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/capture"
	"github.com/JakeFAU/pdp-auditor/internal/keys"
	"github.com/JakeFAU/pdp-auditor/internal/logging"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
	"github.com/JakeFAU/pdp-auditor/internal/progress"
	"github.com/JakeFAU/pdp-auditor/internal/synthesis"
)

const (
	tracerName               = "github.com/JakeFAU/pdp-auditor/internal/pipeline"
	defaultLocale            = "en"
	defaultUploadConcurrency = 4
)

// Capturer captures both viewports of one page.
type Capturer interface {
	CaptureBoth(ctx context.Context, url string, opts capture.Options) capture.Set
}

// Extractor turns markup into facts.
type Extractor interface {
	Extract(markup []byte) audit.FactRecord
}

// Synthesizer produces the approved ticket set.
type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesis.Input) synthesis.Output
}

// Config tunes a Pipeline.
type Config struct {
	Versions       keys.Versions
	DefaultLocale  string
	CaptureTimeout time.Duration
	BlockResources bool
	// UploadConcurrency bounds parallel artifact uploads.
	UploadConcurrency int
	// OverwriteArtifacts rewrites blobs that already exist under the
	// snapshot namespace instead of reusing them.
	OverwriteArtifacts bool
	// SkipCache forces a fresh run even when an ok run is stored.
	SkipCache bool
	// Topic receives a Notice after every run. Empty disables publishing.
	Topic string
}

// Deps are the collaborators of a Pipeline. Reporter, Publisher, Hasher,
// Clock, Progress and TracerProvider are optional.
type Deps struct {
	Capturer       Capturer
	Extractor      Extractor
	Uploader       audit.ArtifactUploader
	Synthesizer    Synthesizer
	Store          audit.RecordStore
	Reporter       audit.Reporter
	Publisher      audit.Publisher
	Hasher         audit.Hasher
	Clock          audit.Clock
	Progress       progress.Emitter
	TracerProvider trace.TracerProvider
}

// Pipeline executes audits. A Pipeline holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
	logger *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New validates deps and builds a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Capturer == nil:
		return nil, fmt.Errorf("capturer is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Uploader == nil:
		return nil, fmt.Errorf("uploader is required")
	case deps.Synthesizer == nil:
		return nil, fmt.Errorf("synthesizer is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("record store is required")
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = otel.GetTracerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Versions == (keys.Versions{}) {
		cfg.Versions = keys.DefaultVersions()
	}
	if strings.TrimSpace(cfg.DefaultLocale) == "" {
		cfg.DefaultLocale = defaultLocale
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = capture.DefaultTimeout
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = defaultUploadConcurrency
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		tracer: deps.TracerProvider.Tracer(tracerName),
		logger: logger.Named("pipeline"),
	}, nil
}

// Keys derives the key chain for req without running anything.
func (p *Pipeline) Keys(req audit.Request) (audit.Keys, error) {
	req = p.withDefaults(req)
	if strings.TrimSpace(req.URL) == "" {
		return audit.Keys{}, fmt.Errorf("url is required")
	}
	if !req.Mode.Valid() {
		return audit.Keys{}, fmt.Errorf("unknown mode %q", req.Mode)
	}
	return keys.NewChain(keys.ChainInput{
		Mode:       req.Mode,
		URLs:       []string{req.URL},
		Locale:     req.Locale,
		Viewports:  req.Viewports,
		CopyReady:  req.CopyReady,
		WhiteLabel: req.WhiteLabel,
	}, p.cfg.Versions)
}

// Run executes one audit. It never returns an error: every failure is
// recorded in the run's error list and reflected in its status.
func (p *Pipeline) Run(ctx context.Context, req audit.Request) audit.Run {
	req = p.withDefaults(req)
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("audit.url", req.URL),
		attribute.String("audit.mode", string(req.Mode)),
	))
	defer span.End()

	st := &runState{
		req: req,
		run: audit.Run{
			URL:       req.URL,
			Mode:      req.Mode,
			Locale:    req.Locale,
			Viewports: req.Viewports,
			State:     audit.StatePending,
			Errors:    []audit.Error{},
			StartedAt: p.deps.Clock.Now(),
		},
	}
	defer st.release()

	chain, err := p.Keys(req)
	if err != nil {
		p.record(st, "keys", "invalid_request", err.Error())
		return p.finish(ctx, span, st, audit.StatusFailed)
	}
	st.run.Keys = chain
	st.run.NormalizedURL = keys.Normalize(req.URL)
	span.SetAttributes(attribute.String("audit.run_key", chain.Run))

	logging.ForRun(p.logger, chain.Run, chain.Audit).Info("run started", zap.String("url", req.URL))
	p.emit(st, progress.Event{Stage: progress.StageRunStart})

	if p.cacheCheck(ctx, st) {
		if err := p.persistJob(ctx, st, audit.StatusOK); err != nil {
			p.record(st, "persist", "db_error", err.Error())
			return p.finish(ctx, span, st, audit.StatusFailed)
		}
		p.report(ctx, st)
		return p.finish(ctx, span, st, audit.StatusOK)
	}

	p.capture(ctx, st)
	if st.captures.AllFailed() {
		p.persistFailure(ctx, st)
		return p.finish(ctx, span, st, audit.StatusFailed)
	}

	p.extract(ctx, st)
	p.upload(ctx, st)
	p.synthesize(ctx, st)

	status := statusFor(st.run.Errors)
	if err := p.persist(ctx, st, status); err != nil {
		p.record(st, "persist", "db_error", err.Error())
		return p.finish(ctx, span, st, audit.StatusFailed)
	}
	p.report(ctx, st)
	return p.finish(ctx, span, st, status)
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, st *runState, status audit.Status) audit.Run {
	st.run.Status = status
	switch status {
	case audit.StatusOK:
		st.run.State = audit.StateOK
	case audit.StatusDegraded:
		st.run.State = audit.StateDegraded
	default:
		st.run.State = audit.StateFailed
		span.SetStatus(codes.Error, "run failed")
	}
	st.run.FinishedAt = p.deps.Clock.Now()
	span.SetAttributes(
		attribute.String("audit.status", string(status)),
		attribute.Bool("audit.cache_hit", st.run.CacheHit),
		attribute.Int("audit.errors", len(st.run.Errors)),
	)
	metrics.ObserveRun(string(status))
	p.emitFinish(st, status)
	p.notify(ctx, st)

	p.logger.Info("run finished",
		zap.String("run_key", st.run.Run),
		zap.String("status", string(status)),
		zap.Bool("cache_hit", st.run.CacheHit),
		zap.Int("errors", len(st.run.Errors)),
		zap.Duration("elapsed", st.run.FinishedAt.Sub(st.run.StartedAt)),
	)
	return st.run
}

// record appends a taxonomy error to the run.
func (p *Pipeline) record(st *runState, fineStage, code, message string) {
	e := audit.NewError(fineStage, code, message, p.deps.Clock.Now())
	st.run.Errors = append(st.run.Errors, e)
	metrics.ObserveStageError(string(e.Stage))
}

func (p *Pipeline) enter(ctx context.Context, st *runState, state audit.State, name string) (context.Context, trace.Span) {
	st.run.State = state
	p.emit(st, progress.Event{Stage: progress.StageTransition, State: string(state)})
	p.logger.Debug("state transition",
		zap.String("run_key", st.run.Run),
		zap.String("state", string(state)),
	)
	return p.tracer.Start(ctx, "pipeline."+name)
}

func statusFor(errs []audit.Error) audit.Status {
	if len(errs) == 0 {
		return audit.StatusOK
	}
	return audit.StatusDegraded
}

func (p *Pipeline) withDefaults(req audit.Request) audit.Request {
	req.URL = strings.TrimSpace(req.URL)
	if req.Mode == "" {
		req.Mode = audit.ModeSolo
	}
	req.Locale = strings.TrimSpace(req.Locale)
	if req.Locale == "" {
		req.Locale = p.cfg.DefaultLocale
	}
	if len(req.Viewports) == 0 {
		req.Viewports = append([]audit.Viewport(nil), audit.DefaultViewports...)
	}
	return req
}

// targetURL is the address handed to the browser. Unlike the normalized form
// it keeps the query and path case, which some storefronts need.
func targetURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}
