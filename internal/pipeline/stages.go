package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/capture"
	"github.com/JakeFAU/pdp-auditor/internal/evidence"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
	"github.com/JakeFAU/pdp-auditor/internal/synthesis"
)

// runState is the scratch space of one Run.
type runState struct {
	req      audit.Request
	run      audit.Run
	captures capture.Set
	facts    audit.FactRecord
	refs     []audit.ArtifactRef
	sources  []audit.SourceRecord
	evidence []audit.Evidence
	complete audit.Completeness
}

// release drops the ephemeral capture buffers.
func (st *runState) release() {
	st.captures = capture.Set{}
}

func (p *Pipeline) cacheCheck(ctx context.Context, st *runState) bool {
	ctx, span := p.enter(ctx, st, audit.StateCacheCheck, "cache_check")
	defer span.End()

	if p.cfg.SkipCache {
		return false
	}
	rec, err := p.deps.Store.GetRun(ctx, st.run.Run)
	switch {
	case errors.Is(err, audit.ErrNotFound):
		return false
	case err != nil:
		p.logger.Warn("cache lookup failed", zap.String("run_key", st.run.Run), zap.Error(err))
		span.RecordError(err)
		return false
	case rec.Status != audit.StatusOK || rec.Export == nil:
		return false
	}

	st.run.CacheHit = true
	st.run.Export = rec.Export
	span.SetAttributes(attribute.Bool("audit.cache_hit", true))
	metrics.ObserveCacheHit()
	p.logger.Info("cache hit", zap.String("run_key", st.run.Run))
	return true
}

func (p *Pipeline) capture(ctx context.Context, st *runState) {
	ctx, span := p.enter(ctx, st, audit.StateCapturing, "capture")
	defer span.End()

	st.captures = p.deps.Capturer.CaptureBoth(ctx, targetURL(st.req.URL), capture.Options{
		Timeout:        p.cfg.CaptureTimeout,
		BlockResources: p.cfg.BlockResources,
	})
	p.emitCaptures(st)
	for _, r := range st.captures.Failed() {
		p.record(st, "capture_"+string(r.Viewport), string(r.Err.Type), r.Err.Message)
		span.RecordError(r.Err, trace.WithAttributes(attribute.String("audit.viewport", string(r.Viewport))))
	}
	if st.captures.AllFailed() {
		span.SetStatus(codes.Error, "all viewports failed")
	}
}

func (p *Pipeline) extract(ctx context.Context, st *runState) {
	_, span := p.enter(ctx, st, audit.StateExtracting, "extract")
	defer span.End()

	primary, _ := st.captures.Primary()
	if len(primary.Markup) == 0 {
		p.record(st, "extract", "empty_markup", "primary capture returned no markup")
	}
	facts, err := p.safeExtract(primary.Markup)
	if err != nil {
		p.record(st, "extract", "extract_failed", err.Error())
		span.RecordError(err)
	}
	st.facts = facts.WithTiming(primary.Timing)
	span.SetAttributes(attribute.Bool("audit.minimal_facts", st.facts.HasMinimalFacts()))
}

func (p *Pipeline) safeExtract(markup []byte) (rec audit.FactRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = audit.FactRecord{}
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()
	return p.deps.Extractor.Extract(markup), nil
}

type uploadTask struct {
	viewport    audit.Viewport
	kind        audit.ArtifactKind
	data        []byte
	contentType string
	artifact    audit.Artifact

	ref audit.ArtifactRef
	err error
}

func (p *Pipeline) upload(ctx context.Context, st *runState) {
	ctx, span := p.enter(ctx, st, audit.StateExtracting, "upload")
	defer span.End()

	var tasks []*uploadTask
	for _, r := range st.captures.Succeeded() {
		a := r.Artifact
		if len(a.RenderBuffer) > 0 {
			tasks = append(tasks, &uploadTask{
				viewport: r.Viewport, kind: audit.ArtifactScreenshot,
				data: a.RenderBuffer, contentType: "image/png", artifact: a,
			})
		} else {
			p.logger.Debug("no render buffer to upload", zap.String("viewport", string(r.Viewport)))
		}
		if len(a.Markup) > 0 {
			tasks = append(tasks, &uploadTask{
				viewport: r.Viewport, kind: audit.ArtifactMarkup,
				data: a.Markup, contentType: "text/html; charset=utf-8", artifact: a,
			})
		}
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.UploadConcurrency)
	for _, task := range tasks {
		g.Go(func() error {
			task.ref, task.err = p.uploadOne(ctx, st.run.Snapshot, task)
			return nil
		})
	}
	_ = g.Wait()

	urls := make(map[audit.Viewport]map[audit.ArtifactKind]string)
	for _, task := range tasks {
		if task.err != nil {
			code := "upload_failed"
			var se *audit.StorageError
			if errors.As(task.err, &se) && se.Type != "" {
				code = se.Type
			}
			p.record(st, "upload", code, fmt.Sprintf("%s %s: %v", task.viewport, task.kind, task.err))
			span.RecordError(task.err)
			continue
		}
		st.refs = append(st.refs, task.ref)
		if urls[task.viewport] == nil {
			urls[task.viewport] = make(map[audit.ArtifactKind]string)
		}
		urls[task.viewport][task.kind] = locator(task.ref)
	}

	for _, r := range st.captures.Succeeded() {
		st.sources = append(st.sources, audit.SourceRecord{
			SnapshotKey:   st.run.Snapshot,
			Viewport:      r.Viewport,
			FinalURL:      r.Artifact.FinalURL,
			StatusCode:    r.Artifact.StatusCode,
			ScreenshotURL: urls[r.Viewport][audit.ArtifactScreenshot],
			MarkupURL:     urls[r.Viewport][audit.ArtifactMarkup],
			UpdatedAt:     p.deps.Clock.Now(),
		})
	}

	st.evidence = evidence.Build(st.refs)
	st.complete = evidence.Completeness(st.evidence, st.run.Viewports)
	span.SetAttributes(
		attribute.Int("audit.artifacts", len(st.refs)),
		attribute.String("audit.completeness", string(st.complete)),
	)
}

func (p *Pipeline) uploadOne(ctx context.Context, namespace string, task *uploadTask) (audit.ArtifactRef, error) {
	var hash string
	if p.deps.Hasher != nil {
		h, err := p.deps.Hasher.Hash(task.data)
		if err != nil {
			return audit.ArtifactRef{}, fmt.Errorf("hash artifact: %w", err)
		}
		hash = h
	}
	res, err := p.deps.Uploader.Upload(ctx, namespace, task.viewport, task.kind, task.data, audit.UploadOptions{
		Overwrite:     p.cfg.OverwriteArtifacts,
		CheckExisting: !p.cfg.OverwriteArtifacts,
		ContentType:   task.contentType,
	})
	if err != nil {
		return audit.ArtifactRef{}, err
	}
	capturedAt := task.artifact.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = p.deps.Clock.Now()
	}
	return audit.ArtifactRef{
		Source:      audit.SourcePageA,
		Viewport:    task.viewport,
		Kind:        task.kind,
		Path:        res.Path,
		PublicURL:   res.PublicURL,
		Size:        res.Size,
		ContentHash: hash,
		CapturedAt:  capturedAt,
	}, nil
}

func (p *Pipeline) synthesize(ctx context.Context, st *runState) {
	ctx, span := p.enter(ctx, st, audit.StateSynthesizing, "synthesize")
	defer span.End()

	out := p.deps.Synthesizer.Synthesize(ctx, synthesis.Input{
		Facts:        st.facts,
		Evidence:     st.evidence,
		Locale:       st.req.Locale,
		Mode:         st.req.Mode,
		URL:          st.run.NormalizedURL,
		Completeness: st.complete,
	})
	if out.Err != nil {
		code := "model_fallback"
		if errors.Is(out.Err, synthesis.ErrInsufficientEvidence) {
			code = "insufficient_evidence"
		}
		p.record(st, "synthesis", code, out.Err.Error())
		span.RecordError(out.Err)
	}
	facts := st.facts
	st.run.Export = &audit.Export{
		Tickets:          out.Tickets,
		Evidence:         out.Evidence,
		ExecutiveSummary: out.ExecutiveSummary,
		Reasoning:        out.Reasoning,
		Plan:             out.Plan,
		Completeness:     st.complete,
		SynthesisSource:  out.Source,
		Facts:            &facts,
	}
	if st.run.Export.Evidence == nil {
		st.run.Export.Evidence = []audit.Evidence{}
	}
	span.SetAttributes(
		attribute.String("audit.synthesis_source", string(out.Source)),
		attribute.Int("audit.tickets", len(out.Tickets)),
	)
}

// persist upserts every record of a completed run. Any failure is fatal.
func (p *Pipeline) persist(ctx context.Context, st *runState, status audit.Status) error {
	ctx, span := p.enter(ctx, st, audit.StatePersisting, "persist")
	defer span.End()

	now := p.deps.Clock.Now()
	if err := p.deps.Store.UpsertProduct(ctx, audit.ProductRecord{
		Key:           st.run.Product,
		NormalizedURL: st.run.NormalizedURL,
		Mode:          st.run.Mode,
		UpdatedAt:     now,
	}); err != nil {
		return p.spanErr(span, fmt.Errorf("upsert product: %w", err))
	}
	if err := p.deps.Store.UpsertSnapshot(ctx, audit.SnapshotRecord{
		Key:          st.run.Snapshot,
		ProductKey:   st.run.Product,
		Locale:       st.run.Locale,
		Viewports:    st.run.Viewports,
		Completeness: st.complete,
		UpdatedAt:    now,
	}); err != nil {
		return p.spanErr(span, fmt.Errorf("upsert snapshot: %w", err))
	}
	for _, src := range st.sources {
		if err := p.deps.Store.UpsertSource(ctx, src); err != nil {
			return p.spanErr(span, fmt.Errorf("upsert source %s: %w", src.Viewport, err))
		}
	}
	if err := p.deps.Store.UpsertRun(ctx, audit.RunRecord{
		Key:         st.run.Run,
		SnapshotKey: st.run.Snapshot,
		Status:      status,
		Errors:      st.run.Errors,
		Export:      st.run.Export,
		UpdatedAt:   now,
	}); err != nil {
		return p.spanErr(span, fmt.Errorf("upsert run: %w", err))
	}
	if err := p.persistJob(ctx, st, status); err != nil {
		return p.spanErr(span, err)
	}
	return nil
}

func (p *Pipeline) persistJob(ctx context.Context, st *runState, status audit.Status) error {
	if err := p.deps.Store.UpsertJob(ctx, audit.JobRecord{
		Key:        st.run.Audit,
		RunKey:     st.run.Run,
		RenderKey:  st.run.Render,
		URL:        st.req.URL,
		Status:     status,
		CopyReady:  st.req.CopyReady,
		WhiteLabel: st.req.WhiteLabel,
		RequestID:  st.req.RequestID,
		ErrorText:  ErrorText(st.run.Errors),
		UpdatedAt:  p.deps.Clock.Now(),
	}); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// persistFailure stores the failed run and job so callers polling the audit
// key see the outcome. Errors are logged only; the run is already failed.
func (p *Pipeline) persistFailure(ctx context.Context, st *runState) {
	now := p.deps.Clock.Now()
	if err := p.deps.Store.UpsertRun(ctx, audit.RunRecord{
		Key:         st.run.Run,
		SnapshotKey: st.run.Snapshot,
		Status:      audit.StatusFailed,
		Errors:      st.run.Errors,
		UpdatedAt:   now,
	}); err != nil {
		p.logger.Warn("persist failed run", zap.String("run_key", st.run.Run), zap.Error(err))
	}
	if err := p.persistJob(ctx, st, audit.StatusFailed); err != nil {
		p.logger.Warn("persist failed job", zap.String("audit_key", st.run.Audit), zap.Error(err))
	}
}

// report hands the run to the reporter. A failure is recorded but leaves the
// run status as persisted.
func (p *Pipeline) report(ctx context.Context, st *runState) {
	if p.deps.Reporter == nil {
		return
	}
	ctx, span := p.enter(ctx, st, audit.StateReporting, "report")
	defer span.End()

	ref, err := p.deps.Reporter.Generate(ctx, st.run)
	if err != nil {
		p.record(st, "report", "report_failed", err.Error())
		span.RecordError(err)
		p.logger.Warn("report generation failed", zap.String("run_key", st.run.Run), zap.Error(err))
		return
	}
	st.run.Report = &ref
}

func (p *Pipeline) spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func locator(ref audit.ArtifactRef) string {
	if ref.PublicURL != "" {
		return ref.PublicURL
	}
	return ref.Path
}

// ErrorText flattens run errors into one "stage/code: message" line each,
// joined by "; ".
func ErrorText(errs []audit.Error) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", e.Stage, e.Code, e.Message))
	}
	return strings.Join(parts, "; ")
}
