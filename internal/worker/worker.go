// Package worker consumes audit jobs and runs them through the pipeline.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/metrics"
)

// Runner executes one audit.
type Runner interface {
	Run(ctx context.Context, req audit.Request) audit.Run
}

// Config controls Worker behavior.
type Config struct {
	// MaxAttempts bounds how often a failed run is tried. Values below one
	// mean a single attempt.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number between tries.
	RetryBackoff time.Duration
	// RunTimeout bounds one pipeline run. Zero means no bound.
	RunTimeout time.Duration
}

// Worker consumes queue items and executes the audit pipeline.
type Worker struct {
	queue  audit.Queue
	store  audit.RecordStore
	runner Runner
	clock  audit.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker. store may be nil, in which case the job record is
// only written by the pipeline itself.
func New(
	queue audit.Queue,
	store audit.RecordStore,
	runner Runner,
	clock audit.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		queue:  queue,
		store:  store,
		runner: runner,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, audit.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("audit_key", job.AuditKey))
		w.Process(ctx, job)
	}
}

// Process runs one job, retrying failed runs while attempts remain.
func (w *Worker) Process(ctx context.Context, job audit.Job) audit.Run {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	if w.runner == nil {
		w.logger.Error("no pipeline configured", zap.String("audit_key", job.AuditKey))
		w.markJob(ctx, job, audit.StatusFailed, "no pipeline configured")
		return audit.Run{Status: audit.StatusFailed}
	}
	w.markJob(ctx, job, audit.StatusRunning, "")

	var run audit.Run
	for attempt := max(job.Attempt, 1); ; attempt++ {
		run = w.runOnce(ctx, job.Request)
		if run.Status != audit.StatusFailed || attempt >= w.cfg.MaxAttempts || !retryable(run) {
			break
		}
		wait := w.cfg.RetryBackoff * time.Duration(attempt)
		w.logger.Warn("run failed, retrying",
			zap.String("audit_key", job.AuditKey),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
		)
		if !sleep(ctx, wait) {
			break
		}
	}

	if run.Audit != "" && run.Audit != job.AuditKey {
		w.logger.Warn("audit key drift between submit and run",
			zap.String("submitted", job.AuditKey),
			zap.String("derived", run.Audit),
		)
	}
	w.logger.Info("job finished",
		zap.String("audit_key", job.AuditKey),
		zap.String("run_key", run.Run),
		zap.String("status", string(run.Status)),
	)
	return run
}

func (w *Worker) runOnce(ctx context.Context, req audit.Request) audit.Run {
	if w.cfg.RunTimeout <= 0 {
		return w.runner.Run(ctx, req)
	}
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()
	return w.runner.Run(runCtx, req)
}

func (w *Worker) markJob(ctx context.Context, job audit.Job, status audit.Status, errText string) {
	if w.store == nil || job.AuditKey == "" {
		return
	}
	var now time.Time
	if w.clock != nil {
		now = w.clock.Now()
	} else {
		now = time.Now().UTC()
	}
	if err := w.store.UpsertJob(ctx, audit.JobRecord{
		Key:        job.AuditKey,
		URL:        job.Request.URL,
		Status:     status,
		CopyReady:  job.Request.CopyReady,
		WhiteLabel: job.Request.WhiteLabel,
		RequestID:  job.Request.RequestID,
		ErrorText:  errText,
		UpdatedAt:  now,
	}); err != nil {
		w.logger.Error("update job status failed", zap.String("audit_key", job.AuditKey), zap.Error(err))
	}
}

// retryable reports whether every recorded error came from capture, the only
// stage whose failures are plausibly transient.
func retryable(run audit.Run) bool {
	if len(run.Errors) == 0 {
		return false
	}
	for _, e := range run.Errors {
		if e.Stage != audit.StageCapture {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
