package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/queue/memory"
	storememory "github.com/JakeFAU/pdp-auditor/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

// scriptedRunner returns the queued statuses in order, repeating the last.
type scriptedRunner struct {
	mu       sync.Mutex
	statuses []audit.Status
	stage    audit.Stage
	calls    int
	seenURLs []string
}

func (r *scriptedRunner) Run(_ context.Context, req audit.Request) audit.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.calls
	if idx >= len(r.statuses) {
		idx = len(r.statuses) - 1
	}
	r.calls++
	r.seenURLs = append(r.seenURLs, req.URL)
	run := audit.Run{
		Keys:   audit.Keys{Audit: "audit_0123456789abcdef", Run: "run_0123456789abcdef"},
		URL:    req.URL,
		Status: r.statuses[idx],
		Errors: []audit.Error{},
	}
	if run.Status == audit.StatusFailed {
		run.Errors = append(run.Errors, audit.Error{Stage: r.stage, Code: "timeout"})
	}
	return run
}

func (r *scriptedRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testJob() audit.Job {
	return audit.Job{
		AuditKey: "audit_0123456789abcdef",
		Request:  audit.Request{URL: "https://shop.test/p/1", RequestID: "req-9"},
		Attempt:  1,
	}
}

func TestWorkerProcessMarksRunning(t *testing.T) {
	t.Parallel()

	store := storememory.NewRecordStore()
	runner := &scriptedRunner{statuses: []audit.Status{audit.StatusOK}}
	w := New(memory.NewQueue(1), store, runner, fakeClock{now: time.Unix(100, 0).UTC()}, Config{}, zap.NewNop())

	run := w.Process(context.Background(), testJob())
	require.Equal(t, audit.StatusOK, run.Status)
	require.Equal(t, 1, runner.Calls())

	// The fake runner does not persist, so the running mark is what remains.
	job, err := store.GetJob(context.Background(), "audit_0123456789abcdef")
	require.NoError(t, err)
	require.Equal(t, audit.StatusRunning, job.Status)
	require.Equal(t, "req-9", job.RequestID)
	require.Equal(t, time.Unix(100, 0).UTC(), job.UpdatedAt)
}

func TestWorkerRetriesCaptureFailures(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{
		statuses: []audit.Status{audit.StatusFailed, audit.StatusFailed, audit.StatusOK},
		stage:    audit.StageCapture,
	}
	w := New(memory.NewQueue(1), nil, runner, nil, Config{MaxAttempts: 3, RetryBackoff: time.Millisecond}, zap.NewNop())

	run := w.Process(context.Background(), testJob())
	require.Equal(t, audit.StatusOK, run.Status)
	require.Equal(t, 3, runner.Calls())
}

func TestWorkerStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{statuses: []audit.Status{audit.StatusFailed}, stage: audit.StageCapture}
	w := New(memory.NewQueue(1), nil, runner, nil, Config{MaxAttempts: 2}, zap.NewNop())

	run := w.Process(context.Background(), testJob())
	require.Equal(t, audit.StatusFailed, run.Status)
	require.Equal(t, 2, runner.Calls())
}

func TestWorkerDoesNotRetryPersistenceFailures(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{statuses: []audit.Status{audit.StatusFailed}, stage: audit.StageStorage}
	w := New(memory.NewQueue(1), nil, runner, nil, Config{MaxAttempts: 5}, zap.NewNop())

	w.Process(context.Background(), testJob())
	require.Equal(t, 1, runner.Calls())
}

func TestWorkerDefaultsToSingleAttempt(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{statuses: []audit.Status{audit.StatusFailed}, stage: audit.StageCapture}
	w := New(memory.NewQueue(1), nil, runner, nil, Config{}, zap.NewNop())

	w.Process(context.Background(), testJob())
	require.Equal(t, 1, runner.Calls())
}

func TestWorkerWithoutRunnerFailsJob(t *testing.T) {
	t.Parallel()

	store := storememory.NewRecordStore()
	w := New(memory.NewQueue(1), store, nil, nil, Config{}, zap.NewNop())

	run := w.Process(context.Background(), testJob())
	require.Equal(t, audit.StatusFailed, run.Status)
	job, err := store.GetJob(context.Background(), "audit_0123456789abcdef")
	require.NoError(t, err)
	require.Equal(t, audit.StatusFailed, job.Status)
	require.Equal(t, "no pipeline configured", job.ErrorText)
}

func TestWorkerRunConsumesQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(2)
	runner := &scriptedRunner{statuses: []audit.Status{audit.StatusOK}}
	w := New(q, nil, runner, nil, Config{}, zap.NewNop())

	require.NoError(t, q.Enqueue(context.Background(), testJob()))
	second := testJob()
	second.Request.URL = "https://shop.test/p/2"
	require.NoError(t, q.Enqueue(context.Background(), second))
	q.Close()

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
	require.Equal(t, 2, runner.Calls())
	require.Equal(t, []string{"https://shop.test/p/1", "https://shop.test/p/2"}, runner.seenURLs)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{statuses: []audit.Status{audit.StatusOK}}
	w := New(memory.NewQueue(1), nil, runner, nil, Config{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	require.Zero(t, runner.Calls())
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	require.False(t, retryable(audit.Run{}))
	require.True(t, retryable(audit.Run{Errors: []audit.Error{{Stage: audit.StageCapture}}}))
	require.False(t, retryable(audit.Run{Errors: []audit.Error{
		{Stage: audit.StageCapture},
		{Stage: audit.StageStorage},
	}}))
}
