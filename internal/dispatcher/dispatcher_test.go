// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/queue/memory"
	"github.com/JakeFAU/pdp-auditor/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), validJob())
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// TestDispatcherEnqueueRejectsInvalidJobs keeps unrunnable jobs off the queue.
func TestDispatcherEnqueueRejectsInvalidJobs(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	dispatch := New(q, nil)

	noKey := validJob()
	noKey.AuditKey = " "
	if err := dispatch.Enqueue(context.Background(), noKey); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for missing key, got %v", err)
	}
	noURL := validJob()
	noURL.Request.URL = ""
	if err := dispatch.Enqueue(context.Background(), noURL); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob for missing url, got %v", err)
	}
}

// TestDispatcherRunDrainsClosedQueue verifies buffered jobs finish after Close
// and Run returns without a cancel.
func TestDispatcherRunDrainsClosedQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	runner := &countingRunner{}
	w := worker.New(q, nil, runner, nil, worker.Config{}, zap.NewNop())
	dispatch := New(q, []*worker.Worker{w})
	if dispatch.Size() != 1 {
		t.Fatalf("expected one worker, got %d", dispatch.Size())
	}

	for i := 0; i < 3; i++ {
		job := validJob()
		job.AuditKey = fmt.Sprintf("audit_%016d", i)
		if err := dispatch.Enqueue(context.Background(), job); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	q.Close()

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after queue drained")
	}
	if got := runner.Calls(); got != 3 {
		t.Fatalf("expected 3 runs, got %d", got)
	}
}

func validJob() audit.Job {
	return audit.Job{
		AuditKey: "audit_0123456789abcdef",
		Request:  audit.Request{URL: "https://shop.example.com/p/1"},
		Attempt:  1,
	}
}

type countingRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRunner) Run(_ context.Context, req audit.Request) audit.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return audit.Run{URL: req.URL, Status: audit.StatusOK, State: audit.StateOK}
}

func (r *countingRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ audit.Job) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (audit.Job, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return audit.Job{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, audit.Job) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (audit.Job, error) {
	return audit.Job{}, nil
}
