// Package dispatcher manages worker fan-out over the audit job queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/worker"
)

// ErrInvalidJob is returned by Enqueue for jobs that cannot be run.
var ErrInvalidJob = errors.New("invalid audit job")

// Dispatcher owns the worker pool for one queue.
type Dispatcher struct {
	queue   audit.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue audit.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts every worker and blocks until all of them return. Workers stop
// when ctx ends or when the queue is closed and drained, so closing the queue
// lets in-flight and buffered audits finish.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Enqueue validates job and hands it to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, job audit.Job) error {
	switch {
	case strings.TrimSpace(job.AuditKey) == "":
		return fmt.Errorf("%w: audit key is required", ErrInvalidJob)
	case strings.TrimSpace(job.Request.URL) == "":
		return fmt.Errorf("%w: url is required", ErrInvalidJob)
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
