package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/pdp-auditor/internal/progress"
)

// PrometheusSink derives run lifecycle metrics from progress events. It covers
// what the request-path counters in the metrics package do not: in-flight
// runs, end-to-end run time, state transitions and captured bytes.
type PrometheusSink struct {
	runsInFlight   prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	captureBytes   *prometheus.CounterVec
	captureResults *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_runs_in_flight",
			Help: "Runs started but not yet finished.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditor_run_duration_seconds",
			Help:    "Wall time per finished run partitioned by result.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_state_transitions_total",
			Help: "Pipeline state entries partitioned by state.",
		}, []string{"state"}),
		captureBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_capture_bytes_total",
			Help: "Markup bytes captured per viewport.",
		}, []string{"viewport"}),
		captureResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_capture_results_total",
			Help: "Capture completions partitioned by viewport and status class.",
		}, []string{"viewport", "status_class"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsInFlight,
		s.runDuration,
		s.transitions,
		s.captureBytes,
		s.captureResults,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.tracker.start(evt.RunKey)
			s.runsInFlight.Inc()
		case progress.StageTransition:
			s.transitions.WithLabelValues(evt.State).Inc()
		case progress.StageCaptureDone:
			s.captureResults.WithLabelValues(evt.Viewport, string(evt.StatusClass)).Inc()
			if evt.Bytes > 0 {
				s.captureBytes.WithLabelValues(evt.Viewport).Add(float64(evt.Bytes))
			}
		case progress.StageRunDone, progress.StageRunError:
			s.finish(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event) {
	result := evt.Note
	if evt.Stage == progress.StageRunError || result == "" {
		result = "failed"
	}
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunKey) {
		s.runsInFlight.Dec()
	}
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]int
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]int)}
}

// start counts concurrent runs of the same key separately so duplicate
// submissions keep the gauge balanced.
func (t *runTracker) start(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[key]++
}

func (t *runTracker) complete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.running[key]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.running, key)
	} else {
		t.running[key] = n - 1
	}
	return true
}
