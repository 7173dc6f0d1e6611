// Package progress carries run lifecycle events from the pipeline to
// pluggable sinks. Emitters never block: events are buffered, batched on a
// background goroutine and fanned out to sinks such as structured logs or
// Prometheus collectors.
package progress
