// Package metrics is a small, backend-agnostic layer for recording pipeline
// counters and timings. The default backend is a no-op, so instrumentation is
// always safe to call; a concrete backend (Prometheus Pushgateway, see
// prompush) is installed by the CLI when configured.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal contract for metric sinks.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics for push-style backends.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. nil keeps the current one.
func SetBackend(b Backend) {
	if b != nil {
		backend = b
	}
}

// Flush delegates to the current backend.
func Flush() error { return backend.Flush() }

// RecordStep records one pipeline step execution with its outcome and latency.
func RecordStep(step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"step": step, "status": status}
	backend.IncCounter("integracion_step_total", 1, lbls)
	backend.ObserveHistogram("integracion_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows counts row-level outcomes, e.g. "enriched", "upserted",
// "unmatched".
func RecordRows(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("integracion_rows_total", float64(delta), Labels{"kind": kind})
}

// RecordBatch counts batch-level outcomes: "written", "skipped_unchanged",
// "failed".
func RecordBatch(outcome string) {
	backend.IncCounter("integracion_batches_total", 1, Labels{"outcome": outcome})
}
