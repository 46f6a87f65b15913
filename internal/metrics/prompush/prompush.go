// Package prompush implements the metrics.Backend contract on top of a
// Prometheus Pushgateway. The reconciliation run is a short-lived batch
// process, so push (not scrape) is the right delivery model.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"integrador/internal/metrics"
)

// Backend pushes run metrics to a Pushgateway under a job grouping.
type Backend struct {
	jobName string
	pusher  *push.Pusher

	stepCounter  *prometheus.CounterVec
	stepDuration *prometheus.SummaryVec
	rowCounter   *prometheus.CounterVec
	batchCounter *prometheus.CounterVec
}

// New constructs a Pushgateway backend. jobName groups this pipeline's series
// on the gateway; gatewayURL is its base URL.
func New(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "integracion"
	}

	reg := prometheus.NewRegistry()
	b := &Backend{
		jobName: jobName,
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integracion_step_total",
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "integracion_step_duration_seconds",
			Help:       "Pipeline step latency in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integracion_rows_total",
			Help: "Row-level counts by kind (enriched, unmatched, upserted, ...).",
		}, []string{"kind"}),
		batchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integracion_batches_total",
			Help: "Batch outcomes (written, skipped_unchanged, failed).",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{b.stepCounter, b.stepDuration, b.rowCounter, b.batchCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}
	b.pusher = push.New(gatewayURL, jobName).Gatherer(reg)
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "integracion_step_total":
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case "integracion_rows_total":
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)
	case "integracion_batches_total":
		b.batchCounter.WithLabelValues(labels["outcome"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name == "integracion_step_duration_seconds" {
		b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	}
}

// Flush pushes the registry to the gateway, replacing the job group.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push job=%s: %w", b.jobName, err)
	}
	return nil
}
