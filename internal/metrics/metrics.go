package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	ExecutionsStarted  *prometheus.CounterVec
	ExecutionsFinished *prometheus.CounterVec
	StepRetries        prometheus.Counter
	ExecutionDuration  prometheus.Histogram
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExecutionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "executions_started_total",
			Help:      "Workflow executions started, by trigger type.",
		}, []string{"trigger"}),
		ExecutionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "executions_finished_total",
			Help:      "Workflow executions finished, by terminal status.",
		}, []string{"status"}),
		StepRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "step_retries_total",
			Help:      "Step execution retry attempts.",
		}),
		ExecutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowline",
			Name:      "execution_duration_seconds",
			Help:      "End-to-end workflow execution duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ExecutionsStarted, m.ExecutionsFinished, m.StepRetries, m.ExecutionDuration)
	}
	return m
}
