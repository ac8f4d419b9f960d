package handlers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess          = "success"
	outcomeNoCode           = "no_code"
	outcomeInterpreterError = "interpreter_error"
	outcomeTransportError   = "transport_error"
)

// Metrics holds the collectors updated by Stacc. A nil *Metrics records nothing.
type Metrics struct {
	Runs    *prometheus.CounterVec
	Latency prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stacc_runs_total",
				Help: "Triggered messages by outcome.",
			},
			[]string{"outcome"},
		),
		Latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stacc_interpreter_request_duration_seconds",
				Help:    "Duration of calls to the remote interpreter.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.Runs, m.Latency)
	return m
}

func (m *Metrics) run(outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.Latency.Observe(d.Seconds())
}
