package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reasoner's Prometheus collectors.
type Metrics struct {
	Transactions         *prometheus.CounterVec
	Duration             *prometheus.HistogramVec
	FactsInferred        prometheus.Counter
	FactsRetracted       prometheus.Counter
	JustificationsStored prometheus.Counter
	QueueDepth           prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reasoner",
				Name:      "operations_total",
				Help:      "Reasoning operations by kind and status.",
			},
			[]string{"operation", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reasoner",
				Name:      "operation_duration_seconds",
				Help:      "Reasoning operation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		FactsInferred: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reasoner",
				Name:      "facts_inferred_total",
				Help:      "Inferred facts inserted.",
			},
		),
		FactsRetracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reasoner",
				Name:      "facts_retracted_total",
				Help:      "Facts deleted by the reasoner.",
			},
		),
		JustificationsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reasoner",
				Name:      "justifications_stored_total",
				Help:      "Justifications recorded.",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reasoner",
				Name:      "queue_depth",
				Help:      "Transactions waiting for the worker.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.Transactions,
			m.Duration,
			m.FactsInferred,
			m.FactsRetracted,
			m.JustificationsStored,
			m.QueueDepth,
		)
	}
	return m
}

// observe records the outcome of one operation.
func (m *Metrics) observe(op string, seconds float64, d Delta, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Transactions.WithLabelValues(op, status).Inc()
	m.Duration.WithLabelValues(op).Observe(seconds)
	if err != nil {
		return
	}
	m.FactsInferred.Add(float64(len(d.Inferred)))
	m.FactsRetracted.Add(float64(len(d.Retracted)))
	m.JustificationsStored.Add(float64(len(d.Justifications)))
}
