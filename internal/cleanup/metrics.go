package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts retention sweeps per root ("snapshots" or "dumps")
type Metrics struct {
	runsTotal    *prometheus.CounterVec
	removedTotal *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

func NewMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Total retention sweeps per root",
		},
		[]string{"root", "status"},
	)

	m.removedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "entries_removed_total",
			Help:      "Total expired snapshot directories and dump files removed",
		},
		[]string{"root"},
	)

	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "duration_seconds",
			Help:      "Duration of retention sweeps",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"root"},
	)

	registerer.MustRegister(m.runsTotal, m.removedTotal, m.duration)
	return m
}

func (m *Metrics) RecordRun(root, status string, seconds float64) {
	m.runsTotal.WithLabelValues(root, status).Inc()
	m.duration.WithLabelValues(root).Observe(seconds)
}

func (m *Metrics) RecordRemoved(root string, count int) {
	m.removedTotal.WithLabelValues(root).Add(float64(count))
}
