package lib

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "target_csv"

// Metrics holds the target's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	records        *prometheus.CounterVec
	flushes        *prometheus.CounterVec
	rowsFlushed    *prometheus.CounterVec
	truncations    *prometheus.CounterVec
	loadJobs       *prometheus.CounterVec
	malformedLines prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Records buffered per stream.",
		}, []string{"stream"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flushes_total",
			Help:      "Batches written and uploaded per stream and reason.",
		}, []string{"stream", "reason"}),
		rowsFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_flushed_total",
			Help:      "Rows uploaded per stream.",
		}, []string{"stream"}),
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "truncations_total",
			Help:      "Daily truncations issued per stream.",
		}, []string{"stream"}),
		loadJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "load_jobs_total",
			Help:      "Warehouse load jobs submitted per stream.",
		}, []string{"stream"}),
		malformedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_lines_total",
			Help:      "Input lines skipped because they could not be parsed.",
		}),
	}

	collectors := []prometheus.Collector{m.records, m.flushes, m.rowsFlushed, m.truncations, m.loadJobs, m.malformedLines}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("error registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) recordBuffered(stream string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(stream).Inc()
}

func (m *Metrics) flushed(stream string, reason FlushReason, rows int) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(stream, string(reason)).Inc()
	m.rowsFlushed.WithLabelValues(stream).Add(float64(rows))
}

func (m *Metrics) truncatedTable(stream string) {
	if m == nil {
		return
	}
	m.truncations.WithLabelValues(stream).Inc()
}

func (m *Metrics) loadSubmitted(stream string) {
	if m == nil {
		return
	}
	m.loadJobs.WithLabelValues(stream).Inc()
}

func (m *Metrics) malformedLine() {
	if m == nil {
		return
	}
	m.malformedLines.Inc()
}
