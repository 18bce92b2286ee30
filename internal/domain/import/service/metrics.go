package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds import counters. A nil *Metrics records nothing.
type Metrics struct {
	sessions *prometheus.CounterVec
	commits  *prometheus.CounterVec
	rows     *prometheus.CounterVec
}

// NewMetrics creates import metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "files_total",
			Help:      "Uploaded files by parse outcome.",
		}, []string{"outcome"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "commits_total",
			Help:      "Commit attempts by outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Committed rows by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.sessions, m.commits, m.rows)
	}
	return m
}

func (m *Metrics) fileParsed(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) commitFinished(outcome string, inserted, duplicates, failed int) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
	m.rows.WithLabelValues("inserted").Add(float64(inserted))
	m.rows.WithLabelValues("duplicate").Add(float64(duplicates))
	m.rows.WithLabelValues("failed").Add(float64(failed))
}
