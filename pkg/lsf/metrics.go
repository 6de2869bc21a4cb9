package lsf

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lsfq"

// Metrics holds the driver's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	submissions     *prometheus.CounterVec
	kills           *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	knownJobs       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "Job submissions by strategy and result.",
		}, []string{"strategy", "result"}),
		kills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "kills_total",
			Help:      "Kill requests by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "status_refreshes_total",
			Help:      "Bulk status listings by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "status_refresh_duration_seconds",
			Help:      "Duration of bulk status listings.",
			Buckets:   prometheus.DefBuckets,
		}),
		knownJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "known_jobs",
			Help:      "Jobs tracked by the status cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submissions, m.kills, m.refreshes, m.refreshDuration, m.knownJobs)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeSubmit(strategy string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(strategy, result(err)).Inc()
}

func (m *Metrics) observeKill(err error) {
	if m == nil {
		return
	}
	m.kills.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) observeRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result(err)).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

func (m *Metrics) setKnown(n int) {
	if m == nil {
		return
	}
	m.knownJobs.Set(float64(n))
}
