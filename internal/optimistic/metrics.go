package optimistic

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "optimistic_create"

// Metrics counts create attempts. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts  *prometheus.CounterVec
	exhausted prometheus.Counter
	canceled  prometheus.Counter
	pending   prometheus.Gauge
	latency   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: metricsSubsystem,
			Name:      "attempts_total",
			Help:      "Create attempts sent to the server, by result.",
		}, []string{"result"}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: metricsSubsystem,
			Name:      "exhausted_total",
			Help:      "Entries that ran out of automatic retries.",
		}),
		canceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskboard",
			Subsystem: metricsSubsystem,
			Name:      "canceled_total",
			Help:      "Entries canceled before the server confirmed them.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskboard",
			Subsystem: metricsSubsystem,
			Name:      "pending",
			Help:      "Entries not yet confirmed by the server, including failed ones.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskboard",
			Subsystem: metricsSubsystem,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single create attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.exhausted, m.canceled, m.pending, m.latency)
	}
	return m
}

func (m *Metrics) observeAttempt(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) addPending(delta float64) {
	if m == nil {
		return
	}
	m.pending.Add(delta)
}

func (m *Metrics) incExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}

func (m *Metrics) incCanceled() {
	if m == nil {
		return
	}
	m.canceled.Inc()
}
