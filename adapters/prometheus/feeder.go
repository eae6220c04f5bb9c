package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/stream-go/core/feeder"
)

// feederMetrics implements feeder.Metrics using Prometheus.
type feederMetrics struct {
	emittedTotal  *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	inFlight      *prometheus.GaugeVec
	resolvedTotal *prometheus.CounterVec
}

// NewFeederMetrics creates a new Prometheus implementation of feeder.Metrics.
func NewFeederMetrics(reg prometheus.Registerer) feeder.Metrics {
	m := &feederMetrics{
		emittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_feeder_emitted_total",
			Help: "Total number of messages emitted",
		}, []string{"feeder"}),

		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_feeder_rejected_total",
			Help: "Total number of emits rejected by a full feed queue",
		}, []string{"feeder"}),

		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strm_feeder_in_flight",
			Help: "Number of emitted messages awaiting an outcome",
		}, []string{"feeder"}),

		resolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_feeder_resolved_total",
			Help: "Total number of emitted messages by outcome",
		}, []string{"feeder", "outcome"}),
	}

	reg.MustRegister(
		m.emittedTotal,
		m.rejectedTotal,
		m.inFlight,
		m.resolvedTotal,
	)

	return m
}

func (m *feederMetrics) Emitted(name string) {
	m.emittedTotal.WithLabelValues(name).Inc()
}

func (m *feederMetrics) Rejected(name string) {
	m.rejectedTotal.WithLabelValues(name).Inc()
}

func (m *feederMetrics) InFlight(name string, count int) {
	m.inFlight.WithLabelValues(name).Set(float64(count))
}

func (m *feederMetrics) Resolved(name, outcome string) {
	m.resolvedTotal.WithLabelValues(name, outcome).Inc()
}

var _ feeder.Metrics = (*feederMetrics)(nil)
