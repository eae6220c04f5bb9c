package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/stream-go/core/messaging"
	"github.com/codewandler/stream-go/core/metrics"
)

// dispatchMetrics implements messaging.DispatchMetrics using Prometheus.
type dispatchMetrics struct {
	sentTotal       *prometheus.CounterVec
	sendErrorsTotal *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	resolvedTotal   *prometheus.CounterVec
	ackDuration     *prometheus.HistogramVec
	pendingAcks     *prometheus.GaugeVec
}

// NewDispatchMetrics creates a new Prometheus implementation of DispatchMetrics.
func NewDispatchMetrics(reg prometheus.Registerer) messaging.DispatchMetrics {
	m := &dispatchMetrics{
		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_dispatch_messages_sent_total",
			Help: "Total number of messages handed to a connection",
		}, []string{"stream"}),

		sendErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_dispatch_send_errors_total",
			Help: "Total number of failed sends, including sends to an empty pool",
		}, []string{"stream"}),

		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_dispatch_retries_total",
			Help: "Total number of resends after an ack timeout",
		}, []string{"stream"}),

		resolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_dispatch_resolved_total",
			Help: "Total number of tracked messages by outcome",
		}, []string{"stream", "outcome"}),

		ackDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strm_dispatch_ack_duration_seconds",
			Help:    "Time from first send to resolution of tracked messages",
			Buckets: defaultBuckets,
		}, []string{"stream"}),

		pendingAcks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strm_dispatch_pending_acks",
			Help: "Number of tracked messages awaiting resolution",
		}, []string{"tracker"}),
	}

	reg.MustRegister(
		m.sentTotal,
		m.sendErrorsTotal,
		m.retriesTotal,
		m.resolvedTotal,
		m.ackDuration,
		m.pendingAcks,
	)

	return m
}

func (m *dispatchMetrics) MessageSent(stream string) {
	m.sentTotal.WithLabelValues(stream).Inc()
}

func (m *dispatchMetrics) SendFailed(stream string) {
	m.sendErrorsTotal.WithLabelValues(stream).Inc()
}

func (m *dispatchMetrics) MessageRetried(stream string) {
	m.retriesTotal.WithLabelValues(stream).Inc()
}

func (m *dispatchMetrics) MessageResolved(stream, outcome string) {
	m.resolvedTotal.WithLabelValues(stream, outcome).Inc()
}

func (m *dispatchMetrics) AckDuration(stream string) metrics.Timer {
	return newTimer(m.ackDuration.WithLabelValues(stream))
}

func (m *dispatchMetrics) PendingAcks(tracker string, count int) {
	m.pendingAcks.WithLabelValues(tracker).Set(float64(count))
}

var _ messaging.DispatchMetrics = (*dispatchMetrics)(nil)
