package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/stream-go/core/cluster"
	"github.com/codewandler/stream-go/core/metrics"
)

// clusterMetrics implements cluster.ClusterMetrics using Prometheus.
type clusterMetrics struct {
	probeDuration     prometheus.Histogram
	scopeResolved     *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	networksActive    *prometheus.GaugeVec
	breakerState      *prometheus.GaugeVec
}

var breakerStates = []string{"closed", "half-open", "open"}

// NewClusterMetrics creates a new Prometheus implementation of ClusterMetrics.
func NewClusterMetrics(reg prometheus.Registerer) cluster.ClusterMetrics {
	m := &clusterMetrics{
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strm_cluster_probe_duration_seconds",
			Help:    "Duration of cluster scope probes in seconds",
			Buckets: defaultBuckets,
		}),

		scopeResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_cluster_scope_resolved_total",
			Help: "Total number of scope resolutions by result",
		}, []string{"scope"}),

		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strm_cluster_operation_duration_seconds",
			Help:    "Duration of deploy and undeploy operations in seconds",
			Buckets: defaultBuckets,
		}, []string{"scope", "op"}),

		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_cluster_operations_total",
			Help: "Total number of deploy and undeploy operations",
		}, []string{"scope", "op", "success"}),

		networksActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strm_cluster_networks_active",
			Help: "Number of networks deployed on the cluster",
		}, []string{"scope"}),

		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strm_cluster_breaker_state",
			Help: "Circuit breaker state of orchestrated clusters, 1 for the current state",
		}, []string{"name", "state"}),
	}

	reg.MustRegister(
		m.probeDuration,
		m.scopeResolved,
		m.operationDuration,
		m.operationsTotal,
		m.networksActive,
		m.breakerState,
	)

	return m
}

func (m *clusterMetrics) ProbeDuration() metrics.Timer {
	return newTimer(m.probeDuration)
}

func (m *clusterMetrics) ScopeResolved(scope string) {
	m.scopeResolved.WithLabelValues(scope).Inc()
}

func (m *clusterMetrics) OperationDuration(scope cluster.Scope, op string) metrics.Timer {
	return newTimer(m.operationDuration.WithLabelValues(string(scope), op))
}

func (m *clusterMetrics) OperationCompleted(scope cluster.Scope, op string, success bool) {
	m.operationsTotal.WithLabelValues(string(scope), op, boolToStr(success)).Inc()
}

func (m *clusterMetrics) NetworksActive(scope cluster.Scope, count int) {
	m.networksActive.WithLabelValues(string(scope)).Set(float64(count))
}

func (m *clusterMetrics) BreakerState(name, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.breakerState.WithLabelValues(name, s).Set(v)
	}
}

var _ cluster.ClusterMetrics = (*clusterMetrics)(nil)
