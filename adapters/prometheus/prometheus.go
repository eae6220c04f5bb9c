// Package prometheus provides Prometheus implementations of the runtime's
// metrics interfaces: dispatch, feeder, cluster and message hooks.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/stream-go/core/metrics"
)

// newTimer observes the elapsed time in seconds on h.
func newTimer(h prometheus.Observer) metrics.Timer {
	return metrics.NewTimer(func(d time.Duration) { h.Observe(d.Seconds()) })
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// AllMetrics holds every Prometheus implementation, registered once.
type AllMetrics struct {
	Dispatch *dispatchMetrics
	Feeder   *feederMetrics
	Cluster  *clusterMetrics
	Hooks    *HookMetrics
}

// NewAllMetrics creates and registers all metrics on reg.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Dispatch: NewDispatchMetrics(reg).(*dispatchMetrics),
		Feeder:   NewFeederMetrics(reg).(*feederMetrics),
		Cluster:  NewClusterMetrics(reg).(*clusterMetrics),
		Hooks:    NewHookMetrics(reg),
	}
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
