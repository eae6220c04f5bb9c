// Package metrics declares the instrumentation primitives shared by the
// runtime's metrics interfaces (messaging.DispatchMetrics, feeder.Metrics,
// cluster.ClusterMetrics). adapters/prometheus provides the concrete backend.
package metrics

import "time"

// Timer measures one operation. It starts when created and records the
// elapsed time on ObserveDuration:
//
//	defer m.ProbeDuration().ObserveDuration()
type Timer interface {
	ObserveDuration()
}

type timer struct {
	start   time.Time
	observe func(time.Duration)
}

// NewTimer starts a Timer reporting the elapsed time to observe.
func NewTimer(observe func(time.Duration)) Timer {
	return &timer{start: time.Now(), observe: observe}
}

func (t *timer) ObserveDuration() { t.observe(time.Since(t.start)) }
