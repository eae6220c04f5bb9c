package cluster

import "github.com/codewandler/stream-go/core/metrics"

// Operation labels reported by ClusterMetrics.
const (
	OpDeploy   = "deploy"
	OpUndeploy = "undeploy"
)

// ClusterMetrics instruments scope resolution and network management.
// All methods are thread-safe.
type ClusterMetrics interface {
	ProbeDuration() metrics.Timer
	// ScopeResolved records the outcome of a resolution; scope is "error"
	// when the probe failed.
	ScopeResolved(scope string)

	OperationDuration(scope Scope, op string) metrics.Timer
	OperationCompleted(scope Scope, op string, success bool)
	NetworksActive(scope Scope, count int)

	// BreakerState reports circuit breaker transitions of orchestrated
	// clusters.
	BreakerState(name string, state string)
}

type nopClusterMetrics struct{}

func (nopClusterMetrics) ProbeDuration() metrics.Timer { return metrics.NopTimer() }
func (nopClusterMetrics) ScopeResolved(string)         {}

func (nopClusterMetrics) OperationDuration(Scope, string) metrics.Timer { return metrics.NopTimer() }
func (nopClusterMetrics) OperationCompleted(Scope, string, bool)        {}
func (nopClusterMetrics) NetworksActive(Scope, int)                     {}

func (nopClusterMetrics) BreakerState(string, string) {}

// NopClusterMetrics returns a no-op ClusterMetrics implementation.
func NopClusterMetrics() ClusterMetrics { return nopClusterMetrics{} }
