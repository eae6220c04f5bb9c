package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/cluster"
	"github.com/codewandler/stream-go/core/messaging"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]bool {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewDispatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	require.NotNil(t, m)

	m.MessageSent("words")
	m.MessageSent("words")
	m.SendFailed("words")
	m.MessageRetried("words")
	m.MessageResolved("words", messaging.OutcomeAck)
	m.MessageResolved("words", messaging.OutcomeTimeout)
	m.PendingAcks("words", 3)

	timer := m.AckDuration("words")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	dm := m.(*dispatchMetrics)
	assert.Equal(t, 2.0, testutil.ToFloat64(dm.sentTotal.WithLabelValues("words")))
	assert.Equal(t, 1.0, testutil.ToFloat64(dm.resolvedTotal.WithLabelValues("words", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(dm.pendingAcks.WithLabelValues("words")))

	names := gatherNames(t, reg)
	assert.True(t, names["strm_dispatch_ack_duration_seconds"])
	assert.True(t, names["strm_dispatch_retries_total"])
	assert.True(t, names["strm_dispatch_send_errors_total"])
}

func TestNewFeederMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFeederMetrics(reg)

	m.Emitted("src")
	m.Rejected("src")
	m.InFlight("src", 2)
	m.InFlight("src", 1)
	m.Resolved("src", messaging.OutcomeFail)

	fm := m.(*feederMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(fm.inFlight.WithLabelValues("src")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fm.rejectedTotal.WithLabelValues("src")))
	assert.True(t, gatherNames(t, reg)["strm_feeder_resolved_total"])
}

func TestNewClusterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClusterMetrics(reg)

	m.ProbeDuration().ObserveDuration()
	m.ScopeResolved(string(cluster.ScopeLocal))
	m.OperationDuration(cluster.ScopeLocal, cluster.OpDeploy).ObserveDuration()
	m.OperationCompleted(cluster.ScopeLocal, cluster.OpDeploy, true)
	m.OperationCompleted(cluster.ScopeLocal, cluster.OpUndeploy, false)
	m.NetworksActive(cluster.ScopeLocal, 2)
	m.BreakerState("orchestrator", "open")

	cm := m.(*clusterMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.operationsTotal.WithLabelValues("local", "undeploy", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(cm.networksActive.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.breakerState.WithLabelValues("orchestrator", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(cm.breakerState.WithLabelValues("orchestrator", "closed")))

	m.BreakerState("orchestrator", "half-open")
	assert.Equal(t, 0.0, testutil.ToFloat64(cm.breakerState.WithLabelValues("orchestrator", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.breakerState.WithLabelValues("orchestrator", "half-open")))

	names := gatherNames(t, reg)
	assert.True(t, names["strm_cluster_probe_duration_seconds"])
	assert.True(t, names["strm_cluster_scope_resolved_total"])
}

func TestHookMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHookMetrics(reg)

	in := m.Input("sink")
	in.Received("1")
	in.Received("2")
	in.Ack("1")
	in.Fail("2")

	out := m.Output("source")
	out.Emit("1")
	out.Acked("1")
	out.TimedOut("2")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.inputEvents.WithLabelValues("sink", EventReceived)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inputEvents.WithLabelValues("sink", EventFail)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outputEvents.WithLabelValues("source", EventTimeout)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.outputEvents.WithLabelValues("source", EventFail)))
}

func TestNewAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAllMetrics(reg)

	require.NotNil(t, m)
	require.NotNil(t, m.Dispatch)
	require.NotNil(t, m.Feeder)
	require.NotNil(t, m.Cluster)
	require.NotNil(t, m.Hooks)

	// All metrics should be usable
	m.Dispatch.MessageSent("s")
	m.Feeder.Emitted("f")
	m.Cluster.ScopeResolved("local")
	m.Hooks.Output("c").Emit("1")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}
