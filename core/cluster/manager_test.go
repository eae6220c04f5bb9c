package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/topology"
)

func newManager(t *testing.T, opts ManagerOptions) *Manager {
	t.Helper()
	m, err := NewManager(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestManager_ExplicitScope(t *testing.T) {
	reg := testRegistry()
	m := newManager(t, ManagerOptions{
		Config:  Config{Address: "demo", Scope: ScopeLocal},
		Factory: &Factory{Deployer: reg},
	})

	active, err := m.DeployNetwork(t.Context(), testNetwork("wc"))
	require.NoError(t, err)
	require.Equal(t, ScopeLocal, active.Scope)
	require.Equal(t, "demo", active.Cluster)

	got, err := m.GetNetwork(t.Context(), "wc")
	require.NoError(t, err)
	require.Equal(t, "wc", got.Name)

	require.NoError(t, m.UndeployNetwork(t.Context(), "wc"))
	require.Empty(t, reg.Running())
}

func TestManager_UndeployUnknown(t *testing.T) {
	m := newManager(t, ManagerOptions{
		Config:  Config{Scope: ScopeLocal},
		Factory: &Factory{Deployer: testRegistry()},
	})

	err := m.UndeployNetwork(t.Context(), "X")
	var de *DeploymentError
	require.ErrorAs(t, err, &de)
	require.Equal(t, OpUndeploy, de.Op)
	require.Equal(t, "X", de.Network)
	require.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestManager_ResolvedScope(t *testing.T) {
	r := newResolver(t, newMemTransport(t), nil)
	m := newManager(t, ManagerOptions{Resolver: r})

	c, err := m.Cluster(t.Context())
	require.NoError(t, err)
	require.Equal(t, ScopeLocal, c.Scope())

	cached, ok := r.Cached()
	require.True(t, ok)
	require.Same(t, cached, c)

	_, err = m.DeployNetwork(t.Context(), testNetwork("wc"))
	require.NoError(t, err)

	// closing the manager leaves the resolver's cluster running
	require.NoError(t, m.Close(t.Context()))
	_, err = c.Get(t.Context(), "wc")
	require.NoError(t, err)

	_, err = m.DeployNetwork(t.Context(), testNetwork("other"))
	require.ErrorIs(t, err, ErrManagerClosed)
}

func TestManager_RejectsConcurrentOperationOnSameName(t *testing.T) {
	g := newGate()
	reg := testRegistry().Register("slow", g.factory)
	m := newManager(t, ManagerOptions{
		Config:  Config{Scope: ScopeLocal},
		Factory: &Factory{Deployer: reg},
	})

	net := &topology.Network{Name: "slow", Components: []topology.Component{{Name: "c", Main: "slow"}}}
	errc := make(chan error, 1)
	go func() {
		_, err := m.DeployNetwork(context.Background(), net)
		errc <- err
	}()
	require.Eventually(t, func() bool { return g.entered.Load() == 1 }, time.Second, time.Millisecond)

	_, err := m.DeployNetwork(t.Context(), net)
	require.ErrorIs(t, err, ErrOperationInProgress)
	err = m.UndeployNetwork(t.Context(), "slow")
	require.ErrorIs(t, err, ErrOperationInProgress)

	// other names are not affected
	_, err = m.DeployNetwork(t.Context(), testNetwork("wc"))
	require.NoError(t, err)

	close(g.release)
	require.NoError(t, <-errc)
	require.NoError(t, m.UndeployNetwork(t.Context(), "slow"))
}

func TestManager_StartFailure(t *testing.T) {
	m := newManager(t, ManagerOptions{
		Config:  Config{Scope: ScopeCluster},
		Factory: &Factory{Deployer: testRegistry()},
	})

	_, err := m.DeployNetwork(t.Context(), testNetwork("wc"))
	var de *DeploymentError
	require.ErrorAs(t, err, &de)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	require.ErrorIs(t, err, ErrGridRequired)
}

func TestNewManager_InvalidConfig(t *testing.T) {
	_, err := NewManager(ManagerOptions{Config: Config{Scope: "galaxy"}, Factory: &Factory{}})
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)

	_, err = NewManager(ManagerOptions{})
	require.ErrorAs(t, err, &ce)
}

func TestManager_WaitRespectsContext(t *testing.T) {
	g := newGate()
	reg := testRegistry().Register("slow", g.factory)

	m := newManager(t, ManagerOptions{
		Config:  Config{Scope: ScopeLocal},
		Factory: &Factory{Deployer: reg},
	})
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err := m.DeployNetwork(ctx, &topology.Network{Name: "slow", Components: []topology.Component{{Name: "c", Main: "slow"}}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
