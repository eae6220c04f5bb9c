package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/ports/kv"
)

func newLocal(t *testing.T, reg *Registry) *LocalCluster {
	t.Helper()
	c, err := NewLocalCluster(LocalOptions{Address: "test", Deployer: reg})
	require.NoError(t, err)
	startCluster(t, c)
	return c
}

func TestLocalCluster_DeployUndeploy(t *testing.T) {
	reg := testRegistry()
	c := newLocal(t, reg)

	active, err := c.Deploy(t.Context(), testNetwork("wc"))
	require.NoError(t, err)
	require.Equal(t, ScopeLocal, active.Scope)
	require.Equal(t, "test", active.Cluster)
	require.Len(t, active.Deployments, 3)
	require.Len(t, reg.Running(), 3)

	got, err := c.Get(t.Context(), "wc")
	require.NoError(t, err)
	require.Same(t, active, got)

	_, err = c.Deploy(t.Context(), testNetwork("wc"))
	var de *DeploymentError
	require.ErrorAs(t, err, &de)
	require.ErrorIs(t, err, ErrNetworkExists)

	require.NoError(t, c.Undeploy(t.Context(), "wc"))
	require.Empty(t, reg.Running())
	_, err = c.Get(t.Context(), "wc")
	require.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestLocalCluster_UndeployUnknown(t *testing.T) {
	c := newLocal(t, testRegistry())
	err := c.Undeploy(t.Context(), "X")
	var de *DeploymentError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "X", de.Network)
	require.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestLocalCluster_RollbackOnFailure(t *testing.T) {
	reg := testRegistry()
	c := newLocal(t, reg)

	net := &topology.Network{
		Name: "half",
		Components: []topology.Component{
			{Name: "a", Main: "noop", Instances: 2},
			{Name: "b", Main: "fail"},
		},
	}
	_, err := c.Deploy(t.Context(), net)
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, reg.Running(), "instances deployed before the failure are undeployed")

	_, err = c.Get(t.Context(), "half")
	require.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestLocalCluster_InvalidNetwork(t *testing.T) {
	c := newLocal(t, testRegistry())
	_, err := c.Deploy(t.Context(), &topology.Network{Name: "empty"})
	var de *DeploymentError
	require.ErrorAs(t, err, &de)
	require.ErrorIs(t, err, ErrInvalidNetwork)
}

func TestClusters_NilNetwork(t *testing.T) {
	tr := newMemTransport(t)
	serveControlPlane(t, tr, "cp")
	orchestrated := newOrchestrated(t, tr, OrchestratedOptions{Address: "cp"})
	startCluster(t, orchestrated)

	gridNode := newGridNodes(t, tr, "node-a")[0]

	for _, c := range []Cluster{newLocal(t, testRegistry()), gridNode.cluster, orchestrated} {
		_, err := c.Deploy(t.Context(), nil)
		var de *DeploymentError
		require.ErrorAs(t, err, &de)
		require.ErrorIs(t, err, ErrInvalidNetwork)
	}
}

func TestLocalCluster_NotStarted(t *testing.T) {
	c, err := NewLocalCluster(LocalOptions{Deployer: testRegistry()})
	require.NoError(t, err)
	_, err = c.Deploy(t.Context(), testNetwork("wc"))
	require.ErrorIs(t, err, ErrClusterNotStarted)
}

func TestLocalCluster_StopUndeploysEverything(t *testing.T) {
	reg := testRegistry()
	c, err := NewLocalCluster(LocalOptions{Deployer: reg})
	require.NoError(t, err)
	require.NoError(t, c.Start(t.Context()))

	_, err = c.Deploy(t.Context(), testNetwork("a"))
	require.NoError(t, err)
	_, err = c.Deploy(t.Context(), testNetwork("b"))
	require.NoError(t, err)
	require.Len(t, reg.Running(), 6)

	require.NoError(t, c.Stop(t.Context()))
	require.Empty(t, reg.Running())
	require.ErrorIs(t, c.Start(t.Context()), ErrClusterStopped)
}

func TestLocalCluster_MapsAndSets(t *testing.T) {
	c := newLocal(t, testRegistry())

	m, err := c.Map(t.Context(), "counts")
	require.NoError(t, err)
	require.NoError(t, kv.Put(t.Context(), m, "a", 1, kv.PutOptions{}))

	again, err := c.Map(t.Context(), "counts")
	require.NoError(t, err)
	v, err := kv.Get[int](t.Context(), again, "a")
	require.NoError(t, err)
	require.Equal(t, 1, v)

	s, err := Set(t.Context(), c, "seen")
	require.NoError(t, err)
	require.NoError(t, s.Add(t.Context(), "x"))
	ok, err := s.Contains(t.Context(), "x")
	require.NoError(t, err)
	require.True(t, ok)
}
