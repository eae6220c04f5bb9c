// Package cluster abstracts over where a network of components runs.
//
// A [Cluster] deploys and undeploys [topology.Network]s and exposes shared
// maps. Three variants exist, selected by [Scope]:
//
//   - [ScopeLocal]: everything lives in this process ([LocalCluster]).
//   - [ScopeCluster]: processes share a data grid; network records are
//     replicated through a grid map so every member sees them ([GridCluster]).
//   - [ScopeOrchestrated]: an external control plane owns deployments and
//     the cluster forwards requests to it ([OrchestratedCluster]).
//
// # Scope resolution
//
// When no scope is configured the [Resolver] probes the rendezvous address
// (default "__CLUSTER__") once:
//
//   - a reply means a control plane is present: orchestrated
//   - no responder and no grid members: local
//   - no responder and grid members present: cluster
//
// The resolved cluster is cached for the lifetime of the resolver; concurrent
// first callers share a single probe.
//
// # Managing networks
//
//	m, err := cluster.NewManager(cluster.ManagerOptions{
//	    Config:   cluster.Config{Address: "demo"},
//	    Resolver: resolver,
//	})
//	active, err := m.DeployNetwork(ctx, network)
//	err = m.UndeployNetwork(ctx, "word-count")
//
// Deploy and undeploy either fully succeed or fail with a [*DeploymentError];
// a deploy that fails half way undeploys the instances it already started.
package cluster
