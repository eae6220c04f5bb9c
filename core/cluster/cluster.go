package cluster

import (
	"context"
	"time"

	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/ports/kv"
)

// Cluster deploys networks within one scope. Implementations are safe for
// concurrent use once started.
type Cluster interface {
	Scope() Scope
	Address() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Map returns a named map shared across the cluster.
	Map(ctx context.Context, name string) (kv.Store, error)

	// Deploy deploys every instance of net or none of them. Deploying a name
	// that is already deployed fails with ErrNetworkExists.
	Deploy(ctx context.Context, net *topology.Network) (*ActiveNetwork, error)
	// Undeploy fails with ErrNetworkNotFound for unknown names.
	Undeploy(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*ActiveNetwork, error)
}

// Set returns a named set shared across c.
func Set(ctx context.Context, c Cluster, name string) (*kv.Set, error) {
	store, err := c.Map(ctx, "set."+name)
	if err != nil {
		return nil, err
	}
	return kv.NewSet(store), nil
}

// ActiveNetwork is the record of a deployed network.
type ActiveNetwork struct {
	Name    string            `json:"name"`
	Cluster string            `json:"cluster"`
	Scope   Scope             `json:"scope"`
	Network *topology.Network `json:"network"`
	// Owner is the node that deployed the network, if any.
	Owner string `json:"owner,omitempty"`
	// Deployments maps instance addresses to their deployment ids.
	Deployments map[string]DeploymentID `json:"deployments"`
	DeployedAt  time.Time               `json:"deployed_at"`
}

func newActiveNetwork(c Cluster, net *topology.Network, deployments map[string]DeploymentID) *ActiveNetwork {
	return &ActiveNetwork{
		Name:        net.Name,
		Cluster:     c.Address(),
		Scope:       c.Scope(),
		Network:     net,
		Deployments: deployments,
		DeployedAt:  time.Now().UTC(),
	}
}
