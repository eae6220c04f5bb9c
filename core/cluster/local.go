package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/codewandler/stream-go/core/perkey"
	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/ports/kv"
)

type LocalOptions struct {
	Address  string
	Deployer Deployer
	Log      *slog.Logger
	Metrics  ClusterMetrics
}

// LocalCluster runs networks inside this process. Maps are process local.
type LocalCluster struct {
	address  string
	deployer Deployer
	log      *slog.Logger
	metrics  ClusterMetrics
	sched    *perkey.Scheduler[string]

	mu       sync.RWMutex
	started  bool
	stopped  bool
	maps     map[string]*kv.MemStore
	networks map[string]*ActiveNetwork
}

func NewLocalCluster(opts LocalOptions) (*LocalCluster, error) {
	if opts.Deployer == nil {
		return nil, ErrDeployerRequired
	}
	address := opts.Address
	if address == "" {
		address = DefaultAddress
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = NopClusterMetrics()
	}
	return &LocalCluster{
		address:  address,
		deployer: opts.Deployer,
		log:      log.With(slog.String("cluster", address), slog.String("scope", string(ScopeLocal))),
		metrics:  m,
		sched:    perkey.New[string](),
		maps:     map[string]*kv.MemStore{},
		networks: map[string]*ActiveNetwork{},
	}, nil
}

func (c *LocalCluster) Scope() Scope    { return ScopeLocal }
func (c *LocalCluster) Address() string { return c.address }

func (c *LocalCluster) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrClusterStopped
	}
	c.started = true
	c.log.Info("cluster started")
	return nil
}

// Stop undeploys every network; nothing outlives the process. A stopped
// cluster cannot be started again.
func (c *LocalCluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.stopped = true
	names := slices.Sorted(maps.Keys(c.networks))
	c.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := c.undeploy(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	c.sched.Close()
	c.log.Info("cluster stopped")
	return errors.Join(errs...)
}

func (c *LocalCluster) checkStarted() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started {
		return ErrClusterNotStarted
	}
	return nil
}

func (c *LocalCluster) Map(_ context.Context, name string) (kv.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.maps[name]
	if !ok {
		s = kv.NewMemStore()
		c.maps[name] = s
	}
	return s, nil
}

func (c *LocalCluster) Deploy(ctx context.Context, net *topology.Network) (active *ActiveNetwork, err error) {
	defer observe(c.metrics, ScopeLocal, OpDeploy)(&err)
	if net == nil {
		return nil, deployError(OpDeploy, "", fmt.Errorf("%w: missing network", ErrInvalidNetwork))
	}
	if err := c.checkStarted(); err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	err = c.sched.DoContext(ctx, net.Name, func() error {
		c.mu.RLock()
		_, exists := c.networks[net.Name]
		c.mu.RUnlock()
		if exists {
			return ErrNetworkExists
		}

		insts, err := Plan(net)
		if err != nil {
			return err
		}
		deployed, err := deployInstances(ctx, c.deployer, net, insts)
		if err != nil {
			return err
		}
		active = newActiveNetwork(c, net, deployed)

		c.mu.Lock()
		c.networks[net.Name] = active
		c.metrics.NetworksActive(ScopeLocal, len(c.networks))
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	c.log.Info("network deployed", slog.String("network", net.Name), slog.Int("instances", len(active.Deployments)))
	return active, nil
}

func (c *LocalCluster) Undeploy(ctx context.Context, name string) (err error) {
	defer observe(c.metrics, ScopeLocal, OpUndeploy)(&err)
	if err := c.checkStarted(); err != nil {
		return deployError(OpUndeploy, name, err)
	}
	return c.undeploy(ctx, name)
}

func (c *LocalCluster) undeploy(ctx context.Context, name string) error {
	err := c.sched.DoContext(ctx, name, func() error {
		c.mu.Lock()
		active, ok := c.networks[name]
		delete(c.networks, name)
		c.metrics.NetworksActive(ScopeLocal, len(c.networks))
		c.mu.Unlock()
		if !ok {
			return ErrNetworkNotFound
		}
		return undeployInstances(ctx, c.deployer, active.Network, active.Deployments)
	})
	if err != nil {
		return deployError(OpUndeploy, name, err)
	}
	c.log.Info("network undeployed", slog.String("network", name))
	return nil
}

func (c *LocalCluster) Get(_ context.Context, name string) (*ActiveNetwork, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	active, ok := c.networks[name]
	if !ok {
		return nil, ErrNetworkNotFound
	}
	return active, nil
}

var _ Cluster = (*LocalCluster)(nil)
