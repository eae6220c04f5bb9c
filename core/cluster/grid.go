package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/codewandler/stream-go/core/perkey"
	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/core/transport"
	"github.com/codewandler/stream-go/ports/grid"
	"github.com/codewandler/stream-go/ports/kv"
)

// NetworksMap is the grid map holding the records of deployed networks.
const NetworksMap = "networks"

type GridOptions struct {
	Address   string
	Grid      grid.Grid
	Transport transport.Transport
	Deployer  Deployer
	Log       *slog.Logger
	Metrics   ClusterMetrics
	// RequestTimeout bounds requests forwarded to other members.
	RequestTimeout time.Duration
}

// GridCluster shares network records and maps through a data grid. Each
// member deploys instances locally and owns the networks it deployed;
// undeploy requests for networks owned by another member are forwarded to
// it. Networks of a member that leaves are not redeployed elsewhere.
type GridCluster struct {
	address        string
	grid           grid.Grid
	transport      transport.Transport
	deployer       Deployer
	log            *slog.Logger
	metrics        ClusterMetrics
	requestTimeout time.Duration
	sched          *perkey.Scheduler[string]

	mu      sync.Mutex
	started bool
	stopped bool
	sub     transport.Subscription
	owned   map[string]*ActiveNetwork
}

func NewGridCluster(opts GridOptions) (*GridCluster, error) {
	if opts.Grid == nil {
		return nil, ErrGridRequired
	}
	if opts.Transport == nil {
		return nil, ErrTransportRequired
	}
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
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GridCluster{
		address:   address,
		grid:      opts.Grid,
		transport: opts.Transport,
		deployer:  opts.Deployer,
		log: log.With(
			slog.String("cluster", address),
			slog.String("scope", string(ScopeCluster)),
			slog.String("node", opts.Grid.NodeID()),
		),
		metrics:        m,
		requestTimeout: timeout,
		sched:          perkey.New[string](),
		owned:          map[string]*ActiveNetwork{},
	}, nil
}

func (c *GridCluster) Scope() Scope    { return ScopeCluster }
func (c *GridCluster) Address() string { return c.address }
func (c *GridCluster) NodeID() string  { return c.grid.NodeID() }

// NodeAddress is where the member nodeID accepts forwarded requests.
func NodeAddress(address, nodeID string) string {
	return address + ".node." + nodeID
}

func (c *GridCluster) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrClusterStopped
	}
	if c.started {
		return nil
	}
	sub, err := c.transport.Subscribe(context.WithoutCancel(ctx), NodeAddress(c.address, c.grid.NodeID()), c.handleNode)
	if err != nil {
		return fmt.Errorf("subscribe node address: %w", err)
	}
	c.sub = sub
	c.started = true
	c.log.Info("cluster started")
	return nil
}

// Stop undeploys the networks this member owns and removes their records.
func (c *GridCluster) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.stopped = true
	sub := c.sub
	c.sub = nil
	names := slices.Sorted(maps.Keys(c.owned))
	c.mu.Unlock()

	var errs []error
	if err := sub.Unsubscribe(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range names {
		err := c.sched.DoContext(ctx, name, func() error { return c.undeployOwned(ctx, name) })
		if err != nil && !errors.Is(err, ErrNetworkNotFound) {
			errs = append(errs, err)
		}
	}
	c.sched.Close()
	c.log.Info("cluster stopped")
	return errors.Join(errs...)
}

func (c *GridCluster) checkStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrClusterNotStarted
	}
	return nil
}

func (c *GridCluster) Map(ctx context.Context, name string) (kv.Store, error) {
	return c.grid.Map(ctx, "map_"+name)
}

func (c *GridCluster) records(ctx context.Context) (kv.Store, error) {
	return c.grid.Map(ctx, NetworksMap)
}

func (c *GridCluster) Deploy(ctx context.Context, net *topology.Network) (active *ActiveNetwork, err error) {
	defer observe(c.metrics, ScopeCluster, OpDeploy)(&err)
	if net == nil {
		return nil, deployError(OpDeploy, "", fmt.Errorf("%w: missing network", ErrInvalidNetwork))
	}
	if err := c.checkStarted(); err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	err = c.sched.DoContext(ctx, net.Name, func() error {
		records, err := c.records(ctx)
		if err != nil {
			return err
		}
		switch exists, err := kv.Has(ctx, records, net.Name); {
		case err != nil:
			return err
		case exists:
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
		active.Owner = c.grid.NodeID()

		if err := kv.Put(ctx, records, net.Name, active, kv.PutOptions{}); err != nil {
			if rbErr := undeployInstances(context.WithoutCancel(ctx), c.deployer, net, deployed); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return fmt.Errorf("store network record: %w", err)
		}

		c.mu.Lock()
		c.owned[net.Name] = active
		c.metrics.NetworksActive(ScopeCluster, len(c.owned))
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	c.log.Info("network deployed", slog.String("network", net.Name), slog.Int("instances", len(active.Deployments)))
	return active, nil
}

func (c *GridCluster) Undeploy(ctx context.Context, name string) (err error) {
	defer observe(c.metrics, ScopeCluster, OpUndeploy)(&err)
	if err := c.checkStarted(); err != nil {
		return deployError(OpUndeploy, name, err)
	}
	err = c.sched.DoContext(ctx, name, func() error {
		active, err := c.Get(ctx, name)
		if err != nil {
			return err
		}
		if active.Owner == c.grid.NodeID() {
			return c.undeployOwned(ctx, name)
		}
		return c.forwardUndeploy(ctx, active)
	})
	if err != nil {
		return deployError(OpUndeploy, name, err)
	}
	c.log.Info("network undeployed", slog.String("network", name))
	return nil
}

// undeployOwned must run inside the scheduler slot of name.
func (c *GridCluster) undeployOwned(ctx context.Context, name string) error {
	records, err := c.records(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	active, ok := c.owned[name]
	delete(c.owned, name)
	c.metrics.NetworksActive(ScopeCluster, len(c.owned))
	c.mu.Unlock()
	if !ok {
		return ErrNetworkNotFound
	}

	return errors.Join(
		undeployInstances(ctx, c.deployer, active.Network, active.Deployments),
		records.Delete(ctx, name),
	)
}

func (c *GridCluster) forwardUndeploy(ctx context.Context, active *ActiveNetwork) error {
	data, err := json.Marshal(nameRequest{Name: active.Name})
	if err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	res, err := c.transport.Request(reqCtx, transport.NewEnvelope(NodeAddress(c.address, active.Owner), opNodeUndeploy, data))
	if errors.Is(err, transport.ErrNoResponders) {
		return c.dropOrphan(ctx, active)
	}
	if err != nil {
		return fmt.Errorf("forward to %s: %w", active.Owner, err)
	}
	return decodeReply(res, nil)
}

// dropOrphan removes the record of a network whose owner left the grid.
func (c *GridCluster) dropOrphan(ctx context.Context, active *ActiveNetwork) error {
	members, err := c.grid.Members(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(members, active.Owner) {
		return fmt.Errorf("owner %s is a member but unreachable: %w", active.Owner, transport.ErrNoResponders)
	}
	records, err := c.records(ctx)
	if err != nil {
		return err
	}
	c.log.Warn("removing record of departed owner", slog.String("network", active.Name), slog.String("owner", active.Owner))
	return records.Delete(ctx, active.Name)
}

func (c *GridCluster) handleNode(ctx context.Context, env transport.Envelope) ([]byte, error) {
	if env.Type != opNodeUndeploy {
		return encodeReply(nil, fmt.Errorf("%w: %s", ErrUnexpectedOperation, env.Type))
	}
	var req nameRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return encodeReply(nil, err)
	}
	c.log.Debug("forwarded undeploy", slog.String("network", req.Name))
	err := c.sched.DoContext(ctx, req.Name, func() error { return c.undeployOwned(ctx, req.Name) })
	return encodeReply(nil, err)
}

func (c *GridCluster) Get(ctx context.Context, name string) (*ActiveNetwork, error) {
	records, err := c.records(ctx)
	if err != nil {
		return nil, err
	}
	active, err := kv.Get[*ActiveNetwork](ctx, records, name)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNetworkNotFound
	}
	return active, err
}

var _ Cluster = (*GridCluster)(nil)
