package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/stream-go/core/cluster"
	"github.com/codewandler/stream-go/core/feeder"
	"github.com/codewandler/stream-go/core/hooks"
	"github.com/codewandler/stream-go/core/messaging"
	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/core/transport"
	"github.com/codewandler/stream-go/ports/grid"
)

// Metrics bundles the instrumentation handed to every component the runtime
// creates. Nil fields use the package nop implementations.
type Metrics struct {
	Dispatch messaging.DispatchMetrics
	Feeder   feeder.Metrics
	Cluster  cluster.ClusterMetrics
}

type Config struct {
	Context context.Context
	Log     *slog.Logger
	// NodeID names this process in logs. Defaults to "node-<random>".
	NodeID string
	// Transport defaults to an in-memory transport owned by the runtime.
	Transport transport.Transport
	// Grid enables the cluster scope. Nil keeps the process standalone.
	Grid grid.Grid
	// Deployer defaults to a Registry, see Runtime.Register.
	Deployer cluster.Deployer
	// Cluster selects the cluster. An empty scope is resolved by probing.
	Cluster      cluster.Config
	ProbeTimeout time.Duration
	Orchestrated cluster.OrchestratedOptions
	Metrics      Metrics
	InputHooks   []hooks.InputHook
	OutputHooks  []hooks.OutputHook
	// DedupeWindow is passed to every instance's collector, see
	// input.CollectorOptions.
	DedupeWindow int
	DedupeTTL    time.Duration
}

// Runtime is the process-wide context: it owns the transport, the scope
// resolver with its cached cluster and the manager deploying networks on it.
// Component instances bind to it to get their inputs and outputs wired.
type Runtime struct {
	nodeID    string
	log       *slog.Logger
	transport transport.Transport
	// ownsTransport is set when the runtime created the transport.
	ownsTransport bool
	registry      *cluster.Registry
	resolver      *cluster.Resolver
	manager       *cluster.Manager
	metrics       Metrics
	inputHooks    []hooks.InputHook
	outputHooks   []hooks.OutputHook
	dedupeWindow  int
	dedupeTTL     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func New(cfg Config) (*Runtime, error) {
	rt := &Runtime{
		nodeID:       cfg.NodeID,
		transport:    cfg.Transport,
		metrics:      cfg.Metrics,
		inputHooks:   cfg.InputHooks,
		outputHooks:  cfg.OutputHooks,
		dedupeWindow: cfg.DedupeWindow,
		dedupeTTL:    cfg.DedupeTTL,
	}
	if rt.nodeID == "" {
		rt.nodeID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}

	// === logger ===
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	rt.log = log.With(slog.String("node", rt.nodeID))

	// === context ===
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	rt.ctx, rt.cancel = context.WithCancel(parent)

	// === transport ===
	if rt.transport == nil {
		rt.transport = transport.NewInMemoryTransport(transport.MemoryTransportOpts{Log: rt.log})
		rt.ownsTransport = true
	}

	// === deployer ===
	deployer := cfg.Deployer
	if deployer == nil {
		rt.registry = cluster.NewRegistry(cluster.RegistryOptions{Log: rt.log})
		deployer = rt.registry
	}

	// === cluster ===
	factory := &cluster.Factory{
		Transport:    rt.transport,
		Grid:         cfg.Grid,
		Deployer:     deployer,
		Log:          rt.log,
		Metrics:      cfg.Metrics.Cluster,
		Orchestrated: cfg.Orchestrated,
	}
	clusterCfg := cfg.Cluster.WithDefaults()
	resolver, err := cluster.NewResolver(cluster.ResolverOptions{
		Address:      clusterCfg.Address,
		ProbeTimeout: cfg.ProbeTimeout,
		Transport:    rt.transport,
		Grid:         cfg.Grid,
		Factory:      factory,
		Log:          rt.log,
		Metrics:      cfg.Metrics.Cluster,
	})
	if err != nil {
		rt.cancel()
		rt.shutdownTransport()
		return nil, err
	}
	rt.resolver = resolver

	rt.manager, err = cluster.NewManager(cluster.ManagerOptions{
		Config:   clusterCfg,
		Factory:  factory,
		Resolver: resolver,
		Log:      rt.log,
	})
	if err != nil {
		rt.cancel()
		rt.shutdownTransport()
		return nil, err
	}

	rt.log.Debug("runtime created", slog.String("cluster", clusterCfg.Address), slog.String("scope", clusterCfg.Scope.String()))
	return rt, nil
}

func (r *Runtime) NodeID() string                      { return r.nodeID }
func (r *Runtime) Transport() transport.Transport      { return r.transport }
func (r *Runtime) Manager() *cluster.Manager           { return r.manager }
func (r *Runtime) Resolver() *cluster.Resolver         { return r.resolver }
func (r *Runtime) Context() context.Context            { return r.ctx }
func (r *Runtime) Log() *slog.Logger                   { return r.log }
func (r *Runtime) Registry() (*cluster.Registry, bool) { return r.registry, r.registry != nil }

// Cluster waits until the configured or resolved cluster is started.
func (r *Runtime) Cluster(ctx context.Context) (cluster.Cluster, error) {
	return r.manager.Cluster(ctx)
}

// Deploy deploys net on the runtime's cluster.
func (r *Runtime) Deploy(ctx context.Context, net *topology.Network) (*cluster.ActiveNetwork, error) {
	if r.isClosed() {
		return nil, ErrRuntimeClosed
	}
	return r.manager.DeployNetwork(ctx, net)
}

func (r *Runtime) Undeploy(ctx context.Context, name string) error {
	if r.isClosed() {
		return ErrRuntimeClosed
	}
	return r.manager.UndeployNetwork(ctx, name)
}

// Register makes main deployable on this process. setup runs for every
// instance after its inputs and outputs are bound; the instance starts
// receiving once setup returns without error.
func (r *Runtime) Register(main string, setup SetupFunc) error {
	if r.registry == nil {
		return ErrCustomDeployer
	}
	r.registry.Register(main, func(ctx context.Context, inst cluster.Instance) (cluster.Component, error) {
		ic, err := r.Bind(ctx, inst)
		if err != nil {
			return nil, err
		}
		if err := setup(ctx, ic); err != nil {
			return nil, errors.Join(err, ic.Stop(ctx))
		}
		if err := ic.Open(); err != nil {
			return nil, errors.Join(err, ic.Stop(ctx))
		}
		return ic, nil
	})
	return nil
}

// Close stops the cluster, which undeploys the networks this process owns,
// and closes an owned transport.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := errors.Join(
		r.manager.Close(ctx),
		r.resolver.Close(ctx),
	)
	r.cancel()
	r.shutdownTransport()
	r.log.Info("runtime closed")
	return err
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Runtime) shutdownTransport() {
	if !r.ownsTransport {
		return
	}
	if err := r.transport.Close(); err != nil {
		r.log.Warn("transport close failed", slog.Any("error", err))
	}
}
