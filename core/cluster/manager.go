package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/stream-go/core/topology"
)

type ManagerOptions struct {
	Config Config
	// Factory builds the cluster when Config.Scope is set.
	Factory *Factory
	// Resolver provides the cluster when Config.Scope is empty.
	Resolver *Resolver
	Log      *slog.Logger
}

// Manager deploys and undeploys networks on the cluster bound to its config.
// The cluster is obtained and started in the background; operations wait
// until it is ready. Only one operation per network name may run at a time.
type Manager struct {
	cfg      Config
	factory  *Factory
	resolver *Resolver
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	// owned is set when the manager built the cluster and must stop it.
	owned    bool
	cluster  Cluster
	startErr error

	mu       sync.Mutex
	inflight map[string]string
	closed   bool
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	cfg := opts.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Scope == ScopeUnset && opts.Resolver == nil {
		return nil, &ConfigurationError{Field: "scope", Err: fmt.Errorf("no scope configured and no resolver given")}
	}
	if cfg.Scope != ScopeUnset && opts.Factory == nil {
		return nil, &ConfigurationError{Field: "factory", Err: fmt.Errorf("scope %s requires a factory", cfg.Scope)}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		factory:  opts.Factory,
		resolver: opts.Resolver,
		log:      log.With(slog.String("cluster", cfg.Address), slog.String("scope", cfg.Scope.String())),
		ready:    make(chan struct{}),
		inflight: map[string]string{},
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	go m.start()
	return m, nil
}

func (m *Manager) start() {
	defer close(m.ready)

	if m.cfg.Scope == ScopeUnset {
		m.cluster, m.startErr = m.resolver.Resolve(m.ctx)
	} else {
		m.cluster, m.startErr = m.startExplicit()
	}
	if m.startErr != nil {
		m.log.Error("cluster start failed", slog.Any("error", m.startErr))
		return
	}
	m.log.Info("cluster ready", slog.String("resolved_scope", string(m.cluster.Scope())))
}

func (m *Manager) startExplicit() (Cluster, error) {
	c, err := m.factory.New(m.cfg.Scope, m.cfg.Address)
	if err != nil {
		return nil, err
	}
	if err := c.Start(m.ctx); err != nil {
		return nil, err
	}
	m.owned = true
	return c, nil
}

// Cluster waits until the cluster is started.
func (m *Manager) Cluster(ctx context.Context) (Cluster, error) {
	select {
	case <-m.ready:
		return m.cluster, m.startErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// begin reserves name for op; the returned func releases it.
func (m *Manager) begin(name, op string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if running, ok := m.inflight[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationInProgress, running)
	}
	m.inflight[name] = op
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.inflight, name)
	}, nil
}

func (m *Manager) DeployNetwork(ctx context.Context, net *topology.Network) (*ActiveNetwork, error) {
	if net == nil || net.Name == "" {
		return nil, deployError(OpDeploy, "", topology.ErrNameRequired)
	}
	done, err := m.begin(net.Name, OpDeploy)
	if err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	defer done()

	c, err := m.Cluster(ctx)
	if err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	active, err := c.Deploy(ctx, net)
	if err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	return active, nil
}

func (m *Manager) UndeployNetwork(ctx context.Context, name string) error {
	done, err := m.begin(name, OpUndeploy)
	if err != nil {
		return deployError(OpUndeploy, name, err)
	}
	defer done()

	c, err := m.Cluster(ctx)
	if err != nil {
		return deployError(OpUndeploy, name, err)
	}
	return deployError(OpUndeploy, name, c.Undeploy(ctx, name))
}

func (m *Manager) GetNetwork(ctx context.Context, name string) (*ActiveNetwork, error) {
	c, err := m.Cluster(ctx)
	if err != nil {
		return nil, err
	}
	return c.Get(ctx, name)
}

// Close rejects further operations and stops the cluster if the manager
// built it. Clusters obtained from a resolver stay with the resolver.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	<-m.ready
	if m.owned && m.cluster != nil {
		return m.cluster.Stop(ctx)
	}
	return nil
}
