package cluster

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/stream-go/core/sf"
	"github.com/codewandler/stream-go/core/transport"
	"github.com/codewandler/stream-go/ports/grid"
)

const DefaultProbeTimeout = 100 * time.Millisecond

type ResolverOptions struct {
	// Address is probed for a control plane and names the cluster built for
	// the resolved scope. Defaults to DefaultAddress.
	Address      string
	ProbeTimeout time.Duration
	Transport    transport.Transport
	// Grid is consulted when no control plane answers. Nil means the
	// process is not part of a grid.
	Grid    grid.Grid
	Factory *Factory
	Log     *slog.Logger
	Metrics ClusterMetrics
}

type resolved struct {
	scope   Scope
	cluster Cluster
}

// Resolver detects the scope of this process once and owns the started
// Cluster for it. Failed resolutions are not cached.
type Resolver struct {
	address      string
	probeTimeout time.Duration
	transport    transport.Transport
	grid         grid.Grid
	factory      *Factory
	log          *slog.Logger
	metrics      ClusterMetrics

	sf *sf.Singleflight[resolved]

	mu     sync.RWMutex
	cached *resolved
	closed bool
}

func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.Transport == nil {
		return nil, &ConfigurationError{Field: "transport", Err: ErrTransportRequired}
	}
	address := opts.Address
	if address == "" {
		address = DefaultAddress
	}
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = NopClusterMetrics()
	}
	factory := opts.Factory
	if factory == nil {
		factory = &Factory{}
	}
	if factory.Transport == nil {
		factory.Transport = opts.Transport
	}
	if factory.Grid == nil {
		factory.Grid = opts.Grid
	}
	return &Resolver{
		address:      address,
		probeTimeout: timeout,
		transport:    opts.Transport,
		grid:         opts.Grid,
		factory:      factory,
		log:          log.With(slog.String("resolver", address)),
		metrics:      m,
		sf:           sf.New[resolved](),
	}, nil
}

// Resolve returns the started cluster for the detected scope. Only the
// first successful call probes; later calls return the cached cluster.
func (r *Resolver) Resolve(ctx context.Context) (Cluster, error) {
	res, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return res.cluster, nil
}

// Scope returns the detected scope, resolving it if needed.
func (r *Resolver) Scope(ctx context.Context) (Scope, error) {
	res, err := r.resolve(ctx)
	if err != nil {
		return ScopeUnset, err
	}
	return res.scope, nil
}

// Cached returns the resolved cluster without probing.
func (r *Resolver) Cached() (Cluster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil {
		return nil, false
	}
	return r.cached.cluster, true
}

func (r *Resolver) resolve(ctx context.Context) (*resolved, error) {
	if res, err := r.lookup(); res != nil || err != nil {
		return res, err
	}

	return r.sf.Do("resolve", func() (*resolved, error) {
		if res, err := r.lookup(); res != nil || err != nil {
			return res, err
		}

		scope, err := r.probe(ctx)
		if err != nil {
			r.metrics.ScopeResolved("error")
			return nil, err
		}
		r.metrics.ScopeResolved(string(scope))
		r.log.Info("cluster scope resolved", slog.String("scope", string(scope)))

		c, err := r.factory.New(scope, r.address)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}

		res := &resolved{scope: scope, cluster: c}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			// closed while probing; nothing else will stop c
			return nil, errors.Join(ErrResolverClosed, c.Stop(context.WithoutCancel(ctx)))
		}
		r.cached = res
		r.mu.Unlock()
		return res, nil
	})
}

// lookup returns the cached resolution, or ErrResolverClosed once closed.
// Both are nil while nothing has been resolved.
func (r *Resolver) lookup() (*resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrResolverClosed
	}
	return r.cached, nil
}

func (r *Resolver) probe(ctx context.Context) (Scope, error) {
	defer r.metrics.ProbeDuration().ObserveDuration()

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	_, err := r.transport.Request(probeCtx, transport.NewEnvelope(r.address, OpProbe, nil))
	switch {
	case err == nil:
		return ScopeOrchestrated, nil
	case errors.Is(err, transport.ErrNoResponders):
		return r.gridScope(ctx)
	default:
		return ScopeUnset, &ResolutionError{Address: r.address, Err: err}
	}
}

func (r *Resolver) gridScope(ctx context.Context) (Scope, error) {
	if r.grid == nil {
		return ScopeLocal, nil
	}
	members, err := r.grid.Members(ctx)
	if err != nil {
		return ScopeUnset, &ResolutionError{Address: r.address, Err: err}
	}
	if len(members) == 0 {
		return ScopeLocal, nil
	}
	return ScopeCluster, nil
}

// Close stops the cached cluster. The resolver cannot resolve afterwards.
func (r *Resolver) Close(ctx context.Context) error {
	r.mu.Lock()
	cached := r.cached
	r.cached = nil
	r.closed = true
	r.mu.Unlock()
	if cached == nil {
		return nil
	}
	return cached.cluster.Stop(ctx)
}
