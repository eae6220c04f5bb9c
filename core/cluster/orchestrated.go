package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/core/transport"
	"github.com/codewandler/stream-go/ports/kv"
)

type OrchestratedOptions struct {
	Address   string
	Transport transport.Transport
	Log       *slog.Logger
	Metrics   ClusterMetrics
	// RequestTimeout bounds each control plane request. Default 5s.
	RequestTimeout time.Duration
	// FailureThreshold consecutive transport failures open the breaker.
	// Default 3.
	FailureThreshold uint32
	// ResetTimeout is how long the breaker stays open. Default 10s.
	ResetTimeout time.Duration
}

// OrchestratedCluster forwards every operation to the control plane serving
// its address. Transport failures are counted by a circuit breaker; while it
// is open requests fail fast with ErrOrchestratorUnavailable.
type OrchestratedCluster struct {
	address   string
	transport transport.Transport
	log       *slog.Logger
	metrics   ClusterMetrics
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker
}

func NewOrchestratedCluster(opts OrchestratedOptions) (*OrchestratedCluster, error) {
	if opts.Transport == nil {
		return nil, ErrTransportRequired
	}
	address := opts.Address
	if address == "" {
		address = DefaultAddress
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("cluster", address), slog.String("scope", string(ScopeOrchestrated)))
	m := opts.Metrics
	if m == nil {
		m = NopClusterMetrics()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	reset := opts.ResetTimeout
	if reset <= 0 {
		reset = 10 * time.Second
	}

	return &OrchestratedCluster{
		address:   address,
		transport: opts.Transport,
		log:       log,
		metrics:   m,
		timeout:   timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "orchestrator:" + address,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     reset,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn("orchestrator circuit breaker state changed",
					slog.String("from", from.String()),
					slog.String("to", to.String()))
				m.BreakerState(name, to.String())
			},
		}),
	}, nil
}

func (c *OrchestratedCluster) Scope() Scope    { return ScopeOrchestrated }
func (c *OrchestratedCluster) Address() string { return c.address }

// Start checks that the control plane answers.
func (c *OrchestratedCluster) Start(ctx context.Context) error {
	var res probeResponse
	if err := c.call(ctx, OpProbe, nil, &res); err != nil {
		return err
	}
	c.log.Info("cluster started", slog.String("control_plane_scope", string(res.Scope)))
	return nil
}

func (c *OrchestratedCluster) Stop(context.Context) error { return nil }

// call sends one request. Only transport failures count against the
// breaker; errors reported by the control plane are returned as is.
func (c *OrchestratedCluster) call(ctx context.Context, op string, req any, out any) error {
	var data []byte
	if req != nil {
		var err error
		if data, err = json.Marshal(req); err != nil {
			return err
		}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.transport.Request(reqCtx, transport.NewEnvelope(c.address, op, data))
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOrchestratorUnavailable, op, err)
	}
	return decodeReply(res.([]byte), out)
}

func (c *OrchestratedCluster) Deploy(ctx context.Context, net *topology.Network) (active *ActiveNetwork, err error) {
	defer observe(c.metrics, ScopeOrchestrated, OpDeploy)(&err)
	if net == nil {
		return nil, deployError(OpDeploy, "", fmt.Errorf("%w: missing network", ErrInvalidNetwork))
	}
	if err := net.Validate(); err != nil {
		return nil, deployError(OpDeploy, net.Name, fmt.Errorf("%w: %w", ErrInvalidNetwork, err))
	}
	active = new(ActiveNetwork)
	if err := c.call(ctx, OpRemoteDeploy, deployRequest{Network: net}, active); err != nil {
		return nil, deployError(OpDeploy, net.Name, err)
	}
	c.log.Info("network deployed", slog.String("network", net.Name))
	return active, nil
}

func (c *OrchestratedCluster) Undeploy(ctx context.Context, name string) (err error) {
	defer observe(c.metrics, ScopeOrchestrated, OpUndeploy)(&err)
	if err := c.call(ctx, OpRemoteUndeploy, nameRequest{Name: name}, nil); err != nil {
		return deployError(OpUndeploy, name, err)
	}
	c.log.Info("network undeployed", slog.String("network", name))
	return nil
}

func (c *OrchestratedCluster) Get(ctx context.Context, name string) (*ActiveNetwork, error) {
	active := new(ActiveNetwork)
	if err := c.call(ctx, OpGet, nameRequest{Name: name}, active); err != nil {
		return nil, err
	}
	return active, nil
}

func (c *OrchestratedCluster) Map(_ context.Context, name string) (kv.Store, error) {
	return &remoteStore{c: c, name: name}, nil
}

// remoteStore is a map held by the control plane.
type remoteStore struct {
	c    *OrchestratedCluster
	name string
}

func (s *remoteStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	return s.c.call(ctx, OpMapPut, mapRequest{Map: s.name, Key: key, Entry: &entry, TTL: opts.TTL}, nil)
}

func (s *remoteStore) Get(ctx context.Context, key string) (entry kv.Entry, err error) {
	err = s.c.call(ctx, OpMapGet, mapRequest{Map: s.name, Key: key}, &entry)
	return
}

func (s *remoteStore) Delete(ctx context.Context, key string) error {
	return s.c.call(ctx, OpMapDelete, mapRequest{Map: s.name, Key: key}, nil)
}

func (s *remoteStore) Keys(ctx context.Context) (keys []string, err error) {
	err = s.c.call(ctx, OpMapKeys, mapRequest{Map: s.name}, &keys)
	sort.Strings(keys)
	return
}

// IsUnavailable reports whether err means the control plane could not be
// reached, as opposed to having rejected the request.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrOrchestratorUnavailable)
}

var (
	_ Cluster  = (*OrchestratedCluster)(nil)
	_ kv.Store = (*remoteStore)(nil)
)
