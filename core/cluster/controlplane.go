package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/stream-go/core/transport"
	"github.com/codewandler/stream-go/ports/kv"
)

type ControlPlaneOptions struct {
	Address   string
	Transport transport.Transport
	// Backend executes the requests, usually a LocalCluster or GridCluster.
	Backend Cluster
	Log     *slog.Logger
}

// ControlPlane answers scope probes and serves the orchestrator protocol on
// its address. Its presence makes resolvers on the same transport choose the
// orchestrated scope.
type ControlPlane struct {
	address   string
	transport transport.Transport
	backend   Cluster
	log       *slog.Logger

	mu  sync.Mutex
	sub transport.Subscription
}

func NewControlPlane(opts ControlPlaneOptions) (*ControlPlane, error) {
	if opts.Transport == nil {
		return nil, ErrTransportRequired
	}
	if opts.Backend == nil {
		return nil, errors.New("control plane backend is required")
	}
	address := opts.Address
	if address == "" {
		address = DefaultAddress
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &ControlPlane{
		address:   address,
		transport: opts.Transport,
		backend:   opts.Backend,
		log:       log.With(slog.String("control_plane", address)),
	}, nil
}

func (p *ControlPlane) Address() string { return p.address }

// Serve subscribes the address until ctx is done or Close is called. The
// backend must already be started.
func (p *ControlPlane) Serve(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		return nil
	}
	sub, err := p.transport.Subscribe(ctx, p.address, p.handle)
	if err != nil {
		return err
	}
	p.sub = sub
	p.log.Info("control plane serving", slog.String("backend_scope", string(p.backend.Scope())))
	return nil
}

func (p *ControlPlane) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub == nil {
		return nil
	}
	err := p.sub.Unsubscribe()
	p.sub = nil
	return err
}

func (p *ControlPlane) handle(ctx context.Context, env transport.Envelope) ([]byte, error) {
	p.log.Debug("handle", slog.Group("envelope", slog.String("type", env.Type), slog.Int("size", len(env.Data))))

	res, err := p.dispatch(ctx, env)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		p.log.Warn("request failed", slog.String("type", env.Type), slog.Any("error", err))
	}
	return encodeReply(res, err)
}

func (p *ControlPlane) dispatch(ctx context.Context, env transport.Envelope) (any, error) {
	switch env.Type {
	case OpProbe:
		return probeResponse{Scope: p.backend.Scope()}, nil

	case OpRemoteDeploy:
		var req deployRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, err
		}
		if req.Network == nil {
			return nil, fmt.Errorf("%w: missing network", ErrInvalidNetwork)
		}
		return p.backend.Deploy(ctx, req.Network)

	case OpRemoteUndeploy:
		var req nameRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, err
		}
		return nil, p.backend.Undeploy(ctx, req.Name)

	case OpGet:
		var req nameRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, err
		}
		return p.backend.Get(ctx, req.Name)

	case OpMapGet, OpMapPut, OpMapDelete, OpMapKeys:
		var req mapRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, err
		}
		store, err := p.backend.Map(ctx, req.Map)
		if err != nil {
			return nil, err
		}
		return p.mapOp(ctx, env.Type, store, req)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedOperation, env.Type)
	}
}

func (p *ControlPlane) mapOp(ctx context.Context, op string, store kv.Store, req mapRequest) (any, error) {
	switch op {
	case OpMapGet:
		return store.Get(ctx, req.Key)
	case OpMapPut:
		var entry kv.Entry
		if req.Entry != nil {
			entry = *req.Entry
		}
		return nil, store.Put(ctx, req.Key, entry, kv.PutOptions{TTL: req.TTL})
	case OpMapDelete:
		return nil, store.Delete(ctx, req.Key)
	default:
		return store.Keys(ctx)
	}
}
