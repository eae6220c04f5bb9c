package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type DeploymentID string

// Output describes where an instance sends one of its streams.
type Output struct {
	Stream  string `json:"stream"`
	Routing string `json:"routing,omitempty"`
	// Targets are input port addresses of every target instance.
	Targets []string `json:"targets"`
}

// Instance is one deployable copy of a network component.
type Instance struct {
	Network   string         `json:"network"`
	Component string         `json:"component"`
	Main      string         `json:"main"`
	Index     int            `json:"index"`
	Address   string         `json:"address"`
	Config    map[string]any `json:"config,omitempty"`
	// Inputs are the port names other instances send to.
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []Output `json:"outputs,omitempty"`
}

// Output returns the output for stream.
func (i Instance) Output(stream string) (Output, bool) {
	for _, o := range i.Outputs {
		if o.Stream == stream {
			return o, true
		}
	}
	return Output{}, false
}

// Deployer starts and stops instances.
type Deployer interface {
	Deploy(ctx context.Context, inst Instance) (DeploymentID, error)
	Undeploy(ctx context.Context, id DeploymentID) error
}

// Component is a running instance.
type Component interface {
	Stop(ctx context.Context) error
}

// ComponentFactory starts a component for inst. The component must be
// running when the factory returns.
type ComponentFactory func(ctx context.Context, inst Instance) (Component, error)

// ComponentFunc adapts a stop function to Component.
type ComponentFunc func(ctx context.Context) error

func (f ComponentFunc) Stop(ctx context.Context) error { return f(ctx) }

type RegistryOptions struct {
	Log *slog.Logger
}

// Registry is an in-process Deployer backed by component factories keyed by
// their main name.
type Registry struct {
	log *slog.Logger

	mu        sync.Mutex
	factories map[string]ComponentFactory
	running   map[DeploymentID]deployment
}

type deployment struct {
	inst      Instance
	component Component
}

func NewRegistry(opts ...RegistryOptions) *Registry {
	log := slog.Default()
	if len(opts) > 0 && opts[0].Log != nil {
		log = opts[0].Log
	}
	return &Registry{
		log:       log,
		factories: map[string]ComponentFactory{},
		running:   map[DeploymentID]deployment{},
	}
}

// Register makes main deployable. Registering a main twice replaces the
// factory for future deployments.
func (r *Registry) Register(main string, f ComponentFactory) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[main] = f
	return r
}

func (r *Registry) Deploy(ctx context.Context, inst Instance) (DeploymentID, error) {
	r.mu.Lock()
	f, ok := r.factories[inst.Main]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMain, inst.Main)
	}

	c, err := f(ctx, inst)
	if err != nil {
		return "", err
	}
	id := DeploymentID(gonanoid.Must())

	r.mu.Lock()
	r.running[id] = deployment{inst: inst, component: c}
	r.mu.Unlock()

	r.log.Debug("instance deployed", slog.String("address", inst.Address), slog.String("deployment", string(id)))
	return id, nil
}

func (r *Registry) Undeploy(ctx context.Context, id DeploymentID) error {
	r.mu.Lock()
	d, ok := r.running[id]
	delete(r.running, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeploymentNotFound, id)
	}
	if err := d.component.Stop(ctx); err != nil {
		return fmt.Errorf("stop %s: %w", d.inst.Address, err)
	}
	r.log.Debug("instance undeployed", slog.String("address", d.inst.Address), slog.String("deployment", string(id)))
	return nil
}

// Running returns the addresses of running instances in lexical order.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.running))
	for _, d := range r.running {
		out = append(out, d.inst.Address)
	}
	sort.Strings(out)
	return out
}

var _ Deployer = (*Registry)(nil)
